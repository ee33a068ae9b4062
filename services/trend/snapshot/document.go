// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package snapshot

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kaptinlin/jsonschema"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidTimestamp indicates a timestamp that is not ISO-8601.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrSchema indicates a document that does not match the snapshot schema.
	ErrSchema = errors.New("snapshot schema validation failed")

	// ErrEmptyDocument indicates a document with no content.
	ErrEmptyDocument = errors.New("empty snapshot document")
)

//go:embed schema/snapshot.schema.json
var snapshotSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		schema, schemaErr = compiler.Compile(snapshotSchemaJSON)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile snapshot schema: %w", schemaErr)
		}
	})
	return schema, schemaErr
}

// -----------------------------------------------------------------------------
// Document
// -----------------------------------------------------------------------------

// Document is the on-disk and on-the-wire form of a run.
type Document struct {
	// RunID is set for runs written by the store.
	RunID string `json:"run_id,omitempty"`

	// Timestamp is ISO-8601. Optional in harness output.
	Timestamp string `json:"timestamp,omitempty"`

	// Benchmarks holds the measurements.
	Benchmarks []Benchmark `json:"benchmarks"`
}

// Validate checks raw JSON against the embedded snapshot schema.
//
// Outputs:
//   - error: ErrSchema (wrapped with details) when the document is invalid.
func Validate(data []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}
	result := s.ValidateJSON(data)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSchema, result.Errors)
}

// DecodeDocument parses a snapshot document.
//
// Inputs:
//   - data: Raw JSON.
//   - strict: When true the document must also satisfy the snapshot schema.
//
// Outputs:
//   - *Document: The decoded document.
//   - error: ErrEmptyDocument, ErrSchema, or a JSON syntax error.
func DecodeDocument(data []byte, strict bool) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	if strict {
		if err := Validate(data); err != nil {
			return nil, err
		}
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &doc, nil
}

// Run converts the document into a Run. A missing timestamp yields the
// zero time; callers that need one should use fallback.
func (d *Document) Run(fallback time.Time) (*Run, error) {
	ts := fallback
	if d.Timestamp != "" {
		parsed, err := ParseTimestamp(d.Timestamp)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}
	return &Run{
		ID:         d.RunID,
		Timestamp:  ts,
		Benchmarks: d.Benchmarks,
	}, nil
}

// NewDocument converts a Run back into its document form.
func NewDocument(run *Run) *Document {
	benchmarks := run.Benchmarks
	if benchmarks == nil {
		benchmarks = []Benchmark{}
	}
	return &Document{
		RunID:      run.ID,
		Timestamp:  FormatTimestamp(run.Timestamp),
		Benchmarks: benchmarks,
	}
}

// EncodeRun renders run as indented JSON.
func EncodeRun(run *Run) ([]byte, error) {
	data, err := json.MarshalIndent(NewDocument(run), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeRun parses a stored run file. The timestamp is required.
func DecodeRun(data []byte) (*Run, error) {
	doc, err := DecodeDocument(data, false)
	if err != nil {
		return nil, err
	}
	if doc.Timestamp == "" {
		return nil, fmt.Errorf("%w: run has no timestamp", ErrInvalidTimestamp)
	}
	return doc.Run(time.Time{})
}

// -----------------------------------------------------------------------------
// Tolerant Loading
// -----------------------------------------------------------------------------

// LoadBenchmarks reads the "benchmarks" list from a harness output file.
//
// Description:
//
//	A missing, empty, or malformed file yields an empty slice so that a
//	first-ever run without a baseline is not a hard failure. Entries
//	without a name are dropped.
//
// Inputs:
//   - path: Path to a JSON document.
//
// Outputs:
//   - []Benchmark: The benchmarks. Never nil.
func LoadBenchmarks(path string) []Benchmark {
	data, err := os.ReadFile(path)
	if err != nil {
		return []Benchmark{}
	}
	doc, err := DecodeDocument(data, false)
	if err != nil {
		return []Benchmark{}
	}
	out := make([]Benchmark, 0, len(doc.Benchmarks))
	for _, b := range doc.Benchmarks {
		if b.Name == "" {
			continue
		}
		out = append(out, b)
	}
	return out
}
