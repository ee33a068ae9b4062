// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// FileStore stores runs as JSON files in a directory.
//
// Description:
//
//	Each run gets its own file named from its timestamp:
//	{dir}/benchmark_2024-01-01T12-00-00-000000Z.json. The directory is
//	created on first write. Writes go to a temp file that is renamed into
//	place, so a reader never sees a partial run.
//
// Thread Safety: Safe for concurrent use within one process.
type FileStore struct {
	dir    string
	mu     sync.RWMutex
	config *config
}

// NewFileStore creates a file-backed store rooted at dir. Nothing is
// created on disk until the first Store.
func NewFileStore(dir string, opts ...Option) *FileStore {
	return &FileStore{dir: dir, config: applyOptions(opts)}
}

// Dir returns the data directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Store implements Store.
func (f *FileStore) Store(ctx context.Context, benchmarks []snapshot.Benchmark, ts *time.Time) (*snapshot.Run, error) {
	_, span := otel.Tracer("store").Start(ctx, "store.FileStore.Store",
		trace.WithAttributes(
			attribute.String("dir", f.dir),
			attribute.Int("benchmarks", len(benchmarks)),
		),
	)
	defer span.End()

	run := f.config.newRun(benchmarks, ts)
	data, err := snapshot.EncodeRun(run)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("encoding run: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0755); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(f.dir, snapshot.FileName(run.Timestamp))
	if err := writeFileAtomic(f.dir, path, data); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.String("run_id", run.ID))
	f.config.runStored(BackendFile)
	f.config.logger.Debug("stored benchmark run",
		slog.String("path", path),
		slog.String("run_id", run.ID),
		slog.Int("benchmarks", len(run.Benchmarks)),
	)
	return run, nil
}

// History implements Store.
func (f *FileStore) History(ctx context.Context, limit int) ([]snapshot.Run, error) {
	_, span := otel.Tracer("store").Start(ctx, "store.FileStore.History",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []snapshot.Run{}, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading data directory: %w", err)
	}

	runs := make([]snapshot.Run, 0, len(entries))
	skipped := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "benchmark_") || filepath.Ext(name) != ".json" {
			continue
		}
		path := filepath.Join(f.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			skipped++
			f.config.logger.Debug("skipping unreadable run", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		run, err := snapshot.DecodeRun(data)
		if err != nil {
			skipped++
			f.config.logger.Debug("skipping corrupt run", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		if run.ID == "" {
			run.ID = name
		}
		runs = append(runs, *run)
	}

	sortDescending(runs)
	runs = truncate(runs, limit)

	span.SetAttributes(
		attribute.Int("runs", len(runs)),
		attribute.Int("skipped", skipped),
	)
	return runs, nil
}

// HistoryFor implements Store.
func (f *FileStore) HistoryFor(ctx context.Context, name string, limit int) ([]Point, error) {
	runs, err := f.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	return pointsFor(runs, name), nil
}

// Close implements Store. FileStore holds no resources.
func (f *FileStore) Close() error {
	return nil
}

// writeFileAtomic writes data to a temp file in dir and renames it to path.
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".benchmark-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing run: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing run: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing run: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return fmt.Errorf("chmod run: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("renaming run into place: %w", err)
	}
	return nil
}
