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
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseTimestamp verifies zoned and zone-less ISO-8601 inputs.
func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"zone-less seconds", "2024-01-01T12:00:00", want},
		{"zone-less micros", "2024-01-01T12:00:00.250000", want.Add(250 * time.Millisecond)},
		{"utc", "2024-01-01T12:00:00Z", want},
		{"offset", "2024-01-01T14:00:00+02:00", want},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		_, err := ParseTimestamp("yesterday")
		assert.True(t, errors.Is(err, ErrInvalidTimestamp))
	})
}

// TestFileName verifies the stored file name has no ':' or '.' in the timestamp part.
func TestFileName(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "benchmark_2024-01-01T12-00-00-000000Z.json", FileName(ts))

	later := ts.Add(time.Microsecond)
	assert.Less(t, FileName(ts), FileName(later))
}

// TestRun_FindLastWins verifies duplicate names resolve to the last entry.
func TestRun_FindLastWins(t *testing.T) {
	run := &Run{Benchmarks: []Benchmark{
		{Name: "a", Stats: Stats{"mean": 1}},
		{Name: "b", Stats: Stats{"mean": 2}},
		{Name: "a", Stats: Stats{"mean": 3}},
	}}

	b, ok := run.Find("a")
	require.True(t, ok)
	assert.Equal(t, 3.0, b.Stats["mean"])
	assert.Equal(t, []string{"a", "b"}, run.Names())

	_, ok = run.Find("missing")
	assert.False(t, ok)
}

// TestStats_UnmarshalDropsNonNumeric verifies harness extras do not break loading.
func TestStats_UnmarshalDropsNonNumeric(t *testing.T) {
	doc, err := DecodeDocument([]byte(`{"benchmarks":[{"name":"x","stats":{"mean":0.5,"outliers":"1;2","rounds":10}}]}`), false)
	require.NoError(t, err)
	require.Len(t, doc.Benchmarks, 1)
	assert.Equal(t, Stats{"mean": 0.5, "rounds": 10}, doc.Benchmarks[0].Stats)
}

// TestDecodeDocument_Strict verifies schema validation in strict mode.
func TestDecodeDocument_Strict(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		_, err := DecodeDocument([]byte(`{"timestamp":"2024-01-01T12:00:00","benchmarks":[{"name":"x","stats":{"mean":1.0}}]}`), true)
		assert.NoError(t, err)
	})

	t.Run("missing benchmarks", func(t *testing.T) {
		_, err := DecodeDocument([]byte(`{"timestamp":"2024-01-01T12:00:00"}`), true)
		assert.True(t, errors.Is(err, ErrSchema))
	})

	t.Run("mean is not a number", func(t *testing.T) {
		_, err := DecodeDocument([]byte(`{"benchmarks":[{"name":"x","stats":{"mean":"slow"}}]}`), true)
		assert.True(t, errors.Is(err, ErrSchema))
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeDocument([]byte("  \n"), true)
		assert.True(t, errors.Is(err, ErrEmptyDocument))
	})
}

// TestEncodeDecodeRun verifies a stored run keeps its identity and timestamp.
func TestEncodeDecodeRun(t *testing.T) {
	run := &Run{
		ID:        "run-1",
		Timestamp: time.Date(2024, 3, 5, 8, 30, 0, 123456000, time.UTC),
		Benchmarks: []Benchmark{
			{Name: "test_sort", Stats: Stats{"mean": 0.125, "stddev": 0.01}},
		},
	}

	data, err := EncodeRun(run)
	require.NoError(t, err)

	decoded, err := DecodeRun(data)
	require.NoError(t, err)
	assert.Equal(t, run.ID, decoded.ID)
	assert.True(t, run.Timestamp.Equal(decoded.Timestamp))
	assert.Equal(t, run.Benchmarks, decoded.Benchmarks)
}

// TestLoadBenchmarks verifies tolerant loading of harness output.
func TestLoadBenchmarks(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(dir, "current.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"benchmarks":[{"name":"test_1","stats":{"mean":1.0}},{"stats":{}}]}`), 0644))

		got := LoadBenchmarks(path)
		require.Len(t, got, 1)
		assert.Equal(t, "test_1", got[0].Name)
	})

	t.Run("missing file", func(t *testing.T) {
		got := LoadBenchmarks(filepath.Join(dir, "nope.json"))
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(path, nil, 0644))
		assert.Empty(t, LoadBenchmarks(path))
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		assert.Empty(t, LoadBenchmarks(path))
	})
}

// TestCanonical verifies key order does not change the canonical bytes.
func TestCanonical(t *testing.T) {
	a, err := Canonical(map[string]any{"b": 1, "a": []int{2, 1}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[2,1],"b":1}`, string(a))

	d1, err := Digest(map[string]int{"x": 1, "y": 2})
	require.NoError(t, err)
	d2, err := Digest(map[string]int{"y": 2, "x": 1})
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Len(t, d1, 64)
}
