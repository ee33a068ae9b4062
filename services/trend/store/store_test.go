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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func at(hours int) *time.Time {
	ts := t0.Add(time.Duration(hours) * time.Hour)
	return &ts
}

func sequentialIDs() Option {
	n := 0
	return WithIDFunc(func() string {
		n++
		return fmt.Sprintf("run-%03d", n)
	})
}

// storeFactories lets every behavioural test run against both backends.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"file": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), "trends"), sequentialIDs())
		},
		"badger": func() Store {
			s, err := OpenBadgerStore(context.Background(), InMemoryBadgerConfig(), sequentialIDs())
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// TestStore_RoundTrip verifies stored stats come back from HistoryFor in
// descending timestamp order.
func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			// Stored out of order on purpose.
			for _, h := range []int{1, 0, 2} {
				_, err := s.Store(ctx, []snapshot.Benchmark{
					{Name: "test_sort", Stats: snapshot.Stats{"mean": float64(h) + 0.5, "stddev": 0.01}},
				}, at(h))
				require.NoError(t, err)
			}

			points, err := s.HistoryFor(ctx, "test_sort", 0)
			require.NoError(t, err)
			require.Len(t, points, 3)

			assert.True(t, at(2).Equal(points[0].Timestamp))
			assert.True(t, at(1).Equal(points[1].Timestamp))
			assert.True(t, at(0).Equal(points[2].Timestamp))
			assert.Equal(t, snapshot.Stats{"mean": 2.5, "stddev": 0.01}, points[0].Stats)
			assert.Equal(t, 0.5, points[2].Stats["mean"])
		})
	}
}

// TestStore_LimitAndUnknownName verifies limits count runs and unknown names are empty.
func TestStore_LimitAndUnknownName(t *testing.T) {
	ctx := context.Background()

	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := factory()

			_, err := s.Store(ctx, []snapshot.Benchmark{{Name: "a", Stats: snapshot.Stats{"mean": 1}}}, at(0))
			require.NoError(t, err)
			_, err = s.Store(ctx, []snapshot.Benchmark{{Name: "b", Stats: snapshot.Stats{"mean": 2}}}, at(1))
			require.NoError(t, err)
			_, err = s.Store(ctx, []snapshot.Benchmark{{Name: "a", Stats: snapshot.Stats{"mean": 3}}}, at(2))
			require.NoError(t, err)

			runs, err := s.History(ctx, 2)
			require.NoError(t, err)
			require.Len(t, runs, 2)
			assert.True(t, at(2).Equal(runs[0].Timestamp))

			// The two most recent runs contain "a" once.
			points, err := s.HistoryFor(ctx, "a", 2)
			require.NoError(t, err)
			require.Len(t, points, 1)
			assert.Equal(t, 3.0, points[0].Stats["mean"])

			points, err = s.HistoryFor(ctx, "never_recorded", 0)
			require.NoError(t, err)
			assert.NotNil(t, points)
			assert.Empty(t, points)
		})
	}
}

// TestStore_AssignsIDAndTimestamp verifies a nil timestamp uses the clock.
func TestStore_AssignsIDAndTimestamp(t *testing.T) {
	clock := func() time.Time { return t0.In(time.FixedZone("x", 3600)) }
	s := NewFileStore(t.TempDir(), WithClock(clock), WithIDFunc(func() string { return "fixed" }))

	run, err := s.Store(context.Background(), []snapshot.Benchmark{{Name: "a", Stats: snapshot.Stats{"mean": 1}}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fixed", run.ID)
	assert.Equal(t, time.UTC, run.Timestamp.Location())
	assert.True(t, t0.Equal(run.Timestamp))
}

// TestFileStore_SkipsCorruptFiles verifies a corrupt file does not hide the rest.
func TestFileStore_SkipsCorruptFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := NewFileStore(dir)

	_, err := s.Store(ctx, []snapshot.Benchmark{{Name: "a", Stats: snapshot.Stats{"mean": 1}}}, at(0))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "benchmark_corrupt.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "benchmark_nots.json"), []byte(`{"benchmarks":[]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	runs, err := s.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "a", runs[0].Benchmarks[0].Name)
}

// TestFileStore_MissingDirectory verifies an absent data directory is empty history.
func TestFileStore_MissingDirectory(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing"))

	runs, err := s.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

// TestFileStore_FileNaming verifies the on-disk name and that no temp files remain.
func TestFileStore_FileNaming(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	_, err := s.Store(context.Background(), []snapshot.Benchmark{{Name: "a", Stats: snapshot.Stats{"mean": 1}}}, at(0))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "benchmark_2024-01-01T12-00-00-000000Z.json", entries[0].Name())
}

// TestOpen verifies backend selection.
func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(ctx, Options{Backend: "badger", Badger: InMemoryBadgerConfig()})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close is idempotent")

	_, err = Open(ctx, Options{Backend: "sqlite"})
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

// -----------------------------------------------------------------------------
// Mirror
// -----------------------------------------------------------------------------

type fakeWriter struct {
	mu     sync.Mutex
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, points ...*write.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, points...)
	return nil
}

type countingMetrics struct {
	stored  int
	mirrors int
}

func (c *countingMetrics) RunStored(string)    { c.stored++ }
func (c *countingMetrics) MirrorFailed(string) { c.mirrors++ }

// TestMirror_WritesPoints verifies one point per benchmark with a field per metric.
func TestMirror_WritesPoints(t *testing.T) {
	ctx := context.Background()
	w := &fakeWriter{}
	m := NewMirror(NewFileStore(t.TempDir()), w)

	_, err := m.Store(ctx, []snapshot.Benchmark{
		{Name: "a", Stats: snapshot.Stats{"mean": 1, "max": 2}},
		{Name: "b", Stats: snapshot.Stats{"mean": 3}},
	}, at(0))
	require.NoError(t, err)

	require.Len(t, w.points, 2)
	assert.Equal(t, Measurement, w.points[0].Name())
	assert.Len(t, w.points[0].FieldList(), 2)
	assert.True(t, at(0).Equal(w.points[0].Time()))

	runs, err := m.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// TestMirror_FailureDoesNotFailStore verifies the primary result stands.
func TestMirror_FailureDoesNotFailStore(t *testing.T) {
	metrics := &countingMetrics{}
	w := &fakeWriter{err: errors.New("influx down")}
	m := NewMirror(NewFileStore(t.TempDir(), WithMetrics(metrics)), w, WithMetrics(metrics))

	run, err := m.Store(context.Background(), []snapshot.Benchmark{{Name: "a", Stats: snapshot.Stats{"mean": 1}}}, at(0))
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 1, metrics.stored)
	assert.Equal(t, 1, metrics.mirrors)
}

// TestBackfill verifies every stored run is written oldest first.
func TestBackfill(t *testing.T) {
	ctx := context.Background()
	s := NewFileStore(t.TempDir())
	for h := 0; h < 3; h++ {
		_, err := s.Store(ctx, []snapshot.Benchmark{{Name: "a", Stats: snapshot.Stats{"mean": float64(h)}}}, at(h))
		require.NoError(t, err)
	}

	w := &fakeWriter{}
	n, err := Backfill(ctx, s, w)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, w.points, 3)
	assert.True(t, at(0).Equal(w.points[0].Time()))
	assert.True(t, at(2).Equal(w.points[2].Time()))
}
