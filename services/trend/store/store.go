// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists benchmark runs and reads them back as history.
//
// Two backends are provided: a directory of JSON files (one per run) and an
// embedded BadgerDB. Either can be wrapped in a Mirror that also writes each
// run to InfluxDB. History is always returned most recent first.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNoData indicates a store with no readable runs.
	ErrNoData = errors.New("no stored runs")

	// ErrInvalidTimestamp is returned for unparseable run timestamps.
	ErrInvalidTimestamp = snapshot.ErrInvalidTimestamp

	// ErrUnknownBackend indicates an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown store backend")

	// ErrClosed indicates use of a closed store.
	ErrClosed = errors.New("store is closed")
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

// -----------------------------------------------------------------------------
// Interface
// -----------------------------------------------------------------------------

// Store persists runs and returns history in descending timestamp order.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Store persists one run. ts nil means now. The returned run carries the
	// assigned ID and timestamp.
	Store(ctx context.Context, benchmarks []snapshot.Benchmark, ts *time.Time) (*snapshot.Run, error)

	// History returns runs most recent first. limit <= 0 means unlimited.
	// Unreadable entries are skipped.
	History(ctx context.Context, limit int) ([]snapshot.Run, error)

	// HistoryFor filters History(limit) to one benchmark, preserving order.
	// An unknown name yields an empty slice, not an error.
	HistoryFor(ctx context.Context, name string, limit int) ([]Point, error)

	// Close releases resources.
	Close() error
}

// Point is one benchmark's stats at one run timestamp.
type Point struct {
	Timestamp time.Time      `json:"timestamp"`
	Stats     snapshot.Stats `json:"stats"`
}

// Metrics receives store events. A nil Metrics records nothing.
type Metrics interface {
	RunStored(backend string)
	MirrorFailed(target string)
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

type config struct {
	logger  *slog.Logger
	metrics Metrics
	now     func() time.Time
	newID   func() string

	// mirrorClose releases the mirror's writer on Close.
	mirrorClose func()
}

func defaultConfig() *config {
	return &config{
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Option configures a store.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithClock overrides the time source used when Store is given no timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDFunc overrides run ID generation.
func WithIDFunc(fn func() string) Option {
	return func(c *config) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func withMirrorCloser(fn func()) Option {
	return func(c *config) {
		c.mirrorClose = fn
	}
}

func applyOptions(opts []Option) *config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *config) runStored(backend string) {
	if c.metrics != nil {
		c.metrics.RunStored(backend)
	}
}

// newRun stamps benchmarks with an ID and a UTC timestamp.
func (c *config) newRun(benchmarks []snapshot.Benchmark, ts *time.Time) *snapshot.Run {
	at := c.now()
	if ts != nil {
		at = *ts
	}
	copied := make([]snapshot.Benchmark, 0, len(benchmarks))
	for _, b := range benchmarks {
		copied = append(copied, snapshot.Benchmark{Name: b.Name, Stats: b.Stats.Clone()})
	}
	return &snapshot.Run{
		ID:         c.newID(),
		Timestamp:  at.UTC(),
		Benchmarks: copied,
	}
}

// -----------------------------------------------------------------------------
// Factory
// -----------------------------------------------------------------------------

// Options selects and configures a backend for Open.
type Options struct {
	// Backend is "file" (default) or "badger".
	Backend string

	// Dir is the data directory. For badger, the database lives in Dir/badger.
	Dir string

	// Badger tunes the badger backend. Path and InMemory are derived from Dir
	// unless InMemory is set.
	Badger BadgerConfig

	// Influx, when non-nil, mirrors stored runs to InfluxDB.
	Influx *InfluxConfig
}

// Open creates the configured store.
//
// Inputs:
//   - ctx: Context for backend start-up.
//   - o: Backend selection.
//   - opts: Logger, metrics, clock.
//
// Outputs:
//   - Store: The opened store. Caller must Close it.
//   - error: ErrUnknownBackend or a backend open failure.
func Open(ctx context.Context, o Options, opts ...Option) (Store, error) {
	var (
		primary Store
		err     error
	)
	switch strings.ToLower(o.Backend) {
	case "", BackendFile:
		primary = NewFileStore(o.Dir, opts...)
	case BackendBadger:
		cfg := o.Badger
		if !cfg.InMemory && cfg.Path == "" {
			cfg.Path = badgerPath(o.Dir)
		}
		primary, err = OpenBadgerStore(ctx, cfg, opts...)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, o.Backend)
	}

	if o.Influx != nil && o.Influx.URL != "" {
		writer, closer := NewInfluxWriter(*o.Influx)
		return NewMirror(primary, writer, append(opts, withMirrorCloser(closer))...), nil
	}
	return primary, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// pointsFor extracts one benchmark's stats from runs, preserving run order.
func pointsFor(runs []snapshot.Run, name string) []Point {
	points := make([]Point, 0)
	for i := range runs {
		if b, ok := runs[i].Find(name); ok {
			points = append(points, Point{Timestamp: runs[i].Timestamp, Stats: b.Stats.Clone()})
		}
	}
	return points
}

// truncate applies a limit where limit <= 0 means unlimited.
func truncate(runs []snapshot.Run, limit int) []snapshot.Run {
	if limit > 0 && len(runs) > limit {
		return runs[:limit]
	}
	return runs
}

// sortDescending orders runs most recent first; ties break on ID.
func sortDescending(runs []snapshot.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].Timestamp.Equal(runs[j].Timestamp) {
			return runs[i].Timestamp.After(runs[j].Timestamp)
		}
		return runs[i].ID > runs[j].ID
	})
}
