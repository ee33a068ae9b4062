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
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// runPrefix namespaces run keys: run/<timestamp>/<id>. The timestamp is
// fixed-width UTC so keys sort chronologically.
var runPrefix = []byte("run/")

// BadgerConfig holds configuration for the badger backend.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string `yaml:"path"`

	// InMemory keeps the database in RAM. Useful for testing.
	InMemory bool `yaml:"in_memory"`

	// SyncWrites fsyncs every commit.
	SyncWrites bool `yaml:"sync_writes"`

	// GCInterval is how often to run value log GC. 0 disables it.
	GCInterval time.Duration `yaml:"gc_interval"`

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites a file.
	GCDiscardRatio float64 `yaml:"gc_discard_ratio"`
}

// DefaultBadgerConfig returns durable settings for a persistent database.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryBadgerConfig returns settings for tests: no disk I/O, no GC.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

func badgerPath(dir string) string {
	return filepath.Join(dir, "badger")
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore stores runs in an embedded BadgerDB.
//
// Description:
//
//	Each run is one key, run/<timestamp>/<id>, holding the same JSON
//	document the file backend writes. History iterates the prefix in
//	reverse, so it reads only as many values as the limit needs.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db     *badger.DB
	config *config

	gcCancel context.CancelFunc
	gcDone   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// OpenBadgerStore opens (or creates) a badger-backed store.
//
// Inputs:
//   - ctx: Parent context for the background GC loop.
//   - cfg: Database configuration. Path is required unless InMemory.
//   - opts: Logger, metrics, clock.
//
// Outputs:
//   - *BadgerStore: The opened store. Caller must Close it.
//   - error: Non-nil if the database cannot be opened.
func OpenBadgerStore(ctx context.Context, cfg BadgerConfig, opts ...Option) (*BadgerStore, error) {
	c := applyOptions(opts)

	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger store")
	}

	var bopts badger.Options
	if cfg.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		bopts = badger.DefaultOptions(cfg.Path)
	}
	bopts = bopts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: c.logger})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	s := &BadgerStore{db: db, config: c}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		gcCtx, cancel := context.WithCancel(ctx)
		s.gcCancel = cancel
		s.gcDone = make(chan struct{})
		go s.runGC(gcCtx, cfg.GCInterval, ratio)
	}
	return s, nil
}

func (s *BadgerStore) runGC(ctx context.Context, interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.config.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

func runKey(run *snapshot.Run) []byte {
	return []byte(string(runPrefix) + snapshot.FormatTimestamp(run.Timestamp) + "/" + run.ID)
}

// Store implements Store.
func (s *BadgerStore) Store(ctx context.Context, benchmarks []snapshot.Benchmark, ts *time.Time) (*snapshot.Run, error) {
	_, span := otel.Tracer("store").Start(ctx, "store.BadgerStore.Store",
		trace.WithAttributes(attribute.Int("benchmarks", len(benchmarks))),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	run := s.config.newRun(benchmarks, ts)
	data, err := snapshot.EncodeRun(run)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("encoding run: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(run), data)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("writing run: %w", err)
	}

	span.SetAttributes(attribute.String("run_id", run.ID))
	s.config.runStored(BackendBadger)
	return run, nil
}

// History implements Store.
func (s *BadgerStore) History(ctx context.Context, limit int) ([]snapshot.Run, error) {
	_, span := otel.Tracer("store").Start(ctx, "store.BadgerStore.History",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	runs := make([]snapshot.Run, 0)
	skipped := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = runPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, runPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(runPrefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				skipped++
				continue
			}
			run, err := snapshot.DecodeRun(value)
			if err != nil {
				skipped++
				s.config.logger.Debug("skipping corrupt run",
					slog.String("key", string(item.Key())),
					slog.String("error", err.Error()),
				)
				continue
			}
			runs = append(runs, *run)
			if limit > 0 && len(runs) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("reading runs: %w", err)
	}

	// Keys already sort by timestamp; this settles equal timestamps by ID.
	sortDescending(runs)

	span.SetAttributes(
		attribute.Int("runs", len(runs)),
		attribute.Int("skipped", skipped),
	)
	return runs, nil
}

// HistoryFor implements Store.
func (s *BadgerStore) HistoryFor(ctx context.Context, name string, limit int) ([]Point, error) {
	runs, err := s.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	return pointsFor(runs, name), nil
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		if s.gcCancel != nil {
			s.gcCancel()
			<-s.gcDone
		}
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
