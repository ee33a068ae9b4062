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
	"sort"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
)

// Measurement is the InfluxDB measurement runs are written to.
const Measurement = "benchmark"

// InfluxConfig addresses an InfluxDB v2 bucket.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// PointWriter writes line-protocol points. api.WriteAPIBlocking satisfies it.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// NewInfluxWriter returns a blocking writer for cfg and a func that closes
// the underlying client.
func NewInfluxWriter(cfg InfluxConfig) (PointWriter, func()) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return client.WriteAPIBlocking(cfg.Org, cfg.Bucket), client.Close
}

// Points converts a run to one point per benchmark: tag "benchmark", one
// field per metric, timestamped with the run. Runs with an ID also carry a
// "run_id" tag.
func Points(run *snapshot.Run) []*write.Point {
	points := make([]*write.Point, 0, len(run.Benchmarks))
	for _, b := range run.Benchmarks {
		if b.Name == "" || len(b.Stats) == 0 {
			continue
		}
		p := influxdb2.NewPointWithMeasurement(Measurement).
			AddTag("benchmark", b.Name).
			SetTime(run.Timestamp)
		if run.ID != "" {
			p.AddTag("run_id", run.ID)
		}
		keys := make([]string, 0, len(b.Stats))
		for k := range b.Stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p.AddField(k, b.Stats[k])
		}
		points = append(points, p)
	}
	return points
}

// Mirror decorates a primary Store, copying every stored run to InfluxDB.
//
// Description:
//
//	The primary store is the source of truth. A mirror write failure is
//	logged and counted but never fails Store. Reads go to the primary.
//
// Thread Safety: Safe for concurrent use if the primary and writer are.
type Mirror struct {
	primary Store
	writer  PointWriter
	config  *config
}

// NewMirror wraps primary with an InfluxDB mirror.
func NewMirror(primary Store, writer PointWriter, opts ...Option) *Mirror {
	return &Mirror{primary: primary, writer: writer, config: applyOptions(opts)}
}

// Primary returns the wrapped store.
func (m *Mirror) Primary() Store {
	return m.primary
}

// Store implements Store.
func (m *Mirror) Store(ctx context.Context, benchmarks []snapshot.Benchmark, ts *time.Time) (*snapshot.Run, error) {
	run, err := m.primary.Store(ctx, benchmarks, ts)
	if err != nil {
		return nil, err
	}
	if err := m.mirror(ctx, run); err != nil {
		if m.config.metrics != nil {
			m.config.metrics.MirrorFailed("influx")
		}
		m.config.logger.Warn("mirroring run to influx failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
	return run, nil
}

func (m *Mirror) mirror(ctx context.Context, run *snapshot.Run) error {
	ctx, span := otel.Tracer("store").Start(ctx, "store.Mirror.mirror")
	defer span.End()

	points := Points(run)
	span.SetAttributes(attribute.Int("points", len(points)))
	if len(points) == 0 {
		return nil
	}
	if err := m.writer.WritePoint(ctx, points...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// History implements Store.
func (m *Mirror) History(ctx context.Context, limit int) ([]snapshot.Run, error) {
	return m.primary.History(ctx, limit)
}

// HistoryFor implements Store.
func (m *Mirror) HistoryFor(ctx context.Context, name string, limit int) ([]Point, error) {
	return m.primary.HistoryFor(ctx, name, limit)
}

// Close closes the primary and the mirror client.
func (m *Mirror) Close() error {
	if m.config.mirrorClose != nil {
		m.config.mirrorClose()
	}
	return m.primary.Close()
}

// Backfill writes every run in src to writer, oldest first, and returns the
// number of points written.
func Backfill(ctx context.Context, src Store, writer PointWriter) (int, error) {
	runs, err := src.History(ctx, 0)
	if err != nil {
		return 0, err
	}
	written := 0
	for i := len(runs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		points := Points(&runs[i])
		if len(points) == 0 {
			continue
		}
		if err := writer.WritePoint(ctx, points...); err != nil {
			return written, fmt.Errorf("writing run %s: %w", runs[i].ID, err)
		}
		written += len(points)
	}
	return written, nil
}
