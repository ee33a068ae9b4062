// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig verifies CLI-friendly defaults.
func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")

	cfg := DefaultConfig()
	assert.Equal(t, "benchtrend", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

// TestInit_NilContext verifies the nil-context guard.
func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilContext)
}

// TestInit_NoopExporter verifies that disabled exporters still yield a shutdown func.
func TestInit_NoopExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterNone
	cfg.MetricExporter = ExporterNone

	shutdown, err := Init(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

// TestInit_StdoutExporters verifies the stdout exporters honor the export writer.
func TestInit_StdoutExporters(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = ExporterStdout
	cfg.MetricExporter = ExporterStdout

	var buf bytes.Buffer
	shutdown, err := Init(context.Background(), cfg, WithExportWriter(&buf))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

// TestInit_PrometheusExporter verifies the OTel collector lands on the given registry.
func TestInit_PrometheusExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricExporter = ExporterPrometheus

	reg := prometheus.NewRegistry()
	shutdown, err := Init(context.Background(), cfg, WithRegisterer(reg))
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

// TestInit_UnknownExporter verifies unknown exporter names are rejected.
func TestInit_UnknownExporter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TraceExporter = "zipkin"
	_, err := Init(context.Background(), cfg)
	assert.True(t, errors.Is(err, ErrUnknownExporter))

	cfg = DefaultConfig()
	cfg.MetricExporter = "statsd"
	_, err = Init(context.Background(), cfg)
	assert.True(t, errors.Is(err, ErrUnknownExporter))
}

// TestRecorder_Counters verifies counters by label.
func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.RunStored("file")
	r.RunStored("file")
	r.MirrorFailed("influx")
	r.RegressionObserved("error")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsStored.WithLabelValues("file")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.mirrorFailures.WithLabelValues("influx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.regressions.WithLabelValues("error")))
}

// TestRecorder_TrendObserved verifies the one-hot direction gauge.
func TestRecorder_TrendObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.TrendObserved("test_sort", "mean", "improving", 0.4)
	r.TrendObserved("test_sort", "mean", "degrading", 0.25)

	assert.Equal(t, 0.25, testutil.ToFloat64(r.changeRatio.WithLabelValues("test_sort", "mean")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.direction.WithLabelValues("test_sort", "degrading")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.direction.WithLabelValues("test_sort", "improving")))

	n, err := testutil.GatherAndCount(reg, "benchtrend_trend_direction")
	require.NoError(t, err)
	assert.Equal(t, len(directions), n)
}

// TestRecorder_Nil verifies a nil recorder is a no-op.
func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.RunStored("file")
		r.MirrorFailed("influx")
		r.RegressionObserved("error")
		r.TrendObserved("x", "mean", "stable", 0)
	})
}

// TestPush verifies metrics are PUT to the job's group.
func TestPush(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		b, _ := io.ReadAll(req.Body)
		mu.Lock()
		method, path, body = req.Method, req.URL.Path, string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	NewRecorder(reg).RegressionObserved("warning")

	require.NoError(t, Push(context.Background(), srv.URL, "nightly", reg))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/nightly"))
	assert.NotEmpty(t, body)
}

// TestPush_Rejected verifies gateway errors are returned.
func TestPush_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := Push(context.Background(), srv.URL, "nightly", prometheus.NewRegistry())
	assert.Error(t, err)

	assert.Error(t, Push(context.Background(), "", "nightly", prometheus.NewRegistry()))
}
