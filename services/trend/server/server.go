// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes stored runs, trend analyses and the dashboard
// over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/report"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

// ErrNotRunning is reported by Health before Start or after Stop.
var ErrNotRunning = errors.New("server: not running")

// Config controls the HTTP server.
type Config struct {
	// Addr is the listen address. Default: ":8080".
	Addr string `yaml:"addr"`

	// Metric is the default metric for /api/trends and /dashboard.
	Metric string `yaml:"metric"`

	// HistoryLimit is the default history limit.
	HistoryLimit int `yaml:"history_limit"`

	// ShutdownTimeout bounds graceful shutdown when Stop's ctx has no deadline.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		Metric:          analysis.DefaultMetric,
		HistoryLimit:    analysis.DefaultHistoryLimit,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithAnalyzer overrides the analyzer built over the store.
func WithAnalyzer(a *analysis.Analyzer) Option {
	return func(s *Server) {
		if a != nil {
			s.analyzer = a
		}
	}
}

// WithDashboard sets the dashboard renderer for /dashboard.
func WithDashboard(d *report.Dashboard) Option {
	return func(s *Server) {
		if d != nil {
			s.dashboard = d
		}
	}
}

// WithMetricsHandler sets the /metrics handler. Default: promhttp.Handler().
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		if h != nil {
			s.metrics = h
		}
	}
}

// Server serves the benchtrend HTTP API. It implements registry.Service.
//
// Thread Safety: Safe for concurrent use.
type Server struct {
	cfg       Config
	store     store.Store
	analyzer  *analysis.Analyzer
	dashboard *report.Dashboard
	metrics   http.Handler
	logger    *slog.Logger
	engine    *gin.Engine

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	serveErr chan error
}

// New builds a server over st.
func New(st store.Store, cfg Config, opts ...Option) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Metric == "" {
		cfg.Metric = def.Metric
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	s := &Server{
		cfg:       cfg,
		store:     st,
		dashboard: &report.Dashboard{},
		metrics:   promhttp.Handler(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.analyzer == nil {
		s.analyzer = analysis.NewAnalyzer(st, analysis.WithLogger(s.logger))
	}
	s.engine = s.router()
	return s
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("benchtrend"))
	r.Use(requestLogger(s.logger))

	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics))
	r.GET("/dashboard", s.handleDashboard)

	api := r.Group("/api")
	api.GET("/runs", s.handleRuns)
	api.GET("/trends", s.handleTrends)
	api.GET("/history/:name", s.handleHistory)
	return r
}

// requestLogger logs one debug line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// Name implements registry.Service.
func (s *Server) Name() string { return "server" }

// Start binds the listen address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.http != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serveErr = make(chan error, 1)

	srv, done := s.http, s.serveErr
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
		close(done)
	}()

	s.logger.Info("http server listening", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.http, s.serveErr
	s.http, s.listener, s.serveErr = nil, nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return <-done
}

// Health implements registry.Service.
func (s *Server) Health(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http == nil {
		return ErrNotRunning
	}
	return nil
}
