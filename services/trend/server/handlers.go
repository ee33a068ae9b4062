// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/snapshot"
	"github.com/AleutianAI/benchtrend/services/trend/store"
)

// defaultRunsLimit caps /api/runs when no limit is given.
const defaultRunsLimit = 20

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is a stable machine-readable code.
	Code string `json:"code,omitempty"`
}

// RunsResponse is the body of GET /api/runs.
type RunsResponse struct {
	Runs []*snapshot.Document `json:"runs"`
}

// HistoryResponse is the body of GET /api/history/:name.
type HistoryResponse struct {
	Benchmark string         `json:"benchmark"`
	Points    []HistoryPoint `json:"points"`
}

// HistoryPoint is one entry of a benchmark's history.
type HistoryPoint struct {
	Timestamp string         `json:"timestamp"`
	Stats     snapshot.Stats `json:"stats"`
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleRuns handles GET /api/runs?limit=N.
//
// Response:
//
//	200 OK: RunsResponse, newest first
//	400 Bad Request: invalid limit
//	500 Internal Server Error: store failure
func (s *Server) handleRuns(c *gin.Context) {
	limit, ok := queryLimit(c, defaultRunsLimit)
	if !ok {
		return
	}

	runs, err := s.store.History(c.Request.Context(), limit)
	if err != nil {
		s.internalError(c, "HISTORY_FAILED", err)
		return
	}

	docs := make([]*snapshot.Document, 0, len(runs))
	for i := range runs {
		docs = append(docs, snapshot.NewDocument(&runs[i]))
	}
	c.JSON(http.StatusOK, RunsResponse{Runs: docs})
}

// handleTrends handles GET /api/trends?metric=&benchmarks=a,b&limit=N.
//
// Response:
//
//	200 OK: analysis.Report
//	400 Bad Request: invalid limit or unsupported metric
//	500 Internal Server Error: store failure
func (s *Server) handleTrends(c *gin.Context) {
	rep, ok := s.analyze(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, rep)
}

// handleHistory handles GET /api/history/:name?limit=N.
func (s *Server) handleHistory(c *gin.Context) {
	name := c.Param("name")
	limit, ok := queryLimit(c, s.cfg.HistoryLimit)
	if !ok {
		return
	}

	points, err := s.store.HistoryFor(c.Request.Context(), name, limit)
	if err != nil {
		s.internalError(c, "HISTORY_FAILED", err)
		return
	}
	if len(points) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no history for benchmark " + name,
			Code:  "NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{Benchmark: name, Points: historyPoints(points)})
}

// handleDashboard handles GET /dashboard with the same query as /api/trends.
func (s *Server) handleDashboard(c *gin.Context) {
	rep, ok := s.analyze(c)
	if !ok {
		return
	}
	page, err := s.dashboard.Render(c.Request.Context(), rep)
	if err != nil {
		s.internalError(c, "RENDER_FAILED", err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", page)
}

func (s *Server) analyze(c *gin.Context) (*analysis.Report, bool) {
	limit, ok := queryLimit(c, s.cfg.HistoryLimit)
	if !ok {
		return nil, false
	}
	metric := c.DefaultQuery("metric", s.cfg.Metric)

	var names []string
	if raw := c.Query("benchmarks"); raw != "" {
		names = strings.Split(raw, ",")
	}

	rep, err := s.analyzer.AnalyzeTrends(c.Request.Context(), analysis.Options{
		Names:        names,
		Metric:       metric,
		HistoryLimit: limit,
	})
	if err != nil {
		if errors.Is(err, analysis.ErrUnsupportedMetric) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "UNSUPPORTED_METRIC"})
			return nil, false
		}
		s.internalError(c, "ANALYSIS_FAILED", err)
		return nil, false
	}
	return rep, true
}

func (s *Server) internalError(c *gin.Context, code string, err error) {
	s.logger.Error("request failed",
		slog.String("path", c.FullPath()),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: code})
}

// queryLimit parses ?limit=, writing a 400 response when invalid.
func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "limit must be a non-negative integer",
			Code:  "INVALID_LIMIT",
		})
		return 0, false
	}
	return n, true
}

func historyPoints(points []store.Point) []HistoryPoint {
	out := make([]HistoryPoint, 0, len(points))
	for _, p := range points {
		out = append(out, HistoryPoint{Timestamp: snapshot.FormatTimestamp(p.Timestamp), Stats: p.Stats})
	}
	return out
}
