// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry manages the lifecycle of long-running benchtrend
// services, such as the HTTP server and the data directory watcher.
//
// Services start in registration order and stop in reverse order.
// Dependencies are passed in explicitly; there is no global registry.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrServiceNotFound is returned when a name is not registered.
	ErrServiceNotFound = errors.New("service not found")

	// ErrDuplicateService is returned when a name is already registered.
	ErrDuplicateService = errors.New("service already registered")

	// ErrNilService is returned when registering a nil service.
	ErrNilService = errors.New("service is nil")
)

// Service is a component with a managed lifecycle.
type Service interface {
	// Name returns a unique, stable identifier.
	Name() string

	// Start begins serving. It must return once the service is running;
	// long-running work belongs in goroutines owned by the service.
	Start(ctx context.Context) error

	// Stop shuts the service down, honoring ctx's deadline.
	Stop(ctx context.Context) error

	// Health returns nil when the service is working.
	Health(ctx context.Context) error
}

// HealthStatus is the outcome of a health check.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// HealthResult reports the health of one service.
type HealthResult struct {
	Service   string        `json:"service"`
	Status    HealthStatus  `json:"status"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration_ns"`
	Timestamp time.Time     `json:"timestamp"`
}

// Registry tracks services and their lifecycle state.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
	order    []string
	running  map[string]bool
	logger   *slog.Logger
}

// New creates an empty registry. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		services: make(map[string]Service),
		running:  make(map[string]bool),
		logger:   logger,
	}
}

// Register adds a service.
//
// Outputs:
//   - error: ErrNilService, or ErrDuplicateService if the name is taken.
//
// Thread Safety: Safe for concurrent use.
func (r *Registry) Register(s Service) error {
	if s == nil {
		return ErrNilService
	}
	name := s.Name()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateService, name)
	}
	r.services[name] = s
	r.order = append(r.order, name)
	return nil
}

// Unregister removes a service. A running service is not stopped.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[name]; !exists {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	delete(r.services, name)
	delete(r.running, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns a service by name.
func (r *Registry) Get(name string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.services[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return s, nil
}

// List returns service names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Running reports whether a service was started and not yet stopped.
func (r *Registry) Running(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running[name]
}

// StartAll starts every registered service in registration order.
//
// Description:
//
//	With failFast, the first failure stops the services already started
//	and is returned. Otherwise every service is attempted and the failures
//	are joined.
//
// Inputs:
//   - ctx: Passed to each Start.
//   - failFast: Abort on first failure.
//
// Outputs:
//   - error: nil when all services started.
func (r *Registry) StartAll(ctx context.Context, failFast bool) error {
	var errs []error
	var started []string

	for _, name := range r.List() {
		s, err := r.Get(name)
		if err != nil {
			continue
		}
		if err := s.Start(ctx); err != nil {
			r.logger.Error("service failed to start",
				slog.String("service", name),
				slog.String("error", err.Error()),
			)
			if failFast {
				_ = r.stop(ctx, started)
				return fmt.Errorf("starting %s: %w", name, err)
			}
			errs = append(errs, fmt.Errorf("starting %s: %w", name, err))
			continue
		}

		r.mu.Lock()
		r.running[name] = true
		r.mu.Unlock()
		started = append(started, name)
		r.logger.Info("service started", slog.String("service", name))
	}
	return errors.Join(errs...)
}

// StopAll stops running services in reverse registration order. Every
// service is attempted; failures are joined.
func (r *Registry) StopAll(ctx context.Context) error {
	return r.stop(ctx, r.List())
}

func (r *Registry) stop(ctx context.Context, names []string) error {
	var errs []error
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		if !r.Running(name) {
			continue
		}
		s, err := r.Get(name)
		if err != nil {
			continue
		}
		if err := s.Stop(ctx); err != nil {
			r.logger.Warn("service failed to stop",
				slog.String("service", name),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("stopping %s: %w", name, err))
		}
		r.mu.Lock()
		r.running[name] = false
		r.mu.Unlock()
		r.logger.Info("service stopped", slog.String("service", name))
	}
	return errors.Join(errs...)
}

// HealthCheckAll checks every service concurrently. Results are sorted by
// service name.
func (r *Registry) HealthCheckAll(ctx context.Context) []HealthResult {
	names := r.List()
	results := make([]HealthResult, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		s, err := r.Get(name)
		if err != nil {
			results[i] = HealthResult{Service: name, Status: HealthUnknown, Message: err.Error(), Timestamp: time.Now()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()

			start := time.Now()
			err := s.Health(ctx)
			result := HealthResult{
				Service:   name,
				Duration:  time.Since(start),
				Timestamp: time.Now(),
				Status:    HealthHealthy,
				Message:   "OK",
			}
			if err != nil {
				result.Status = HealthUnhealthy
				result.Message = err.Error()
			}
			results[i] = result
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool {
		return results[i].Service < results[j].Service
	})
	return results
}

// Summary renders one line per service: name, running state and health.
func (r *Registry) Summary(ctx context.Context) string {
	var sb strings.Builder
	for _, h := range r.HealthCheckAll(ctx) {
		state := "stopped"
		if r.Running(h.Service) {
			state = "running"
		}
		fmt.Fprintf(&sb, "%-12s %-8s %s\n", h.Service, state, h.Status)
	}
	return sb.String()
}
