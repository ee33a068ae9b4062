// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads benchtrend configuration.
//
// Sources apply in order, later ones winning: built-in defaults, the YAML
// file, a .env file, then BENCHTREND_* environment variables. Command-line
// flags are applied by the caller on top of the loaded value.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/benchtrend/services/trend/analysis"
	"github.com/AleutianAI/benchtrend/services/trend/publish"
	"github.com/AleutianAI/benchtrend/services/trend/store"
	"github.com/AleutianAI/benchtrend/services/trend/telemetry"
)

// DefaultFile is read when no path is given and it exists.
const DefaultFile = "benchtrend.yaml"

var (
	// ErrInvalidConfig wraps every parse and validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound indicates an explicitly requested config file is missing.
	ErrNotFound = errors.New("config file not found")
)

var validate = validator.New()

// -----------------------------------------------------------------------------
// Types
// -----------------------------------------------------------------------------

// Config is the full benchtrend configuration.
type Config struct {
	// DataDir holds stored runs.
	DataDir string `yaml:"data_dir" validate:"required"`

	// Backend is "file" or "badger".
	Backend string `yaml:"backend" validate:"oneof=file badger"`

	Badger store.BadgerConfig `yaml:"badger"`
	Influx store.InfluxConfig `yaml:"influx"`

	// RulesFile is a JSON or YAML regression rules file. Empty uses the
	// default rules.
	RulesFile string `yaml:"rules_file"`

	// FailOnSeverity is the lowest severity that fails compare.
	FailOnSeverity string `yaml:"fail_on_severity" validate:"oneof=info warning error critical"`

	Trend      TrendConfig            `yaml:"trend"`
	Dashboard  DashboardConfig        `yaml:"dashboard"`
	Telemetry  telemetry.Config       `yaml:"telemetry"`
	Prometheus PrometheusConfig       `yaml:"prometheus"`
	GCS        publish.UploaderConfig `yaml:"gcs"`
	GitHub     GitHubConfig           `yaml:"github"`
	Server     ServerConfig           `yaml:"server"`
	Log        LogConfig              `yaml:"log"`
	Watch      WatchConfig            `yaml:"watch"`
}

// TrendConfig controls trend analysis.
type TrendConfig struct {
	Metric       string `yaml:"metric" validate:"oneof=mean min max stddev"`
	HistoryLimit int    `yaml:"history_limit"`
}

// DashboardConfig controls the HTML dashboard.
type DashboardConfig struct {
	Output       string `yaml:"output" validate:"required"`
	Charts       bool   `yaml:"charts"`
	ChartBackend string `yaml:"chart_backend" validate:"oneof=svg png none"`
	Concurrency  int    `yaml:"concurrency" validate:"gte=0"`
}

// PrometheusConfig addresses a Pushgateway.
type PrometheusConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job"`
}

// GitHubConfig addresses pull request comments.
type GitHubConfig struct {
	Repo   string `yaml:"repo"`
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url" validate:"omitempty,url"`
}

// ServerConfig controls `benchtrend serve`.
type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// WatchConfig controls `benchtrend watch` and the watcher inside serve.
type WatchConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	MinInterval time.Duration `yaml:"min_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:        ".performance_trends",
		Backend:        store.BackendFile,
		Badger:         store.DefaultBadgerConfig(),
		FailOnSeverity: "error",
		Trend: TrendConfig{
			Metric:       analysis.DefaultMetric,
			HistoryLimit: analysis.DefaultHistoryLimit,
		},
		Dashboard: DashboardConfig{
			Output:       "performance_dashboard.html",
			Charts:       true,
			ChartBackend: "svg",
			Concurrency:  4,
		},
		Telemetry: telemetry.DefaultConfig(),
		Prometheus: PrometheusConfig{
			Job: "benchtrend",
		},
		GCS: publish.UploaderConfig{
			Concurrency: 4,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Watch: WatchConfig{
			Debounce:    250 * time.Millisecond,
			MinInterval: 2 * time.Second,
		},
	}
}

// -----------------------------------------------------------------------------
// Loading
// -----------------------------------------------------------------------------

// Load builds the configuration.
//
// Description:
//
//	Starts from Default, merges the YAML file, loads .env (a missing file is
//	ignored), applies the environment and validates. An empty path reads
//	DefaultFile when present; an explicit path must exist.
//
// Inputs:
//   - path: YAML config file. May be empty.
//
// Outputs:
//   - *Config: The loaded configuration.
//   - error: ErrNotFound, or ErrInvalidConfig wrapping the cause.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.merge(data); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
		}
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge decodes YAML over the current values. Unknown keys are errors.
func (c *Config) merge(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// InfluxTarget returns the Influx mirror configuration, or nil when no URL
// is configured.
func (c *Config) InfluxTarget() *store.InfluxConfig {
	if c.Influx.URL == "" {
		return nil
	}
	influx := c.Influx
	return &influx
}

// StoreOptions returns the store.Open selection for this configuration.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend: c.Backend,
		Dir:     c.DataDir,
		Badger:  c.Badger,
		Influx:  c.InfluxTarget(),
	}
}
