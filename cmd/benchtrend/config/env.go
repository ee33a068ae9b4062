// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads a .env file into the process environment. Variables
// already set are left alone and a missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return nil
}

// ApplyEnv overrides fields from BENCHTREND_* variables and the standard
// GitHub, Google and InfluxDB variables.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("BENCHTREND_DATA_DIR", &c.DataDir)
	str("BENCHTREND_BACKEND", &c.Backend)
	str("BENCHTREND_RULES_FILE", &c.RulesFile)
	str("BENCHTREND_FAIL_ON_SEVERITY", &c.FailOnSeverity)
	str("BENCHTREND_METRIC", &c.Trend.Metric)
	str("BENCHTREND_DASHBOARD_OUTPUT", &c.Dashboard.Output)
	str("BENCHTREND_CHART_BACKEND", &c.Dashboard.ChartBackend)
	str("BENCHTREND_SERVER_ADDR", &c.Server.Addr)
	str("BENCHTREND_LOG_LEVEL", &c.Log.Level)
	str("BENCHTREND_LOG_DIR", &c.Log.Dir)

	str("BENCHTREND_INFLUX_URL", &c.Influx.URL)
	str("BENCHTREND_INFLUX_TOKEN", &c.Influx.Token)
	str("BENCHTREND_INFLUX_ORG", &c.Influx.Org)
	str("BENCHTREND_INFLUX_BUCKET", &c.Influx.Bucket)

	str("BENCHTREND_PUSHGATEWAY_URL", &c.Prometheus.PushgatewayURL)
	str("BENCHTREND_PUSH_JOB", &c.Prometheus.Job)

	str("BENCHTREND_GCS_BUCKET", &c.GCS.Bucket)
	str("BENCHTREND_GCS_PREFIX", &c.GCS.Prefix)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.GCS.CredentialsFile)

	str("GITHUB_REPOSITORY", &c.GitHub.Repo)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("GITHUB_API_URL", &c.GitHub.APIURL)

	if err := envInt(lookup, "BENCHTREND_HISTORY_LIMIT", &c.Trend.HistoryLimit); err != nil {
		return err
	}
	if err := envBool(lookup, "BENCHTREND_CHARTS", &c.Dashboard.Charts); err != nil {
		return err
	}
	if err := envBool(lookup, "BENCHTREND_LOG_JSON", &c.Log.JSON); err != nil {
		return err
	}
	return envDuration(lookup, "BENCHTREND_WATCH_DEBOUNCE", &c.Watch.Debounce)
}

func envInt(lookup LookupFunc, key string, dst *int) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	*dst = n
	return nil
}

func envBool(lookup LookupFunc, key string, dst *bool) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	*dst = b
	return nil
}

func envDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	v, ok := lookup(key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
	*dst = d
	return nil
}
