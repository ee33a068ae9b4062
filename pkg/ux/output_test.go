// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestPrinter(level PersonalityLevel) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewPrinter(&out, &errOut, level), &out, &errOut
}

// TestParsePersonalityLevel verifies aliases and the fallback.
func TestParsePersonalityLevel(t *testing.T) {
	assert.Equal(t, PersonalityMachine, ParsePersonalityLevel("quiet"))
	assert.Equal(t, PersonalityMachine, ParsePersonalityLevel(" Machine "))
	assert.Equal(t, PersonalityMinimal, ParsePersonalityLevel("min"))
	assert.Equal(t, PersonalityStandard, ParsePersonalityLevel("fancy"))
}

// TestDetectLevel verifies the environment override and non-terminal fallback.
func TestDetectLevel(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	assert.NoError(t, err)
	defer f.Close()

	t.Setenv(EnvOutput, "")
	assert.False(t, IsTerminal(f))
	assert.Equal(t, PersonalityMachine, DetectLevel(f))

	t.Setenv(EnvOutput, "minimal")
	assert.Equal(t, PersonalityMinimal, DetectLevel(f))

	assert.False(t, IsTerminal(nil))
}

// TestPrinter_Machine verifies plain prefixed output and stream routing.
func TestPrinter_Machine(t *testing.T) {
	p, out, errOut := newTestPrinter(PersonalityMachine)

	p.Title("Benchmark Comparison")
	p.Muted("secondary")
	p.Success("no regressions")
	p.Warning("baseline missing")
	p.Error("gate failed")
	p.Status(IconUp, "test_sort", "degrading +20.00%")
	p.Summary(Count{Label: "error", N: 2, Icon: IconError}, Count{Label: "new benchmarks", N: 1})

	assert.Equal(t,
		"OK: no regressions\n"+
			"INFO\ttest_sort\tdegrading +20.00%\n"+
			"SUMMARY: error=2 new_benchmarks=1\n",
		out.String())
	assert.Equal(t, "WARN: baseline missing\nERROR: gate failed\n", errOut.String())
}

// TestPrinter_Minimal verifies icons without boxes.
func TestPrinter_Minimal(t *testing.T) {
	p, out, errOut := newTestPrinter(PersonalityMinimal)

	p.Success("stored run")
	p.Box("Gate", "passed")
	p.ErrorBox("Gate", "failed")

	assert.Equal(t, "✓ stored run\nGate\npassed\n", out.String())
	assert.Equal(t, "Gate\nfailed\n", errOut.String())
}

// TestPrinter_Standard verifies styled output keeps its text.
func TestPrinter_Standard(t *testing.T) {
	p, out, _ := newTestPrinter(PersonalityStandard)

	p.Title("Trend Analysis")
	p.Status(IconDown, "test_fast", "improving")
	p.Box("Gate", "passed")
	p.Summary(Count{Label: "warning", N: 3, Icon: IconWarning})

	s := out.String()
	assert.Contains(t, s, "Trend Analysis")
	assert.Contains(t, s, "test_fast")
	assert.Contains(t, s, "improving")
	assert.Contains(t, s, "passed")
	assert.Contains(t, s, "3")
	assert.Contains(t, s, "warning")
}

// TestNewPrinter_Defaults verifies nil writers and an empty level.
func TestNewPrinter_Defaults(t *testing.T) {
	p := NewPrinter(nil, nil, "")
	assert.Equal(t, PersonalityStandard, p.Level())
	assert.Equal(t, os.Stdout, p.Out())
}
