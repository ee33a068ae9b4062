// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the benchtrend CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Benchtrend color palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights
	ColorTealPrimary = lipgloss.Color("#20B9B4") // subtitles
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle: lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:     lipgloss.NewStyle().Bold(true),
	Muted:    lipgloss.NewStyle().Foreground(ColorSlate),
	Success:  lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:  lipgloss.NewStyle().Foreground(ColorWarning),
	Error:    lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconUp      Icon = "↑"
	IconDown    Icon = "↓"
	IconFlat    Icon = "→"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess, IconDown:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError, IconUp:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// machineTag is the line prefix used at PersonalityMachine.
func (i Icon) machineTag() string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// -----------------------------------------------------------------------------
// Printer
// -----------------------------------------------------------------------------

// Printer writes styled output at a fixed personality level. Results go to
// out; warnings and errors go to errOut.
//
// Thread Safety: Not safe for concurrent use.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	level  PersonalityLevel
}

// NewPrinter creates a printer. Nil writers default to os.Stdout and
// os.Stderr.
func NewPrinter(out, errOut io.Writer, level PersonalityLevel) *Printer {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if level == "" {
		level = PersonalityStandard
	}
	return &Printer{out: out, errOut: errOut, level: level}
}

// Stdout creates a printer on the process streams with a detected level.
func Stdout() *Printer {
	return NewPrinter(os.Stdout, os.Stderr, DetectLevel(os.Stdout))
}

// Level returns the printer's personality level.
func (p *Printer) Level() PersonalityLevel { return p.level }

// Out returns the result writer.
func (p *Printer) Out() io.Writer { return p.out }

// Title prints a styled title. Machine output omits it.
func (p *Printer) Title(text string) {
	switch p.level {
	case PersonalityMachine:
		return
	case PersonalityMinimal:
		fmt.Fprintln(p.out, text)
	default:
		fmt.Fprintln(p.out, Styles.Title.Render(text))
	}
}

// Success prints a success message with a checkmark.
func (p *Printer) Success(text string) {
	p.status(p.out, IconSuccess, text, Styles.Success)
}

// Warning prints a warning.
func (p *Printer) Warning(text string) {
	p.status(p.errOut, IconWarning, text, Styles.Warning)
}

// Error prints an error.
func (p *Printer) Error(text string) {
	p.status(p.errOut, IconError, text, Styles.Error)
}

// Info prints an informational message.
func (p *Printer) Info(text string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintln(p.out, text)
	case PersonalityMinimal:
		fmt.Fprintf(p.out, "│ %s\n", text)
	default:
		fmt.Fprintf(p.out, "%s %s\n", Styles.Muted.Render("│"), text)
	}
}

// Muted prints secondary text. Machine output omits it.
func (p *Printer) Muted(text string) {
	switch p.level {
	case PersonalityMachine:
		return
	case PersonalityMinimal:
		fmt.Fprintln(p.out, text)
	default:
		fmt.Fprintln(p.out, Styles.Muted.Render(text))
	}
}

// Status prints one labeled line with an icon, for example a benchmark and
// its trend direction.
func (p *Printer) Status(icon Icon, label, detail string) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(p.out, "%s\t%s\t%s\n", icon.machineTag(), label, detail)
	case PersonalityMinimal:
		fmt.Fprintf(p.out, "%s %s %s\n", icon, label, detail)
	default:
		fmt.Fprintf(p.out, "%s %s %s\n", icon.Render(), Styles.Bold.Render(label), Styles.Muted.Render(detail))
	}
}

// Box prints text in a rounded box.
func (p *Printer) Box(title, content string) {
	p.box(Styles.Box, Styles.Title, title, content)
}

// ErrorBox prints text in an error-styled box on the error stream.
func (p *Printer) ErrorBox(title, content string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.errOut, "ERROR %s: %s\n", title, content)
		return
	}
	p.boxTo(p.errOut, Styles.ErrorBox, Styles.Error.Bold(true), title, content)
}

// Count is one labeled number in a summary line.
type Count struct {
	Label string
	N     int
	Icon  Icon
}

// Summary prints counts on one line, for example "2 error  1 warning".
func (p *Printer) Summary(counts ...Count) {
	if p.level == PersonalityMachine {
		parts := make([]string, 0, len(counts))
		for _, c := range counts {
			parts = append(parts, fmt.Sprintf("%s=%d", strings.ReplaceAll(c.Label, " ", "_"), c.N))
		}
		fmt.Fprintf(p.out, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		n := fmt.Sprintf("%d", c.N)
		if p.level == PersonalityStandard {
			n = styleFor(c.Icon).Render(n)
			parts = append(parts, n+" "+Styles.Muted.Render(c.Label))
			continue
		}
		parts = append(parts, n+" "+c.Label)
	}
	fmt.Fprintf(p.out, "\n%s\n", strings.Join(parts, "  "))
}

func (p *Printer) status(w io.Writer, icon Icon, text string, style lipgloss.Style) {
	switch p.level {
	case PersonalityMachine:
		fmt.Fprintf(w, "%s: %s\n", icon.machineTag(), text)
	case PersonalityMinimal:
		fmt.Fprintf(w, "%s %s\n", icon, text)
	default:
		fmt.Fprintf(w, "%s %s\n", icon.Render(), style.Render(text))
	}
}

func (p *Printer) box(frame, titleStyle lipgloss.Style, title, content string) {
	if p.level == PersonalityMachine {
		fmt.Fprintf(p.out, "%s: %s\n", title, content)
		return
	}
	p.boxTo(p.out, frame, titleStyle, title, content)
}

func (p *Printer) boxTo(w io.Writer, frame, titleStyle lipgloss.Style, title, content string) {
	if p.level == PersonalityMinimal {
		fmt.Fprintf(w, "%s\n%s\n", title, content)
		return
	}
	fmt.Fprintln(w, frame.Width(60).Render(titleStyle.Render(title)+"\n"+content))
}

func styleFor(icon Icon) lipgloss.Style {
	switch icon {
	case IconSuccess:
		return Styles.Success
	case IconWarning:
		return Styles.Warning
	case IconError:
		return Styles.Error
	default:
		return Styles.Bold
	}
}
