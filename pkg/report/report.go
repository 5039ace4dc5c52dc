/*
Copyright 2025 Ghast Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package report renders findings as plain text, SARIF 2.1.0, or JSON
// and aggregates the run's exit status.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/ghast-sh/ghast/pkg/audit"
	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the overall run
const (
	ExitClean     = 0
	ExitFindings  = 1
	ExitError     = 2
	ExitCancelled = 3
)

// Summary counts findings by severity
type Summary struct {
	High          int `json:"high"`
	Medium        int `json:"medium"`
	Low           int `json:"low"`
	Informational int `json:"informational"`
	Total         int `json:"total"`
}

// Run is everything the reporter needs about one completed run
type Run struct {
	Findings    []finding.Finding
	Suppressed  []finding.Finding
	Diagnostics []audit.Diagnostic
	Documents   map[string]*workflow.Document
	Audits      []audit.Audit
	StartTime   time.Time
	Duration    time.Duration
	Cancelled   bool
}

// Summarize tallies findings by severity
func (r *Run) Summarize() Summary {
	var s Summary
	for _, f := range r.Findings {
		switch f.Severity {
		case finding.High:
			s.High++
		case finding.Medium:
			s.Medium++
		case finding.Low:
			s.Low++
		default:
			s.Informational++
		}
		s.Total++
	}
	return s
}

// ExitCode computes the run's exit status: findings at or above the
// threshold are reported distinctly from runner errors, and
// cancellation wins over both
func (r *Run) ExitCode(minSeverity finding.Severity, strict bool) int {
	if r.Cancelled {
		return ExitCancelled
	}
	if strict && len(r.Diagnostics) > 0 {
		return ExitError
	}
	for _, f := range r.Findings {
		if f.Severity.AtLeast(minSeverity) {
			return ExitFindings
		}
	}
	return ExitClean
}

// Generator renders a run in one of the supported formats
type Generator struct {
	Run    *Run
	Format string
	Out    io.Writer
}

// Generate writes the report to the generator's output stream
func (g *Generator) Generate() error {
	switch g.Format {
	case "plain", "":
		return g.plain()
	case "sarif":
		return g.sarif()
	case "json":
		return g.jsonResults()
	default:
		return fmt.Errorf("unsupported report format: %s", g.Format)
	}
}

var severityStyles = map[finding.Severity]*color.Color{
	finding.High:          color.New(color.FgHiRed, color.Bold),
	finding.Medium:        color.New(color.FgHiYellow, color.Bold),
	finding.Low:           color.New(color.FgYellow),
	finding.Informational: color.New(color.FgBlue),
}

// plain renders one finding per preamble line plus indented annotations
func (g *Generator) plain() error {
	for _, f := range g.Run.Findings {
		primary := f.Primary()
		line, col := 0, 0
		path := ""
		if primary != nil {
			path = primary.Location.Path
			if doc := g.Run.Documents[path]; doc != nil {
				line, col = doc.Position(primary.Location.Span.Start)
			}
		}

		style, ok := severityStyles[f.Severity]
		if !ok {
			style = severityStyles[finding.Informational]
		}
		fmt.Fprintf(g.Out, "%s:%d:%d — %s — %s (%s/%s)\n",
			path, line, col,
			style.Sprint(f.AuditID),
			f.Description,
			f.Severity, f.Confidence)

		for _, ann := range f.Locations {
			annLine, annCol := 0, 0
			var snippet string
			if doc := g.Run.Documents[ann.Location.Path]; doc != nil {
				annLine, annCol = doc.Position(ann.Location.Span.Start)
				snippet = doc.Snippet(ann.Location.Span)
			}
			fmt.Fprintf(g.Out, "    %d:%d  %s\n", annLine, annCol, ann.Message)
			if snippet != "" {
				fmt.Fprintf(g.Out, "         | %s\n", truncate(firstLine(snippet), 100))
			}
		}
		if f.Remediation != "" {
			fmt.Fprintf(g.Out, "    hint: %s\n", f.Remediation)
		}
		fmt.Fprintln(g.Out)
	}

	for _, diag := range g.Run.Diagnostics {
		fmt.Fprintf(g.Out, "note: %s\n", diag.Message)
	}

	g.summaryTable()
	return nil
}

func (g *Generator) summaryTable() {
	summary := g.Run.Summarize()

	table := tablewriter.NewWriter(g.Out)
	table.SetHeader([]string{"Severity", "Count"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_CENTER})
	table.SetBorder(false)

	table.Rich([]string{"High", strconv.Itoa(summary.High)},
		[]tablewriter.Colors{{tablewriter.Bold, tablewriter.FgHiRedColor}, {}})
	table.Rich([]string{"Medium", strconv.Itoa(summary.Medium)},
		[]tablewriter.Colors{{tablewriter.Bold, tablewriter.FgHiYellowColor}, {}})
	table.Rich([]string{"Low", strconv.Itoa(summary.Low)},
		[]tablewriter.Colors{{tablewriter.FgYellowColor}, {}})
	table.Rich([]string{"Informational", strconv.Itoa(summary.Informational)},
		[]tablewriter.Colors{{tablewriter.FgBlueColor}, {}})
	table.Render()

	suppressed := ""
	if n := len(g.Run.Suppressed); n > 0 {
		suppressed = fmt.Sprintf(" (%d suppressed)", n)
	}
	fmt.Fprintf(g.Out, "\n%d findings%s in %s\n",
		summary.Total, suppressed, g.Run.Duration.Round(time.Millisecond))
}

// jsonResults emits the SARIF results array without the wrapper
func (g *Generator) jsonResults() error {
	results := g.sarifResults()
	if results == nil {
		results = []sarifResult{}
	}
	enc := json.NewEncoder(g.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
