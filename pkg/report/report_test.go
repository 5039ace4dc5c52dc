package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ghast-sh/ghast/pkg/audit"
	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

const reportSample = `on: pull_request_target
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout
`

func sampleRun(t *testing.T) *Run {
	t.Helper()
	doc, err := workflow.ParseDocument(".github/workflows/ci.yml", []byte(reportSample))
	if err != nil {
		t.Fatal(err)
	}

	span := doc.SubSpan(finding.Span{Start: 0, End: len(doc.Raw)}, "pull_request_target")
	findings := []finding.Finding{{
		AuditID:     "dangerous-triggers",
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Description: "workflow uses a fundamentally insecure trigger",
		Locations: []finding.Annotation{{
			Location: finding.Location{Path: doc.Path, Span: span},
			Message:  "runs with write credentials against untrusted pull request refs",
			Primary:  true,
		}},
	}}

	return &Run{
		Findings:  findings,
		Documents: map[string]*workflow.Document{doc.Path: doc},
		Audits:    audit.Registry(),
		StartTime: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Duration:  420 * time.Millisecond,
		Diagnostics: []audit.Diagnostic{{
			AuditID: "impostor-commit",
			Path:    doc.Path,
			Message: "audit impostor-commit skipped: requires online access",
		}},
	}
}

func TestPlainOutput(t *testing.T) {
	run := sampleRun(t)
	var out bytes.Buffer
	g := &Generator{Run: run, Format: "plain", Out: &out}
	if err := g.Generate(); err != nil {
		t.Fatal(err)
	}

	text := out.String()
	if !strings.Contains(text, ".github/workflows/ci.yml:1:5") {
		t.Errorf("missing file:line:col preamble in output:\n%s", text)
	}
	if !strings.Contains(text, "dangerous-triggers") {
		t.Error("missing audit id in output")
	}
	if !strings.Contains(text, "note: audit impostor-commit skipped") {
		t.Error("missing diagnostic note in output")
	}
	if !strings.Contains(text, "1 findings") {
		t.Error("missing summary line")
	}
}

func TestSARIFOutput(t *testing.T) {
	run := sampleRun(t)
	var out bytes.Buffer
	g := &Generator{Run: run, Format: "sarif", Out: &out}
	if err := g.Generate(); err != nil {
		t.Fatal(err)
	}

	var doc struct {
		Version string `json:"version"`
		Schema  string `json:"$schema"`
		Runs    []struct {
			Tool struct {
				Driver struct {
					Name  string `json:"name"`
					Rules []struct {
						ID      string `json:"id"`
						HelpURI string `json:"helpUri"`
					} `json:"rules"`
				} `json:"driver"`
			} `json:"tool"`
			Invocations []struct {
				ExecutionSuccessful        bool `json:"executionSuccessful"`
				ToolExecutionNotifications []struct {
					Message struct {
						Text string `json:"text"`
					} `json:"message"`
				} `json:"toolExecutionNotifications"`
			} `json:"invocations"`
			Results []struct {
				RuleID    string `json:"ruleId"`
				Level     string `json:"level"`
				Locations []struct {
					PhysicalLocation struct {
						ArtifactLocation struct {
							URI string `json:"uri"`
						} `json:"artifactLocation"`
						Region struct {
							StartLine  int `json:"startLine"`
							ByteOffset int `json:"byteOffset"`
							ByteLength int `json:"byteLength"`
						} `json:"region"`
					} `json:"physicalLocation"`
				} `json:"locations"`
				PartialFingerprints map[string]string `json:"partialFingerprints"`
			} `json:"results"`
		} `json:"runs"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("SARIF output is not valid JSON: %v", err)
	}

	if doc.Version != "2.1.0" {
		t.Errorf("version = %q", doc.Version)
	}
	if len(doc.Runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(doc.Runs))
	}
	run0 := doc.Runs[0]
	if run0.Tool.Driver.Name != "ghast" {
		t.Errorf("driver name = %q", run0.Tool.Driver.Name)
	}
	if len(run0.Tool.Driver.Rules) != len(audit.Registry()) {
		t.Errorf("expected rule metadata for every audit, got %d", len(run0.Tool.Driver.Rules))
	}
	for _, rule := range run0.Tool.Driver.Rules {
		if rule.HelpURI == "" {
			t.Errorf("rule %s lacks a help URI", rule.ID)
		}
	}

	if len(run0.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(run0.Results))
	}
	result := run0.Results[0]
	if result.RuleID != "dangerous-triggers" || result.Level != "error" {
		t.Errorf("unexpected result %+v", result)
	}
	region := result.Locations[0].PhysicalLocation.Region
	if region.StartLine != 1 || region.ByteLength != len("pull_request_target") {
		t.Errorf("unexpected region %+v", region)
	}
	if result.Locations[0].PhysicalLocation.ArtifactLocation.URI != ".github/workflows/ci.yml" {
		t.Errorf("unexpected artifact URI %q", result.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	}
	if _, ok := result.PartialFingerprints["ghast/v1"]; !ok {
		t.Error("missing partial fingerprint")
	}

	if len(run0.Invocations) != 1 || len(run0.Invocations[0].ToolExecutionNotifications) != 1 {
		t.Fatalf("diagnostics should appear as tool execution notifications")
	}
}

func TestJSONOutputIsResultsArray(t *testing.T) {
	run := sampleRun(t)
	var out bytes.Buffer
	g := &Generator{Run: run, Format: "json", Out: &out}
	if err := g.Generate(); err != nil {
		t.Fatal(err)
	}

	var results []map[string]any
	if err := json.Unmarshal(out.Bytes(), &results); err != nil {
		t.Fatalf("JSON output is not an array: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0]["ruleId"] != "dangerous-triggers" {
		t.Errorf("unexpected ruleId %v", results[0]["ruleId"])
	}
}

func TestFingerprintStability(t *testing.T) {
	a := fingerprint("audit", "x.yml", "snippet")
	b := fingerprint("audit", "x.yml", "snippet")
	if a != b {
		t.Error("fingerprint is not deterministic")
	}
	if a == fingerprint("audit", "x.yml", "other") {
		t.Error("fingerprint ignores the snippet")
	}
}

func TestExitCodes(t *testing.T) {
	run := sampleRun(t)

	if code := run.ExitCode(finding.Informational, false); code != ExitFindings {
		t.Errorf("findings should yield exit %d, got %d", ExitFindings, code)
	}
	// Threshold above every finding: clean.
	run2 := &Run{Findings: []finding.Finding{{AuditID: "a", Severity: finding.Low}}}
	if code := run2.ExitCode(finding.High, false); code != ExitClean {
		t.Errorf("filtered run should be clean, got %d", code)
	}

	strictRun := &Run{Diagnostics: []audit.Diagnostic{{Message: "x"}}}
	if code := strictRun.ExitCode(finding.Informational, true); code != ExitError {
		t.Errorf("strict diagnostics should yield exit %d, got %d", ExitError, code)
	}
	if code := strictRun.ExitCode(finding.Informational, false); code != ExitClean {
		t.Errorf("non-strict diagnostics should be clean, got %d", code)
	}

	cancelled := &Run{Cancelled: true}
	if code := cancelled.ExitCode(finding.Informational, false); code != ExitCancelled {
		t.Errorf("cancelled run should yield exit %d, got %d", ExitCancelled, code)
	}
}

func TestSummarize(t *testing.T) {
	run := &Run{Findings: []finding.Finding{
		{Severity: finding.High},
		{Severity: finding.High},
		{Severity: finding.Medium},
		{Severity: finding.Informational},
	}}
	s := run.Summarize()
	if s.High != 2 || s.Medium != 1 || s.Informational != 1 || s.Total != 4 {
		t.Errorf("unexpected summary %+v", s)
	}
}
