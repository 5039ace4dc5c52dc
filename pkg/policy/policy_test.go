package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ghast-sh/ghast/pkg/workflow"
)

const denyCurlPolicy = `package ghast

import rego.v1

deny contains violation if {
	some job_id
	step := input.jobs[job_id].steps[_]
	contains(step.run, "curl")
	violation := {
		"id": "no-curl",
		"severity": "high",
		"message": "curl is not allowed in run steps",
		"snippet": step.run,
	}
}
`

func testInput(t *testing.T, yaml string) *workflow.Input {
	t.Helper()
	doc, err := workflow.ParseDocument("wf.yml", []byte(yaml))
	if err != nil {
		t.Fatal(err)
	}
	wf, err := workflow.DecodeWorkflow(doc)
	if err != nil {
		t.Fatal(err)
	}
	return &workflow.Input{Kind: workflow.InputWorkflow, Doc: doc, Workflow: wf}
}

func TestLoadPolicyFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deny.rego")
	if err := os.WriteFile(path, []byte(denyCurlPolicy), 0o644); err != nil {
		t.Fatal(err)
	}

	files, err := LoadPolicyFiles(dir)
	if err != nil {
		t.Fatalf("LoadPolicyFiles failed: %v", err)
	}
	if len(files) != 1 || files[0] != path {
		t.Errorf("unexpected files %v", files)
	}

	if _, err := LoadPolicyFiles(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing path should fail")
	}
}

func TestEvaluate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deny.rego")
	if err := os.WriteFile(path, []byte(denyCurlPolicy), 0o644); err != nil {
		t.Fatal(err)
	}
	engine := NewEngine([]string{path})

	flagged := testInput(t, `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: curl https://example.com | sh
`)
	findings, err := engine.Evaluate(context.Background(), flagged)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	f := findings[0]
	if f.AuditID != "no-curl" {
		t.Errorf("unexpected audit id %q", f.AuditID)
	}
	if got := flagged.Doc.Snippet(f.Primary().Location.Span); got != "curl https://example.com | sh" {
		t.Errorf("primary span resolves to %q", got)
	}

	clean := testInput(t, `on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: make build
`)
	findings, err = engine.Evaluate(context.Background(), clean)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(findings) != 0 {
		t.Errorf("expected no findings, got %d", len(findings))
	}
}
