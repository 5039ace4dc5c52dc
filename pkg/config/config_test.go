package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ghast-sh/ghast/pkg/finding"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".ghast.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingIsDefault(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.RuleEnabled("anything") {
		t.Error("default config should enable everything")
	}
}

func TestLoadInvalidSeverity(t *testing.T) {
	path := writeConfig(t, "rules:\n  artipacked:\n    severity-override: catastrophic\n")
	if _, err := Load(path); err == nil {
		t.Error("invalid severity-override should fail")
	}
}

func TestLoadInvalidGlob(t *testing.T) {
	path := writeConfig(t, "rules:\n  artipacked:\n    ignore:\n      - path-glob: '[broken'\n")
	if _, err := Load(path); err == nil {
		t.Error("invalid glob should fail")
	}
}

func sampleFinding(auditID, path string) finding.Finding {
	return finding.Finding{
		AuditID:     auditID,
		Severity:    finding.Medium,
		Confidence:  finding.ConfidenceHigh,
		Description: "test finding",
		Locations: []finding.Annotation{{
			Location: finding.Location{Path: path, Span: finding.Span{Start: 0, End: 1}},
			Primary:  true,
		}},
	}
}

func TestApplyDisabled(t *testing.T) {
	path := writeConfig(t, "rules:\n  artipacked:\n    enabled: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	out := cfg.Apply([]finding.Finding{
		sampleFinding("artipacked", "a.yml"),
		sampleFinding("unpinned-uses", "a.yml"),
	})
	if len(out) != 1 || out[0].AuditID != "unpinned-uses" {
		t.Errorf("disabled audit not dropped: %+v", out)
	}
	if cfg.RuleEnabled("artipacked") {
		t.Error("RuleEnabled should report the audit disabled")
	}
}

func TestApplySeverityOverride(t *testing.T) {
	path := writeConfig(t, "rules:\n  artipacked:\n    severity-override: high\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	out := cfg.Apply([]finding.Finding{sampleFinding("artipacked", "a.yml")})
	if len(out) != 1 || out[0].Severity != finding.High {
		t.Errorf("severity override not applied: %+v", out)
	}
}

func TestApplyIgnoreGlobs(t *testing.T) {
	path := writeConfig(t, `rules:
  unpinned-uses:
    ignore:
      - path-glob: "**/test/**"
      - path-glob: "docs/**"
        audit-ids: [unpinned-uses]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	out := cfg.Apply([]finding.Finding{
		sampleFinding("unpinned-uses", "repo/test/wf.yml"),
		sampleFinding("unpinned-uses", "docs/wf.yml"),
		sampleFinding("unpinned-uses", "src/wf.yml"),
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving finding, got %d", len(out))
	}
	if out[0].Primary().Location.Path != "src/wf.yml" {
		t.Errorf("wrong finding survived: %+v", out[0])
	}
}
