package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkKnownVulnerable looks up each referenced action in the advisory
// database and reports matches with the advisory's own severity
func checkKnownVulnerable(ctx context.Context, in *workflow.Input, rs *Resources) []finding.Finding {
	if !rs.Online() || rs.Advisories == nil {
		return nil
	}

	var findings []finding.Finding
	seen := map[string]bool{}

	inspect := func(usesStr *workflow.String) {
		if usesStr == nil {
			return
		}
		ref, err := uses.Parse(usesStr.Value)
		if err != nil || ref.Repository == nil {
			return
		}
		if seen[usesStr.Value] {
			return
		}
		seen[usesStr.Value] = true

		advisories, err := rs.Advisories.Query(ctx, ref.Repository.Owner+"/"+ref.Repository.Repo, ref.Repository.Ref)
		if err != nil {
			rs.Log.Info("known-vulnerable-actions: lookup failed, result unknown",
				"uses", usesStr.Value, "error", err)
			return
		}

		for _, adv := range advisories {
			severity, ok := finding.ParseSeverity(adv.Severity)
			if !ok {
				severity = advisorySeverity(adv.Severity)
			}
			findings = append(findings, finding.Finding{
				AuditID:     "known-vulnerable-actions",
				Severity:    severity,
				Confidence:  finding.ConfidenceHigh,
				Description: adv.ID + ": " + adv.Summary,
				Locations: []finding.Annotation{
					annotate(in.Doc, usesStr.Node, "version has advisory "+adv.ID, true),
				},
				Remediation: "Update to a release that addresses " + adv.ID + ".",
			})
		}
	}

	eachStep(in, func(step *workflow.Step) {
		inspect(step.Uses)
	})
	if in.Workflow != nil {
		for _, job := range in.Workflow.Jobs {
			if job.IsReusable() {
				inspect(job.Uses)
			}
		}
	}

	return findings
}

// advisorySeverity maps database severity labels onto the local scale
func advisorySeverity(label string) finding.Severity {
	switch label {
	case "critical", "CRITICAL", "high", "HIGH":
		return finding.High
	case "moderate", "MODERATE", "medium", "MEDIUM":
		return finding.Medium
	case "low", "LOW":
		return finding.Low
	}
	return finding.Medium
}
