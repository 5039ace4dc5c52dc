package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkSecretsInherit flags reusable-workflow calls that pass
// `secrets: inherit`. The called workflow receives every secret the
// caller holds, whether it needs them or not.
func checkSecretsInherit(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	if in.Workflow == nil {
		return nil
	}

	for _, job := range in.Workflow.Jobs {
		if !job.IsReusable() || job.Secrets == nil || !job.Secrets.Inherit {
			continue
		}
		findings = append(findings, finding.Finding{
			AuditID:     "secrets-inherit",
			Severity:    finding.Medium,
			Confidence:  finding.ConfidenceHigh,
			Description: "secrets are unconditionally inherited by the called workflow",
			Locations: []finding.Annotation{
				annotate(in.Doc, job.Uses.Node, "this reusable workflow", true),
				annotate(in.Doc, job.Secrets.Node, "inherits all parent secrets", false),
			},
			Remediation: "Pass only the secrets the called workflow needs with an explicit secrets map.",
		})
	}

	return findings
}
