package audit

import (
	"context"
	"strings"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkSelfHostedRunner flags jobs that target self-hosted runners.
// Self-hosted runners on public repositories execute untrusted code on
// infrastructure the platform does not isolate. Pedantic only.
func checkSelfHostedRunner(_ context.Context, in *workflow.Input, rs *Resources) []finding.Finding {
	var findings []finding.Finding

	if in.Workflow == nil || !rs.Pedantic {
		return nil
	}

	for _, job := range in.Workflow.Jobs {
		if job.RunsOn == nil {
			continue
		}

		for _, label := range job.RunsOn.Labels {
			if label == nil || !strings.EqualFold(label.Value, "self-hosted") {
				continue
			}
			findings = append(findings, finding.Finding{
				AuditID:     "self-hosted-runner",
				Severity:    finding.Medium,
				Confidence:  finding.ConfidenceHigh,
				Description: "job runs on a self-hosted runner",
				Locations: []finding.Annotation{
					annotate(in.Doc, label.Node, "self-hosted label selects unisolated infrastructure", true),
				},
				Remediation: "Restrict the workflow to trusted triggers, or isolate the runner from production credentials.",
			})
			break
		}

		if job.RunsOn.Group != nil && len(job.RunsOn.GroupLabels) == 0 {
			findings = append(findings, finding.Finding{
				AuditID:     "self-hosted-runner",
				Severity:    finding.Medium,
				Confidence:  finding.ConfidenceLow,
				Description: "job targets a runner group without label guards",
				Locations: []finding.Annotation{
					annotate(in.Doc, job.RunsOn.Group.Node, "runner group has no trusted-label constraint", true),
				},
				Remediation: "Add a labels constraint alongside the group selector.",
			})
		}
	}

	return findings
}
