package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkUnpinnedUses flags action references that carry no ref at all,
// docker images without a tag or digest, and, in pedantic mode,
// symbolic refs that are not full commit hashes. Local references are
// skipped: they are controlled by the repository itself.
func checkUnpinnedUses(_ context.Context, in *workflow.Input, rs *Resources) []finding.Finding {
	var findings []finding.Finding

	inspect := func(usesStr *workflow.String) {
		if usesStr == nil {
			return
		}
		ref, err := uses.Parse(usesStr.Value)
		if err != nil || ref.Local != nil {
			return
		}

		switch {
		case ref.Repository != nil && !ref.Repository.IsPinned():
			findings = append(findings, finding.Finding{
				AuditID:     "unpinned-uses",
				Severity:    finding.Medium,
				Confidence:  finding.ConfidenceHigh,
				Description: "action reference is not pinned",
				Locations: []finding.Annotation{
					annotate(in.Doc, usesStr.Node, "is not pinned to a tag, branch, or hash ref", true),
				},
				Remediation: "Pin the action to a full commit hash.",
			})
		case ref.Repository != nil && !ref.Repository.IsHashPinned() && rs.Pedantic:
			findings = append(findings, finding.Finding{
				AuditID:     "unpinned-uses",
				Severity:    finding.Low,
				Confidence:  finding.ConfidenceHigh,
				Description: "action reference is not hash-pinned",
				Locations: []finding.Annotation{
					annotate(in.Doc, usesStr.Node, "is not pinned to a full commit hash", true),
				},
				Remediation: "Pin the action to a full commit hash.",
			})
		case ref.Docker != nil && !ref.Docker.IsPinned():
			findings = append(findings, finding.Finding{
				AuditID:     "unpinned-uses",
				Severity:    finding.Medium,
				Confidence:  finding.ConfidenceHigh,
				Description: "container action image is not pinned",
				Locations: []finding.Annotation{
					annotate(in.Doc, usesStr.Node, "image has no tag or digest", true),
				},
				Remediation: "Pin the image to a tag or, better, a digest.",
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
