package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

const impostorAnnotation = "uses a commit that is not present on the claimant repository"

// checkImpostorCommit verifies that every hash-pinned reference is
// reachable on the repository it names. A commit that resolves only
// through the fork network can impersonate the upstream action.
func checkImpostorCommit(ctx context.Context, in *workflow.Input, rs *Resources) []finding.Finding {
	if !rs.Online() {
		return nil
	}

	var findings []finding.Finding

	inspect := func(usesStr *workflow.String) {
		if usesStr == nil {
			return
		}
		ref, err := uses.Parse(usesStr.Value)
		if err != nil || ref.Repository == nil || !ref.Repository.IsHashPinned() {
			return
		}

		present, err := rs.Client.CommitPresent(ctx, ref.Repository.Owner, ref.Repository.Repo, ref.Repository.Ref)
		if err != nil {
			rs.Log.Info("impostor-commit: lookup failed, result unknown",
				"uses", usesStr.Value, "error", err)
			return
		}
		if present {
			return
		}

		findings = append(findings, finding.Finding{
			AuditID:     "impostor-commit",
			Severity:    finding.High,
			Confidence:  finding.ConfidenceHigh,
			Description: "pinned commit has no history in the referenced repository",
			Locations: []finding.Annotation{
				annotate(in.Doc, usesStr.Node, impostorAnnotation, true),
			},
			Remediation: "Re-pin the action to a commit taken from the upstream repository's own history.",
		})
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
