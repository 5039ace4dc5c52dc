package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkRefConfusion flags symbolic refs that the upstream repository
// provides in both the branch and tag namespaces. Which one the
// platform selects is ambiguous, and an attacker who can create the
// missing one can redirect the pin.
func checkRefConfusion(ctx context.Context, in *workflow.Input, rs *Resources) []finding.Finding {
	if !rs.Online() {
		return nil
	}

	var findings []finding.Finding

	inspect := func(usesStr *workflow.String) {
		if usesStr == nil {
			return
		}
		ref, err := uses.Parse(usesStr.Value)
		if err != nil || ref.Repository == nil {
			return
		}
		sym, ok := ref.Repository.SymbolicRef()
		if !ok {
			return
		}

		confusable, err := rs.Client.RefConfusable(ctx, ref.Repository.Owner, ref.Repository.Repo, sym)
		if err != nil {
			rs.Log.Info("ref-confusion: lookup failed, result unknown",
				"uses", usesStr.Value, "error", err)
			return
		}
		if !confusable {
			return
		}

		findings = append(findings, finding.Finding{
			AuditID:     "ref-confusion",
			Severity:    finding.Medium,
			Confidence:  finding.ConfidenceHigh,
			Description: "action ref is provided by both the branch and tag namespaces",
			Locations: []finding.Annotation{
				annotate(in.Doc, usesStr.Node, "ref "+sym+" is ambiguous between a branch and a tag", true),
			},
			Remediation: "Pin the action to a full commit hash to remove the ambiguity.",
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
