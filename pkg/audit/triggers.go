package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// dangerousTriggerNames are triggers that run workflows with access to
// repository secrets against refs an untrusted actor controls
var dangerousTriggerNames = map[string]string{
	"pull_request_target": "runs with write credentials against untrusted pull request refs",
	"workflow_run":        "runs with write credentials, triggered by untrusted workflow runs",
}

func checkDangerousTriggers(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	if in.Workflow == nil {
		return nil
	}

	for _, trigger := range in.Workflow.On.Events {
		message, dangerous := dangerousTriggerNames[trigger.Name]
		if !dangerous {
			continue
		}
		findings = append(findings, finding.Finding{
			AuditID:     "dangerous-triggers",
			Severity:    finding.High,
			Confidence:  finding.ConfidenceHigh,
			Description: "workflow uses a fundamentally insecure trigger",
			Locations: []finding.Annotation{
				annotate(in.Doc, trigger.Node, message, true),
			},
			Remediation: "Prefer the pull_request trigger, or split untrusted input handling into an unprivileged workflow.",
		})
	}

	return findings
}
