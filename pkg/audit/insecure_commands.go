package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

const insecureCommandsVar = "ACTIONS_ALLOW_UNSECURE_COMMANDS"

// checkInsecureCommands flags any env scope that turns the legacy
// workflow commands (set-env, add-path) back on
func checkInsecureCommands(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	wf := in.Workflow
	if wf == nil {
		return nil
	}

	report := func(env *workflow.Env, where string) {
		value, ok := env.Get(insecureCommandsVar)
		if !ok || value == nil || !truthy(value.Raw) {
			return
		}
		findings = append(findings, finding.Finding{
			AuditID:     "insecure-commands",
			Severity:    finding.High,
			Confidence:  finding.ConfidenceHigh,
			Description: "insecure workflow commands are enabled in " + where,
			Locations: []finding.Annotation{
				annotate(in.Doc, value.Node, insecureCommandsVar+" re-enables set-env and add-path", true),
			},
			Remediation: "Remove " + insecureCommandsVar + "; write to GITHUB_ENV and GITHUB_PATH instead.",
		})
	}

	if wf.Env != nil {
		report(wf.Env, "the workflow environment")
	}
	for _, job := range wf.Jobs {
		if job.Env != nil {
			report(job.Env, "job "+job.ID)
		}
		for _, step := range job.Steps {
			if step.Env != nil {
				report(step.Env, "a step of job "+job.ID)
			}
		}
	}

	return findings
}

func truthy(value string) bool {
	switch value {
	case "", "false", "0", "no", "off":
		return false
	}
	return true
}
