package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/expr"
	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkContainerCredentials flags container and service registry
// passwords written as literal strings instead of secret expansions
func checkContainerCredentials(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	if in.Workflow == nil {
		return nil
	}

	for _, job := range in.Workflow.Jobs {
		if job.Container != nil {
			findings = append(findings, hardcodedPassword(in, job.Container, "container")...)
		}
		for _, svc := range job.Services {
			findings = append(findings, hardcodedPassword(in, svc.Container, "service "+svc.Name)...)
		}
	}

	return findings
}

func hardcodedPassword(in *workflow.Input, container *workflow.Container, where string) []finding.Finding {
	if container == nil || container.Credentials == nil || container.Credentials.Password == nil {
		return nil
	}

	password := container.Credentials.Password
	if isSecretExpansion(password.Raw) {
		return nil
	}

	return []finding.Finding{{
		AuditID:     "hardcoded-container-credentials",
		Severity:    finding.High,
		Confidence:  finding.ConfidenceHigh,
		Description: "registry password for " + where + " is hardcoded in the workflow",
		Locations: []finding.Annotation{
			annotate(in.Doc, password.Node, "password is a literal string", true),
		},
		Remediation: "Store the password as a repository secret and reference it with ${{ secrets.NAME }}.",
	}}
}

// isSecretExpansion reports whether a value consists of a template
// expansion reading from the secrets context
func isSecretExpansion(value string) bool {
	expansions := expr.Extract(value)
	if len(expansions) == 0 {
		return false
	}
	for _, exp := range expansions {
		parsed, err := exp.Parse()
		if err != nil {
			return false
		}
		for _, ctx := range expr.Contexts(parsed) {
			if !expr.IsSecret(ctx) {
				return false
			}
		}
	}
	return true
}
