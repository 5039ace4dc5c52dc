package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// knownPyPIIndices are upload endpoints where tokenless publishing is
// supported; a password pointed at a third-party index is not a finding
var knownPyPIIndices = map[string]bool{
	"https://upload.pypi.org/legacy/": true,
	"https://test.pypi.org/legacy/":   true,
}

// checkTrustedPublishing recommends tokenless publishing for packaging
// steps that upload with a manually-configured credential
func checkTrustedPublishing(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	eachJobStep(in, func(_ *workflow.Job, step *workflow.Step) {
		if step.Uses == nil {
			return
		}
		ref, err := uses.Parse(step.Uses.Value)
		if err != nil || ref.Repository == nil {
			return
		}

		var credential *workflow.Value
		switch {
		case ref.Repository.Matches("pypa/gh-action-pypi-publish"):
			password, ok := step.WithValue("password")
			if !ok {
				return
			}
			if repoURL, ok := step.WithValue("repository-url"); ok && !knownPyPIIndices[repoURL.Raw] {
				return
			}
			credential = password
		case ref.Repository.Matches("rubygems/release-gem"):
			setup, ok := step.WithValue("setup-trusted-publisher")
			if !ok || setup.Raw == "true" {
				return
			}
			credential = setup
		case ref.Repository.Matches("rubygems/configure-rubygems-credential"):
			token, ok := step.WithValue("api-token")
			if !ok {
				return
			}
			credential = token
		default:
			return
		}

		findings = append(findings, finding.Finding{
			AuditID:     "use-trusted-publishing",
			Severity:    finding.Informational,
			Confidence:  finding.ConfidenceHigh,
			Description: "package upload uses a manually-configured credential",
			Locations: []finding.Annotation{
				annotate(in.Doc, step.Uses.Node, "this step supports tokenless publishing", false),
				annotate(in.Doc, credential.Node, "uses a manually-configured credential instead of trusted publishing", true),
			},
			Remediation: "Configure a trusted publisher for the package and drop the long-lived credential.",
		})
	})

	return findings
}
