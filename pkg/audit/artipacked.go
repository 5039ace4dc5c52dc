package audit

import (
	"context"
	"strings"

	"github.com/ghast-sh/ghast/pkg/expr"
	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkArtipacked flags checkout steps that persist credentials into
// the workspace while the same job uploads workspace contents as an
// artifact. The persisted .git/config token travels with the artifact.
func checkArtipacked(_ context.Context, in *workflow.Input, rs *Resources) []finding.Finding {
	var findings []finding.Finding

	if in.Workflow == nil {
		return nil
	}

	for _, job := range in.Workflow.Jobs {
		if job.IsReusable() {
			continue
		}

		var checkouts []*workflow.Step
		var uploads []*workflow.Step

		for _, step := range job.Steps {
			if step.Uses == nil {
				continue
			}
			ref, err := uses.Parse(step.Uses.Value)
			if err != nil || ref.Repository == nil {
				continue
			}

			switch {
			case ref.Repository.Matches("actions/checkout"):
				if persist, ok := step.WithValue("persist-credentials"); ok && persist.Raw == "false" {
					continue
				}
				checkouts = append(checkouts, step)
			case ref.Repository.Matches("actions/upload-artifact"):
				path, ok := step.WithValue("path")
				if !ok || dangerousUploadPath(path.Raw) {
					uploads = append(uploads, step)
				}
			}
		}

		if len(uploads) == 0 {
			if !rs.Pedantic {
				continue
			}
			for _, checkout := range checkouts {
				findings = append(findings, finding.Finding{
					AuditID:     "artipacked",
					Severity:    finding.Medium,
					Confidence:  finding.ConfidenceLow,
					Description: "checkout does not disable credential persistence",
					Locations: []finding.Annotation{
						annotate(in.Doc, checkout.Uses.Node, "does not set persist-credentials: false", true),
					},
					Remediation: "Set persist-credentials: false on the checkout step unless a later step needs the token.",
				})
			}
			continue
		}

		for _, checkout := range checkouts {
			for _, upload := range uploads {
				if checkout.Index >= upload.Index {
					continue
				}
				findings = append(findings, finding.Finding{
					AuditID:     "artipacked",
					Severity:    finding.Medium,
					Confidence:  finding.ConfidenceMedium,
					Description: "checkout credentials may be leaked through an uploaded artifact",
					Locations: []finding.Annotation{
						annotate(in.Doc, checkout.Uses.Node, "does not set persist-credentials: false", true),
						annotate(in.Doc, upload.Uses.Node, "may upload the credentials persisted above", false),
					},
					Remediation: "Set persist-credentials: false on the checkout step, or narrow the uploaded path.",
				})
			}
		}
	}

	return findings
}

// dangerousUploadPath reports whether an upload path plausibly covers
// the checked-out workspace, including expansions of github.workspace
func dangerousUploadPath(path string) bool {
	for _, pattern := range strings.Fields(path) {
		switch pattern {
		case ".", "./", "..", "../":
			return true
		}
		for _, exp := range expr.Extract(pattern) {
			if strings.Contains(exp.Body, "github.workspace") {
				return true
			}
		}
	}
	return false
}
