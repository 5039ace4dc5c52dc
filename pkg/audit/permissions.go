package audit

import (
	"context"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkExcessivePermissions flags permission grants that are broader
// than the workflow demonstrably needs: the read-all/write-all
// shorthands, missing top-level blocks (which inherit the platform
// default), and job-level blocks that widen the workflow default.
func checkExcessivePermissions(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	wf := in.Workflow
	if wf == nil {
		return nil
	}

	switch wf.Permissions.Base {
	case workflow.PermUnset:
		// Without an explicit block the workflow inherits the platform
		// default token scopes. Risk compounds under a dangerous trigger.
		severity := finding.Informational
		if wf.HasDangerousTriggers() {
			severity = finding.Medium
		}
		findings = append(findings, finding.Finding{
			AuditID:     "excessive-permissions",
			Severity:    severity,
			Confidence:  finding.ConfidenceLow,
			Description: "workflow does not set permissions and inherits the platform default",
			Locations: []finding.Annotation{
				annotate(in.Doc, wf.Doc.Body(), "no top-level permissions block", true),
			},
			Remediation: "Add a top-level permissions block granting only the scopes the workflow needs.",
		})
	case workflow.PermReadAll:
		findings = append(findings, finding.Finding{
			AuditID:     "excessive-permissions",
			Severity:    finding.Medium,
			Confidence:  finding.ConfidenceHigh,
			Description: "workflow grants read access to all scopes",
			Locations: []finding.Annotation{
				annotate(in.Doc, wf.Permissions.Node, "read-all may grant read access to more resources than necessary", true),
			},
			Remediation: "Replace read-all with the specific scopes the workflow needs.",
		})
	case workflow.PermWriteAll:
		findings = append(findings, finding.Finding{
			AuditID:     "excessive-permissions",
			Severity:    finding.High,
			Confidence:  finding.ConfidenceHigh,
			Description: "workflow grants write access to all scopes",
			Locations: []finding.Annotation{
				annotate(in.Doc, wf.Permissions.Node, "write-all grants destructive access to repository resources", true),
			},
			Remediation: "Replace write-all with the specific scopes the workflow needs.",
		})
	case workflow.PermScoped:
		for _, scope := range wf.Permissions.Scopes {
			if scope.Access != "write" {
				continue
			}
			findings = append(findings, finding.Finding{
				AuditID:     "excessive-permissions",
				Severity:    finding.Medium,
				Confidence:  finding.ConfidenceMedium,
				Description: "workflow grants a write scope to every job",
				Locations: []finding.Annotation{
					annotate(in.Doc, scope.Node, "write access to "+scope.Scope+" applies to all jobs; prefer job-level grants", true),
				},
				Remediation: "Move write grants down to the jobs that need them.",
			})
		}
	}

	for _, job := range wf.Jobs {
		if !widensParent(&job.Permissions, &wf.Permissions) {
			continue
		}
		findings = append(findings, finding.Finding{
			AuditID:     "excessive-permissions",
			Severity:    jobPermSeverity(&job.Permissions),
			Confidence:  finding.ConfidenceHigh,
			Description: "job permissions widen the workflow default",
			Locations: []finding.Annotation{
				annotate(in.Doc, job.Permissions.Node, "broader than the workflow-level permissions", true),
			},
			Remediation: "Grant only the scopes this job needs.",
		})
	}

	return findings
}

// widensParent reports whether a job-level block grants more than the
// workflow-level block it inherits from
func widensParent(job, parent *workflow.Permissions) bool {
	if job.Base == workflow.PermUnset {
		return false
	}
	switch job.Base {
	case workflow.PermWriteAll:
		return parent.Base != workflow.PermWriteAll
	case workflow.PermReadAll:
		return parent.Base == workflow.PermEmpty || parent.Base == workflow.PermUnset
	case workflow.PermScoped:
		if !job.HasWrite() {
			return false
		}
		return !parent.HasWrite() && parent.Base != workflow.PermWriteAll
	}
	return false
}

func jobPermSeverity(p *workflow.Permissions) finding.Severity {
	if p.Base == workflow.PermWriteAll {
		return finding.High
	}
	return finding.Medium
}
