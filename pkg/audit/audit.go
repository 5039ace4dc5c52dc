/*
Copyright 2025 Ghast Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package audit holds the security audits and the runner that applies
// them to parsed inputs.
package audit

import (
	"context"
	"log/slog"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/githubapi"
	"github.com/ghast-sh/ghast/pkg/workflow"
	"gopkg.in/yaml.v3"
)

// Scope describes which input kinds an audit applies to
type Scope int

const (
	ScopeWorkflow Scope = iota
	ScopeAction
	ScopeBoth
)

// Resources is the shared read-only state handed to each audit
type Resources struct {
	// Client is nil in offline mode
	Client *githubapi.Client
	// Advisories is nil in offline mode
	Advisories *githubapi.AdvisoryClient
	// Pedantic enables stricter variants and default-disabled audits
	Pedantic bool
	Log      *slog.Logger
}

// Online reports whether online lookups are available
func (r *Resources) Online() bool {
	return r.Client != nil
}

// CheckFunc is an audit's implementation: a pure function from the
// immutable model (plus resolver) to findings
type CheckFunc func(ctx context.Context, in *workflow.Input, rs *Resources) []finding.Finding

// Audit couples an audit's metadata with its implementation
type Audit struct {
	ID          string
	Name        string
	Description string
	URL         string
	Scope       Scope
	Online      bool
	// DefaultEnabled is false for audits that only run in pedantic mode
	DefaultEnabled bool
	Check          CheckFunc
}

// AppliesTo reports whether the audit runs against an input kind
func (a *Audit) AppliesTo(kind workflow.InputKind) bool {
	switch a.Scope {
	case ScopeBoth:
		return true
	case ScopeWorkflow:
		return kind == workflow.InputWorkflow
	case ScopeAction:
		return kind == workflow.InputAction
	}
	return false
}

// Registry returns the built-in audit set
func Registry() []Audit {
	return []Audit{
		{
			ID:             "artipacked",
			Name:           "Credential Persistence",
			Description:    "checkout credentials may leak through uploaded artifacts",
			URL:            "https://ghast.sh/audits/artipacked",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkArtipacked,
		},
		{
			ID:             "dangerous-triggers",
			Name:           "Dangerous Workflow Trigger",
			Description:    "workflow runs with elevated credentials against untrusted input",
			URL:            "https://ghast.sh/audits/dangerous-triggers",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkDangerousTriggers,
		},
		{
			ID:             "excessive-permissions",
			Name:           "Excessive Permissions",
			Description:    "workflow or job permissions are broader than necessary",
			URL:            "https://ghast.sh/audits/excessive-permissions",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkExcessivePermissions,
		},
		{
			ID:             "hardcoded-container-credentials",
			Name:           "Hardcoded Container Credentials",
			Description:    "container registry password is a literal string",
			URL:            "https://ghast.sh/audits/hardcoded-container-credentials",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkContainerCredentials,
		},
		{
			ID:             "impostor-commit",
			Name:           "Impostor Commit",
			Description:    "pinned commit is not present on the claimant repository",
			URL:            "https://ghast.sh/audits/impostor-commit",
			Scope:          ScopeBoth,
			Online:         true,
			DefaultEnabled: true,
			Check:          checkImpostorCommit,
		},
		{
			ID:             "known-vulnerable-actions",
			Name:           "Known Vulnerable Action",
			Description:    "action version has a published security advisory",
			URL:            "https://ghast.sh/audits/known-vulnerable-actions",
			Scope:          ScopeBoth,
			Online:         true,
			DefaultEnabled: true,
			Check:          checkKnownVulnerable,
		},
		{
			ID:             "ref-confusion",
			Name:           "Ref Confusion",
			Description:    "symbolic ref exists as both a branch and a tag upstream",
			URL:            "https://ghast.sh/audits/ref-confusion",
			Scope:          ScopeBoth,
			Online:         true,
			DefaultEnabled: true,
			Check:          checkRefConfusion,
		},
		{
			ID:             "self-hosted-runner",
			Name:           "Self-Hosted Runner",
			Description:    "job runs on a self-hosted runner without trusted-label guards",
			URL:            "https://ghast.sh/audits/self-hosted-runner",
			Scope:          ScopeWorkflow,
			DefaultEnabled: false,
			Check:          checkSelfHostedRunner,
		},
		{
			ID:             "template-injection",
			Name:           "Template Injection",
			Description:    "attacker-controllable expression expands into executable code",
			URL:            "https://ghast.sh/audits/template-injection",
			Scope:          ScopeBoth,
			DefaultEnabled: true,
			Check:          checkTemplateInjection,
		},
		{
			ID:             "use-trusted-publishing",
			Name:           "Use Trusted Publishing",
			Description:    "package upload uses a manual credential where tokenless publishing is supported",
			URL:            "https://ghast.sh/audits/use-trusted-publishing",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkTrustedPublishing,
		},
		{
			ID:             "unpinned-uses",
			Name:           "Unpinned Action Reference",
			Description:    "action reference lacks a ref or tag",
			URL:            "https://ghast.sh/audits/unpinned-uses",
			Scope:          ScopeBoth,
			DefaultEnabled: true,
			Check:          checkUnpinnedUses,
		},
		{
			ID:             "insecure-commands",
			Name:           "Insecure Commands Enabled",
			Description:    "ACTIONS_ALLOW_UNSECURE_COMMANDS is enabled",
			URL:            "https://ghast.sh/audits/insecure-commands",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkInsecureCommands,
		},
		{
			ID:             "github-env",
			Name:           "GITHUB_ENV Write",
			Description:    "run step writes to GITHUB_ENV under a dangerous trigger",
			URL:            "https://ghast.sh/audits/github-env",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkGithubEnv,
		},
		{
			ID:             "cache-poisoning",
			Name:           "Cache Poisoning",
			Description:    "cache restored while publishing artifacts",
			URL:            "https://ghast.sh/audits/cache-poisoning",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkCachePoisoning,
		},
		{
			ID:             "secrets-inherit",
			Name:           "Inherited Secrets",
			Description:    "reusable workflow call inherits all parent secrets",
			URL:            "https://ghast.sh/audits/secrets-inherit",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkSecretsInherit,
		},
		{
			ID:             "bot-conditions",
			Name:           "Spoofable Bot Condition",
			Description:    "privileged work gated on a spoofable actor check",
			URL:            "https://ghast.sh/audits/bot-conditions",
			Scope:          ScopeWorkflow,
			DefaultEnabled: true,
			Check:          checkBotConditions,
		},
		{
			ID:             "overprovisioned-secrets",
			Name:           "Overprovisioned Secrets",
			Description:    "entire secrets context injected into the runner",
			URL:            "https://ghast.sh/audits/overprovisioned-secrets",
			Scope:          ScopeBoth,
			DefaultEnabled: true,
			Check:          checkOverprovisionedSecrets,
		},
		{
			ID:             "unredacted-secrets",
			Name:           "Unredacted Secrets",
			Description:    "secret value transformed past log redaction",
			URL:            "https://ghast.sh/audits/unredacted-secrets",
			Scope:          ScopeBoth,
			DefaultEnabled: true,
			Check:          checkUnredactedSecrets,
		},
	}
}

// annotate builds an annotation for a node in a document
func annotate(doc *workflow.Document, node *yaml.Node, message string, primary bool) finding.Annotation {
	return finding.Annotation{
		Location: doc.Locate(node),
		Message:  message,
		Primary:  primary,
	}
}

// eachJobStep visits every step of every normal job in a workflow input
func eachJobStep(in *workflow.Input, visit func(job *workflow.Job, step *workflow.Step)) {
	if in.Workflow == nil {
		return
	}
	for _, job := range in.Workflow.Jobs {
		if job.IsReusable() {
			continue
		}
		for _, step := range job.Steps {
			visit(job, step)
		}
	}
}

// eachStep visits workflow job steps and composite action steps alike
func eachStep(in *workflow.Input, visit func(step *workflow.Step)) {
	eachJobStep(in, func(_ *workflow.Job, step *workflow.Step) { visit(step) })
	if in.Action != nil && in.Action.Kind() == workflow.ActionComposite {
		for _, step := range in.Action.Runs.Steps {
			visit(step)
		}
	}
}
