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

package audit

import (
	"context"
	"strings"

	"github.com/ghast-sh/ghast/pkg/expr"
	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// checkOverprovisionedSecrets flags expansions that hand the entire
// secrets context to the runner, typically `toJSON(secrets)`. Every
// secret the repository holds becomes available to the step, not just
// the ones the job needs.
func checkOverprovisionedSecrets(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	for _, expansion := range expr.Extract(string(in.Doc.Raw)) {
		parsed, err := expansion.Parse()
		if err != nil {
			continue
		}
		for range countMatches(parsed, isWholeSecretsToJSON) {
			findings = append(findings, finding.Finding{
				AuditID:     "overprovisioned-secrets",
				Severity:    finding.Medium,
				Confidence:  finding.ConfidenceHigh,
				Description: "the entire secrets context is injected into the runner",
				Locations: []finding.Annotation{
					{
						Location: finding.Location{
							Path: in.Doc.Path,
							Span: finding.Span{Start: expansion.Start, End: expansion.End},
						},
						Message: "injects the entire secrets context into the runner",
						Primary: true,
					},
				},
				Remediation: "Reference the individual secrets the step needs instead of toJSON(secrets).",
			})
		}
	}

	return findings
}

// checkUnredactedSecrets flags secret values that are mutated before
// use, e.g. `fromJSON(secrets.foo)`. The platform redacts secrets by
// exact value, so a decoded or otherwise transformed secret appears in
// logs unredacted.
func checkUnredactedSecrets(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	for _, expansion := range expr.Extract(string(in.Doc.Raw)) {
		parsed, err := expansion.Parse()
		if err != nil {
			continue
		}
		for range countMatches(parsed, isSecretFromJSON) {
			findings = append(findings, finding.Finding{
				AuditID:     "unredacted-secrets",
				Severity:    finding.Medium,
				Confidence:  finding.ConfidenceHigh,
				Description: "secret value is transformed and bypasses log redaction",
				Locations: []finding.Annotation{
					{
						Location: finding.Location{
							Path: in.Doc.Path,
							Span: finding.Span{Start: expansion.Start, End: expansion.End},
						},
						Message: "bypasses secret redaction",
						Primary: true,
					},
				},
				Remediation: "Avoid fromJSON on secret values; store each field as its own secret.",
			})
		}
	}

	return findings
}

// countMatches walks an expression tree counting call sites the
// predicate accepts. Arguments of a matched call are not descended
// into: the match subsumes them.
func countMatches(e expr.Expr, match func(*expr.Call) bool) []struct{} {
	var results []struct{}

	var visit func(expr.Expr)
	visit = func(e expr.Expr) {
		switch n := e.(type) {
		case *expr.Call:
			if match(n) {
				results = append(results, struct{}{})
				return
			}
			for _, arg := range n.Args {
				visit(arg)
			}
		case *expr.Member:
			visit(n.Target)
		case *expr.Index:
			visit(n.Target)
			visit(n.Key)
		case *expr.Unary:
			visit(n.Operand)
		case *expr.Binary:
			visit(n.LHS)
			visit(n.RHS)
		}
	}
	visit(e)

	return results
}

// isWholeSecretsToJSON matches toJSON(secrets) with the bare secrets
// context as an argument; toJSON(secrets.foo) is fine
func isWholeSecretsToJSON(call *expr.Call) bool {
	if !strings.EqualFold(call.Name, "toJSON") {
		return false
	}
	for _, arg := range call.Args {
		if ident, ok := arg.(*expr.Ident); ok && strings.EqualFold(ident.Name, "secrets") {
			return true
		}
	}
	return false
}

// isSecretFromJSON matches fromJSON over anything rooted in the
// secrets context, whole or individual
func isSecretFromJSON(call *expr.Call) bool {
	if !strings.EqualFold(call.Name, "fromJSON") {
		return false
	}
	for _, arg := range call.Args {
		if rootedInSecrets(arg) {
			return true
		}
	}
	return false
}

func rootedInSecrets(e expr.Expr) bool {
	switch n := e.(type) {
	case *expr.Ident:
		return strings.EqualFold(n.Name, "secrets")
	case *expr.Member:
		return rootedInSecrets(n.Target)
	case *expr.Index:
		return rootedInSecrets(n.Target)
	}
	return false
}
