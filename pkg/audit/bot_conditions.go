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

// actorContexts are expression paths that name the triggering actor.
// They identify whoever caused the latest event, not the author of the
// change under review, so gating on them is spoofable: an attacker
// updates a bot's pull request and the bot check still passes.
var actorContexts = []string{
	"github.actor",
	"github.triggering_actor",
	"github.event.pull_request.sender.login",
}

// checkBotConditions flags job and step conditions that gate privileged
// work on an actor-equals-bot comparison
func checkBotConditions(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	if in.Workflow == nil {
		return nil
	}

	inspect := func(cond *workflow.String) {
		if cond == nil {
			return
		}
		for _, ctx := range spoofableBotChecks(cond.Value) {
			findings = append(findings, finding.Finding{
				AuditID:     "bot-conditions",
				Severity:    finding.High,
				Confidence:  finding.ConfidenceHigh,
				Description: "bot check can be bypassed by an attacker-controlled actor",
				Locations: []finding.Annotation{
					annotate(in.Doc, cond.Node, ctx+" can be spoofed by re-triggering the event", true),
				},
				Remediation: "Gate on the change author (github.event.pull_request.user.login) rather than the triggering actor.",
			})
		}
	}

	for _, job := range in.Workflow.Jobs {
		inspect(job.If)
		for _, step := range job.Steps {
			inspect(step.If)
		}
	}

	return findings
}

// spoofableBotChecks parses a condition and returns the actor contexts
// it compares against a bot login
func spoofableBotChecks(condition string) []string {
	var bodies []string
	if expansions := expr.Extract(condition); len(expansions) > 0 {
		for _, expansion := range expansions {
			bodies = append(bodies, expansion.Body)
		}
	} else {
		bodies = append(bodies, condition)
	}

	var contexts []string
	for _, body := range bodies {
		parsed, err := expr.Parse(body)
		if err != nil {
			continue
		}
		walkConditions(parsed, func(b *expr.Binary) {
			if b.Op != "==" && b.Op != "!=" {
				return
			}
			if ctx, ok := actorBotComparison(b.LHS, b.RHS); ok {
				contexts = append(contexts, ctx)
			} else if ctx, ok := actorBotComparison(b.RHS, b.LHS); ok {
				contexts = append(contexts, ctx)
			}
		})
	}
	return contexts
}

func walkConditions(e expr.Expr, visit func(*expr.Binary)) {
	switch n := e.(type) {
	case *expr.Binary:
		visit(n)
		walkConditions(n.LHS, visit)
		walkConditions(n.RHS, visit)
	case *expr.Unary:
		walkConditions(n.Operand, visit)
	case *expr.Call:
		for _, arg := range n.Args {
			walkConditions(arg, visit)
		}
	case *expr.Index:
		walkConditions(n.Target, visit)
		walkConditions(n.Key, visit)
	case *expr.Member:
		walkConditions(n.Target, visit)
	}
}

// actorBotComparison reports whether lhs is an actor context and rhs a
// bot login literal
func actorBotComparison(lhs, rhs expr.Expr) (string, bool) {
	lit, ok := rhs.(*expr.Literal)
	if !ok || lit.Kind != expr.LitString || !strings.HasSuffix(lit.Value, "[bot]") {
		return "", false
	}

	path, ok := contextOf(lhs)
	if !ok {
		return "", false
	}
	for _, actor := range actorContexts {
		if strings.EqualFold(path, actor) {
			return path, true
		}
	}
	return "", false
}

func contextOf(e expr.Expr) (string, bool) {
	switch n := e.(type) {
	case *expr.Ident:
		return n.Name, true
	case *expr.Member:
		base, ok := contextOf(n.Target)
		if !ok {
			return "", false
		}
		return base + "." + n.Name, true
	}
	return "", false
}
