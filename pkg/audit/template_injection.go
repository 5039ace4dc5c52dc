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
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
	"gopkg.in/yaml.v3"
)

// injectionSink is one string leaf whose expansions reach executable
// code: a run script, a github-script body, or an env value exported
// into one
type injectionSink struct {
	value *workflow.String
	job   *workflow.Job // nil for composite action steps
	// transitive marks sinks that reach code indirectly (env values)
	transitive bool
}

// checkTemplateInjection marks template expansions of
// attacker-controllable contexts inside code-reaching sinks. The
// expansion happens before the shell ever runs, so quoting inside the
// script cannot defuse it.
func checkTemplateInjection(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	for _, sink := range injectionSinks(in) {
		findings = append(findings, auditSink(in, sink)...)
	}

	return findings
}

func injectionSinks(in *workflow.Input) []injectionSink {
	var sinks []injectionSink

	collect := func(step *workflow.Step, job *workflow.Job) {
		if step.Run != nil {
			sinks = append(sinks, injectionSink{value: step.Run, job: job})
		}
		if step.Uses != nil {
			if ref, err := uses.Parse(step.Uses.Value); err == nil &&
				ref.Repository != nil && ref.Repository.Matches("actions/github-script") {
				if script, ok := step.WithValue("script"); ok && script != nil {
					sinks = append(sinks, injectionSink{
						value: &workflow.String{Value: script.Raw, Node: script.Node},
						job:   job,
					})
				}
			}
		}
		if step.Env != nil {
			for _, item := range step.Env.Items {
				if item.Value == nil {
					continue
				}
				sinks = append(sinks, injectionSink{
					value:      &workflow.String{Value: item.Value.Raw, Node: item.Value.Node},
					job:        job,
					transitive: true,
				})
			}
		}
	}

	eachJobStep(in, func(job *workflow.Job, step *workflow.Step) { collect(step, job) })
	if in.Action != nil && in.Action.Kind() == workflow.ActionComposite {
		for _, step := range in.Action.Runs.Steps {
			collect(step, nil)
		}
	}

	return sinks
}

func auditSink(in *workflow.Input, sink injectionSink) []finding.Finding {
	var findings []finding.Finding

	leafSpan := in.Doc.Span(sink.value.Node)

	remediation := "Move the expansion into an env value and reference the exported variable from the script."
	if sink.transitive {
		remediation = "Quote the exported variable wherever it is used, and do not evaluate it as code."
	}

	for _, expansion := range expr.Extract(sink.value.Value) {
		parsed, err := expansion.Parse()
		if err != nil {
			continue
		}
		if expr.IsSafe(parsed) {
			continue
		}

		for _, ctx := range expr.Contexts(parsed) {
			severity, confidence, ok := classifyContext(ctx, sink)
			if !ok {
				continue
			}

			span := in.Doc.SubSpan(leafSpan, ctx)
			findings = append(findings, finding.Finding{
				AuditID:     "template-injection",
				Severity:    severity,
				Confidence:  confidence,
				Description: "template expansion may inject attacker-controllable code",
				Locations: []finding.Annotation{
					{
						Location: finding.Location{Path: in.Doc.Path, Span: span},
						Message:  ctx + " may expand into attacker-controllable code",
						Primary:  true,
					},
				},
				Remediation: remediation,
			})
		}
	}

	return findings
}

// classifyContext decides severity and confidence for one expanded
// context path inside a code sink
func classifyContext(ctx string, sink injectionSink) (finding.Severity, finding.Confidence, bool) {
	switch {
	case expr.IsSecret(ctx), expr.IsStatic(ctx):
		return "", "", false
	case expr.IsAttackerControllable(ctx):
		return finding.High, finding.ConfidenceHigh, true
	case strings.HasPrefix(ctx, "github.event."):
		// Not every event field is attacker-controlled, but most of the
		// interesting ones are.
		return finding.High, finding.ConfidenceMedium, true
	case strings.HasPrefix(ctx, "inputs."):
		return finding.High, finding.ConfidenceLow, true
	case expr.IsEnv(ctx):
		if sink.transitive {
			return "", "", false
		}
		// The shell can expand the exported variable itself; expanding it
		// via the template engine re-opens the injection window.
		return finding.Low, finding.ConfidenceHigh, true
	case strings.HasPrefix(ctx, "steps."):
		return finding.Medium, finding.ConfidenceMedium, true
	case strings.HasPrefix(ctx, "matrix.") || ctx == "matrix":
		if sink.job != nil && matrixIsStatic(sink.job.Strategy) {
			return "", "", false
		}
		return finding.Medium, finding.ConfidenceMedium, true
	default:
		return finding.Informational, finding.ConfidenceLow, true
	}
}

// matrixIsStatic reports whether a job's matrix is a literal block with
// no embedded expansions. A matrix generated by an expression can carry
// attacker-controlled values into every matrix context.
func matrixIsStatic(strategy *workflow.Strategy) bool {
	if strategy == nil || strategy.Matrix == nil {
		return true
	}
	return !nodeContainsExpansion(strategy.Matrix, 0)
}

func nodeContainsExpansion(node *yaml.Node, depth int) bool {
	if node == nil || depth > 32 {
		return false
	}
	if node.Kind == yaml.ScalarNode {
		return len(expr.Extract(node.Value)) > 0
	}
	for _, child := range node.Content {
		if nodeContainsExpansion(child, depth+1) {
			return true
		}
	}
	return false
}
