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
	"mvdan.cc/sh/v3/syntax"
)

// checkGithubEnv flags run steps that append to the GITHUB_ENV file in
// workflows with dangerous triggers. Environment variables written
// there are loaded into every later step, where names like LD_PRELOAD
// or BASH_ENV turn into code execution.
func checkGithubEnv(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	wf := in.Workflow
	if wf == nil || !wf.HasDangerousTriggers() {
		return nil
	}

	eachJobStep(in, func(job *workflow.Job, step *workflow.Step) {
		if step.Run == nil {
			return
		}
		if !scriptWritesGithubEnv(step.Run.Value) {
			return
		}

		severity := finding.Medium
		confidence := finding.ConfidenceMedium
		note := "writes to GITHUB_ENV under a dangerous trigger"
		if runHasAttackerExpansion(step.Run.Value) {
			severity = finding.High
			confidence = finding.ConfidenceHigh
			note = "writes attacker-controllable data to GITHUB_ENV under a dangerous trigger"
		}

		span := in.Doc.Span(step.Run.Node)
		findings = append(findings, finding.Finding{
			AuditID:     "github-env",
			Severity:    severity,
			Confidence:  confidence,
			Description: "run step writes to the GITHUB_ENV file",
			Locations: []finding.Annotation{
				{
					Location: finding.Location{Path: in.Doc.Path, Span: span},
					Message:  note,
					Primary:  true,
				},
			},
			Remediation: "Avoid GITHUB_ENV in privileged workflows; pass values through step outputs instead.",
		})
	})

	return findings
}

// scriptWritesGithubEnv parses the run script and looks for
// redirections or tee pipelines targeting the GITHUB_ENV file. Falling
// back to a substring check keeps unparseable scripts covered.
func scriptWritesGithubEnv(script string) bool {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(script), "")
	if err != nil {
		return strings.Contains(script, "GITHUB_ENV")
	}

	found := false
	syntax.Walk(file, func(node syntax.Node) bool {
		if found {
			return false
		}
		switch n := node.(type) {
		case *syntax.Redirect:
			if n.Word != nil && wordMentionsGithubEnv(n.Word) {
				found = true
			}
		case *syntax.CallExpr:
			// tee "$GITHUB_ENV" and similar
			if len(n.Args) > 1 && wordLit(n.Args[0]) == "tee" {
				for _, arg := range n.Args[1:] {
					if wordMentionsGithubEnv(arg) {
						found = true
					}
				}
			}
		}
		return true
	})
	return found
}

func wordMentionsGithubEnv(word *syntax.Word) bool {
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.ParamExp:
			if p.Param != nil && p.Param.Value == "GITHUB_ENV" {
				return true
			}
		case *syntax.Lit:
			if strings.Contains(p.Value, "GITHUB_ENV") {
				return true
			}
		case *syntax.DblQuoted:
			for _, inner := range p.Parts {
				if pe, ok := inner.(*syntax.ParamExp); ok && pe.Param != nil && pe.Param.Value == "GITHUB_ENV" {
					return true
				}
			}
		}
	}
	return false
}

func wordLit(word *syntax.Word) string {
	if word == nil || len(word.Parts) != 1 {
		return ""
	}
	if lit, ok := word.Parts[0].(*syntax.Lit); ok {
		return lit.Value
	}
	return ""
}

// runHasAttackerExpansion reports whether the script interpolates any
// attacker-controllable context before the shell sees it
func runHasAttackerExpansion(script string) bool {
	for _, expansion := range expr.Extract(script) {
		parsed, err := expansion.Parse()
		if err != nil {
			continue
		}
		for _, ctx := range expr.Contexts(parsed) {
			if expr.IsAttackerControllable(ctx) {
				return true
			}
		}
	}
	return false
}
