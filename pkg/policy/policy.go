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

// Package policy evaluates user-supplied Rego policies against the
// typed workflow model. Policies report violations through the
// data.ghast.deny set.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
	"github.com/open-policy-agent/opa/v1/rego"
)

// Engine evaluates a set of Rego policy files
type Engine struct {
	policyFiles []string
}

// NewEngine creates a policy engine over the given policy files
func NewEngine(policyFiles []string) *Engine {
	return &Engine{policyFiles: policyFiles}
}

// LoadPolicyFiles expands a file or directory path into .rego files
func LoadPolicyFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read policy path %s: %w", path, err)
	}

	if !info.IsDir() {
		if !strings.HasSuffix(path, ".rego") {
			return nil, fmt.Errorf("policy file %s does not have a .rego extension", path)
		}
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() && strings.HasSuffix(p, ".rego") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error searching for policy files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .rego files found in %s", path)
	}
	return files, nil
}

// Evaluate runs every policy against a workflow input and converts
// violations to findings
func (e *Engine) Evaluate(ctx context.Context, in *workflow.Input) ([]finding.Finding, error) {
	if len(e.policyFiles) == 0 || in.Workflow == nil {
		return nil, nil
	}

	input := workflowData(in)

	var findings []finding.Finding
	for _, policyFile := range e.policyFiles {
		content, err := os.ReadFile(policyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file: %w", err)
		}

		r := rego.New(
			rego.Query("data.ghast.deny[x]"),
			rego.Module(filepath.Base(policyFile), string(content)),
			rego.Input(input),
		)

		rs, err := r.Eval(ctx)
		if err != nil {
			return nil, fmt.Errorf("policy evaluation failed for %s: %w", policyFile, err)
		}

		for _, result := range rs {
			for _, exprResult := range result.Expressions {
				violation, ok := exprResult.Value.(map[string]interface{})
				if !ok {
					continue
				}
				findings = append(findings, violationToFinding(violation, in))
			}
		}
	}

	return findings, nil
}

// workflowData flattens the typed model into the plain structure
// policies index into
func workflowData(in *workflow.Input) map[string]interface{} {
	wf := in.Workflow

	var triggers []string
	for _, ev := range wf.On.Events {
		triggers = append(triggers, ev.Name)
	}

	jobs := map[string]interface{}{}
	for _, job := range wf.Jobs {
		jobMap := map[string]interface{}{}
		if job.Name != nil {
			jobMap["name"] = job.Name.Value
		}
		if job.RunsOn != nil {
			var labels []string
			for _, l := range job.RunsOn.Labels {
				if l != nil {
					labels = append(labels, l.Value)
				}
			}
			jobMap["runs-on"] = labels
		}
		if job.Uses != nil {
			jobMap["uses"] = job.Uses.Value
		}
		var steps []map[string]interface{}
		for _, step := range job.Steps {
			stepMap := map[string]interface{}{}
			if step.Name != nil {
				stepMap["name"] = step.Name.Value
			}
			if step.ID != nil {
				stepMap["id"] = step.ID.Value
			}
			if step.Uses != nil {
				stepMap["uses"] = step.Uses.Value
			}
			if step.Run != nil {
				stepMap["run"] = step.Run.Value
			}
			if len(step.With) > 0 {
				with := map[string]interface{}{}
				for _, item := range step.With {
					if item.Value != nil {
						with[item.Name] = item.Value.Raw
					}
				}
				stepMap["with"] = with
			}
			if step.Env != nil {
				env := map[string]interface{}{}
				for _, item := range step.Env.Items {
					if item.Value != nil {
						env[item.Name] = item.Value.Raw
					}
				}
				stepMap["env"] = env
			}
			steps = append(steps, stepMap)
		}
		jobMap["steps"] = steps
		jobs[job.ID] = jobMap
	}

	data := map[string]interface{}{
		"path": in.Doc.Path,
		"on":   triggers,
		"jobs": jobs,
	}
	if wf.Name != nil {
		data["name"] = wf.Name.Value
	}
	return data
}

func violationToFinding(violation map[string]interface{}, in *workflow.Input) finding.Finding {
	str := func(key, fallback string) string {
		if v, ok := violation[key].(string); ok && v != "" {
			return v
		}
		return fallback
	}

	severity, ok := finding.ParseSeverity(strings.ToLower(str("severity", "")))
	if !ok {
		severity = finding.Medium
	}

	f := finding.Finding{
		AuditID:     str("id", "custom-policy"),
		Severity:    severity,
		Confidence:  finding.ConfidenceMedium,
		Description: str("message", "custom policy violation"),
		Remediation: str("remediation", ""),
	}

	span := finding.Span{Start: 0, End: 0}
	if snippet, ok := violation["snippet"].(string); ok && snippet != "" {
		span = in.Doc.SubSpan(finding.Span{Start: 0, End: len(in.Doc.Raw)}, snippet)
	}
	f.Locations = []finding.Annotation{{
		Location: finding.Location{Path: in.Doc.Path, Span: span},
		Message:  f.Description,
		Primary:  true,
	}}
	return f
}
