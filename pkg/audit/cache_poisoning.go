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

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/uses"
	"github.com/ghast-sh/ghast/pkg/workflow"
	"gopkg.in/yaml.v3"
)

// publisherActions upload release artifacts; a workflow that runs one
// of these builds something an attacker would want to tamper with
var publisherActions = []string{
	"pypa/gh-action-pypi-publish",
	"rubygems/release-gem",
	"softprops/action-gh-release",
	"ncipollo/release-action",
	"goreleaser/goreleaser-action",
	"docker/build-push-action",
}

// setupActionsWithCache restore a cache when their cache input is
// enabled; actions/setup-go caches by default
var setupActionsWithCache = []string{
	"actions/setup-node",
	"actions/setup-python",
	"actions/setup-java",
	"ruby/setup-ruby",
}

// checkCachePoisoning flags cache restoration inside workflows that
// publish artifacts. Caches are writable from unprivileged runs of the
// same repository, so a poisoned entry restored during a release build
// ships inside the released artifact.
func checkCachePoisoning(_ context.Context, in *workflow.Input, _ *Resources) []finding.Finding {
	var findings []finding.Finding

	wf := in.Workflow
	if wf == nil {
		return nil
	}
	if !isReleaseWorkflow(wf) {
		return nil
	}

	eachJobStep(in, func(_ *workflow.Job, step *workflow.Step) {
		node, why := cacheUse(step)
		if node == nil {
			return
		}
		findings = append(findings, finding.Finding{
			AuditID:     "cache-poisoning",
			Severity:    finding.High,
			Confidence:  finding.ConfidenceLow,
			Description: "cache restored while publishing artifacts",
			Locations: []finding.Annotation{
				annotate(in.Doc, node, why, true),
			},
			Remediation: "Disable caching in release workflows, or key caches so unprivileged runs cannot write them.",
		})
	})

	return findings
}

// isReleaseWorkflow reports whether the workflow publishes: a release
// trigger, a tag-push trigger, or a publisher step
func isReleaseWorkflow(wf *workflow.Workflow) bool {
	for _, trigger := range wf.On.Events {
		if trigger.Name == "release" {
			return true
		}
		if trigger.Name == "push" && triggerHasTags(trigger.Config) {
			return true
		}
	}

	for _, job := range wf.Jobs {
		for _, step := range job.Steps {
			if step.Uses == nil {
				continue
			}
			ref, err := uses.Parse(step.Uses.Value)
			if err != nil || ref.Repository == nil {
				continue
			}
			for _, publisher := range publisherActions {
				if ref.Repository.Matches(publisher) {
					return true
				}
			}
		}
	}
	return false
}

func triggerHasTags(config *yaml.Node) bool {
	if config == nil || config.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(config.Content); i += 2 {
		if config.Content[i].Value == "tags" {
			return true
		}
	}
	return false
}

// cacheUse reports the node to annotate when a step restores a cache
func cacheUse(step *workflow.Step) (*yaml.Node, string) {
	if step.Uses == nil {
		return nil, ""
	}
	ref, err := uses.Parse(step.Uses.Value)
	if err != nil || ref.Repository == nil {
		return nil, ""
	}

	switch {
	case ref.Repository.Matches("actions/cache"):
		if lookup, ok := step.WithValue("lookup-only"); ok && lookup.Raw == "true" {
			return nil, ""
		}
		return step.Uses.Node, "restores and saves a general-purpose cache"
	case ref.Repository.Matches("Swatinem/rust-cache"):
		return step.Uses.Node, "restores a build cache"
	case ref.Repository.Matches("actions/setup-go"):
		// Caching is on unless explicitly disabled.
		if cache, ok := step.WithValue("cache"); ok && cache.Raw == "false" {
			return nil, ""
		}
		return step.Uses.Node, "caches module and build outputs by default"
	}

	for _, setup := range setupActionsWithCache {
		if !ref.Repository.Matches(setup) {
			continue
		}
		if cache, ok := step.WithValue("cache"); ok && cache.Raw != "" && cache.Raw != "false" {
			return step.Uses.Node, "restores a dependency cache"
		}
		if cache, ok := step.WithValue("bundler-cache"); ok && cache.Raw == "true" {
			return step.Uses.Node, "restores a dependency cache"
		}
	}
	return nil, ""
}
