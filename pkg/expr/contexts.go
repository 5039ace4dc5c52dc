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

package expr

import "strings"

// attackerControllable lists context paths whose values an untrusted
// actor can supply: issue and PR metadata, commit messages, review
// bodies, head refs, and similar. A "*" segment matches exactly one
// path segment.
var attackerControllable = []string{
	"github.event.issue.title",
	"github.event.issue.body",
	"github.event.pull_request.title",
	"github.event.pull_request.body",
	"github.event.pull_request.head.ref",
	"github.event.pull_request.head.label",
	"github.event.pull_request.head.repo.default_branch",
	"github.event.comment.body",
	"github.event.review.body",
	"github.event.review_comment.body",
	"github.event.discussion.title",
	"github.event.discussion.body",
	"github.event.pages.*.page_name",
	"github.event.commits.*.message",
	"github.event.commits.*.author.name",
	"github.event.commits.*.author.email",
	"github.event.head_commit.message",
	"github.event.head_commit.author.name",
	"github.event.head_commit.author.email",
	"github.event.workflow_run.head_branch",
	"github.event.workflow_run.head_repository.description",
	"github.event.workflow_run.head_repository.owner.email",
	"github.event.workflow_run.pull_requests.*.head.ref",
	"github.event.workflow_run.pull_requests.*.head.repo.name",
	"github.head_ref",
	"github.ref_name",
}

// staticContexts lists context paths that only ever expand to
// platform-controlled values and are safe to interpolate anywhere
var staticContexts = []string{
	"github.event_name",
	"github.event.issue.number",
	"github.event.merge_group.base_sha",
	"github.event.number",
	"github.event.pull_request.number",
	"github.event.workflow_run.id",
	"github.repository",
	"github.repository_id",
	"github.repositoryUrl",
	"github.repository_owner",
	"github.repository_owner_id",
	"github.run_attempt",
	"github.run_id",
	"github.run_number",
	"github.sha",
	"github.token",
	"github.workflow",
	"github.workspace",
	"github.action_path",
	"runner.arch",
	"runner.debug",
	"runner.os",
	"runner.temp",
}

// IsAttackerControllable reports whether a context path carries data an
// untrusted actor can choose
func IsAttackerControllable(path string) bool {
	for _, pattern := range attackerControllable {
		if matchContext(pattern, path) {
			return true
		}
	}
	return false
}

// IsStatic reports whether a context path is platform-controlled
func IsStatic(path string) bool {
	for _, known := range staticContexts {
		if known == path {
			return true
		}
	}
	return false
}

// IsSecret reports whether a context path reads from the secrets store.
// Secret expansion is unsafe to expose but not attacker-controlled.
func IsSecret(path string) bool {
	return path == "secrets" || strings.HasPrefix(path, "secrets.")
}

// IsStepOutput reports whether a context path reads an earlier step's
// output or an exported environment variable
func IsStepOutput(path string) bool {
	if strings.HasPrefix(path, "steps.") && strings.Contains(path, ".outputs") {
		return true
	}
	return strings.HasPrefix(path, "env.")
}

// IsEnv reports whether a context path reads the env context
func IsEnv(path string) bool {
	return path == "env" || strings.HasPrefix(path, "env.")
}

// matchContext compares a dotted pattern against a dotted path;
// a "*" pattern segment matches exactly one path segment
func matchContext(pattern, path string) bool {
	pp := strings.Split(pattern, ".")
	sp := strings.Split(path, ".")
	if len(pp) != len(sp) {
		return false
	}
	for i := range pp {
		if pp[i] == "*" || sp[i] == "*" {
			continue
		}
		if !strings.EqualFold(pp[i], sp[i]) {
			return false
		}
	}
	return true
}
