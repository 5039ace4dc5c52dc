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

package workflow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// String is a string-typed model leaf. It keeps the node it was decoded
// from so findings can resolve it back to a byte range.
type String struct {
	Value string
	Node  *yaml.Node
}

// Value is a scalar model leaf in a position where the schema widens
// beyond strings (step `with:` inputs, env values). Raw holds the
// scalar's text as written.
type Value struct {
	Raw  string
	Node *yaml.Node
}

// EnvVar is a single name/value pair in an env-like mapping
type EnvVar struct {
	Name     string
	NameNode *yaml.Node
	Value    *Value
}

// Env is an ordered env-like mapping. The whole block may also be a
// single template expression, in which case Expr is set instead.
type Env struct {
	Node  *yaml.Node
	Expr  *String
	Items []EnvVar
}

// Get looks up a variable by name
func (e *Env) Get(name string) (*Value, bool) {
	if e == nil {
		return nil, false
	}
	for _, item := range e.Items {
		if item.Name == name {
			return item.Value, true
		}
	}
	return nil, false
}

// Trigger is a single workflow trigger with its optional configuration
type Trigger struct {
	Name   string
	Node   *yaml.Node
	Config *yaml.Node
}

// Triggers is the decoded `on:` block, preserving declaration order
type Triggers struct {
	Node   *yaml.Node
	Events []Trigger
}

// Has reports whether the named trigger is present
func (t *Triggers) Has(name string) bool {
	for _, ev := range t.Events {
		if ev.Name == name {
			return true
		}
	}
	return false
}

// BasePermission classifies a `permissions:` block
type BasePermission int

const (
	// PermUnset means no permissions block was written; the platform
	// default applies. Distinct from an explicit empty map.
	PermUnset BasePermission = iota
	PermReadAll
	PermWriteAll
	// PermEmpty is an explicit `permissions: {}`
	PermEmpty
	// PermScoped is a partial scope→access map
	PermScoped
)

// PermissionScope is one entry of a scoped permissions map
type PermissionScope struct {
	Scope     string
	Access    string // read, write, none
	Node      *yaml.Node
	ValueNode *yaml.Node
}

// Permissions is the decoded form of a `permissions:` block
type Permissions struct {
	Node   *yaml.Node
	Base   BasePermission
	Scopes []PermissionScope
}

// HasWrite reports whether the block grants write access to any scope
func (p *Permissions) HasWrite() bool {
	if p.Base == PermWriteAll {
		return true
	}
	for _, s := range p.Scopes {
		if s.Access == "write" {
			return true
		}
	}
	return false
}

// RunsOn is the decoded `runs-on:` value: one label, a set of labels,
// or a runner-group object
type RunsOn struct {
	Node        *yaml.Node
	Labels      []*String
	Group       *String
	GroupLabels []*String
}

// Credentials holds registry credentials for a container or service
type Credentials struct {
	Node     *yaml.Node
	Username *Value
	Password *Value
}

// Container is a job `container:` or one entry of `services:`
type Container struct {
	Node        *yaml.Node
	Image       *String
	Credentials *Credentials
}

// Service is a named service container
type Service struct {
	Name      string
	NameNode  *yaml.Node
	Container *Container
}

// Strategy is a job's `strategy:` block
type Strategy struct {
	Node        *yaml.Node
	Matrix      *yaml.Node
	FailFast    *Value
	MaxParallel *Value
}

// Secrets is a reusable-workflow call's `secrets:` value; `inherit` is
// distinct from an explicit map
type Secrets struct {
	Node    *yaml.Node
	Inherit bool
	Items   []EnvVar
}

// Step is a single step of a normal job or composite action
type Step struct {
	Index int
	Node  *yaml.Node

	ID   *String
	Name *String
	If   *String
	Env  *Env

	Uses *String
	With []EnvVar

	Run              *String
	Shell            *String
	WorkingDirectory *String

	ContinueOnError *Value
	TimeoutMinutes  *Value
}

// IsRun reports whether this is a run-step
func (s *Step) IsRun() bool { return s.Run != nil }

// IsUses reports whether this is a uses-step
func (s *Step) IsUses() bool { return s.Uses != nil }

// WithValue looks up a `with:` input by name
func (s *Step) WithValue(name string) (*Value, bool) {
	for _, item := range s.With {
		if item.Name == name {
			return item.Value, true
		}
	}
	return nil, false
}

// Job is either a normal job or a reusable-workflow call
type Job struct {
	ID     string
	IDNode *yaml.Node
	Node   *yaml.Node

	Name        *String
	Permissions Permissions
	If          *String
	Needs       []*String
	Env         *Env

	// normal job
	RunsOn          *RunsOn
	Strategy        *Strategy
	Container       *Container
	Services        []Service
	Outputs         []EnvVar
	Steps           []*Step
	Defaults        *yaml.Node
	ContinueOnError *Value
	TimeoutMinutes  *Value

	// reusable-workflow call
	Uses    *String
	With    []EnvVar
	Secrets *Secrets

	Unknown map[string]*yaml.Node
}

// IsReusable reports whether this job calls a reusable workflow
func (j *Job) IsReusable() bool { return j.Uses != nil }

// Workflow is the typed top-level model of a workflow file
type Workflow struct {
	Doc *Document

	Name        *String
	On          Triggers
	Permissions Permissions
	Env         *Env
	Defaults    *yaml.Node
	Concurrency *yaml.Node
	Jobs        []*Job

	Unknown map[string]*yaml.Node
}

// HasDangerousTriggers reports whether the workflow runs on triggers
// that execute with elevated credentials against untrusted input
func (w *Workflow) HasDangerousTriggers() bool {
	return w.On.Has("pull_request_target") || w.On.Has("workflow_run")
}

// DecodeWorkflow decodes a loaded document into the typed model
func DecodeWorkflow(doc *Document) (*Workflow, error) {
	body := doc.Body()
	if body == nil || body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: workflow must be a YAML mapping", doc.Path)
	}

	w := &Workflow{Doc: doc, Unknown: map[string]*yaml.Node{}}
	dec := decoder{doc: doc}

	sawJobs := false
	for key, val := range mappingEntries(body) {
		switch key.Value {
		case "name":
			w.Name = dec.str(val, "name")
		case "on", "true":
			// yaml 1.1 resolves a bare `on` key to !!bool true; accept both.
			if err := dec.triggers(&w.On, val); err != nil {
				return nil, err
			}
		case "permissions":
			if err := dec.permissions(&w.Permissions, val); err != nil {
				return nil, err
			}
		case "env":
			w.Env = dec.env(val)
		case "defaults":
			w.Defaults = val
		case "concurrency":
			w.Concurrency = val
		case "jobs":
			sawJobs = true
			jobs, err := dec.jobs(val)
			if err != nil {
				return nil, err
			}
			w.Jobs = jobs
		default:
			w.Unknown[key.Value] = val
		}
	}

	if dec.err != nil {
		return nil, dec.err
	}
	if !sawJobs {
		return nil, fmt.Errorf("%s: workflow has no jobs", doc.Path)
	}
	return w, nil
}

// decoder accumulates the first decode error so that field decoding can
// stay linear; all value decoders are total.
type decoder struct {
	doc *Document
	err error
}

func (d *decoder) fail(node *yaml.Node, format string, args ...any) {
	if d.err == nil {
		prefix := fmt.Sprintf("%s:%d:%d: ", d.doc.Path, node.Line, node.Column)
		d.err = fmt.Errorf(prefix+format, args...)
	}
}

// str decodes a scalar that must be a string. Bare booleans and numbers
// in string positions are schema errors.
func (d *decoder) str(node *yaml.Node, field string) *String {
	node = resolveAlias(node)
	if node == nil {
		return nil
	}
	if node.Kind != yaml.ScalarNode {
		d.fail(node, "%s: expected a string", field)
		return nil
	}
	switch node.Tag {
	case "!!str", "!!null", "":
		return &String{Value: node.Value, Node: node}
	default:
		d.fail(node, "%s: expected a string, found %s", field, strings.TrimPrefix(node.Tag, "!!"))
		return nil
	}
}

// value decodes any scalar, keeping its text as written
func (d *decoder) value(node *yaml.Node, field string) *Value {
	node = resolveAlias(node)
	if node == nil {
		return nil
	}
	if node.Kind != yaml.ScalarNode {
		d.fail(node, "%s: expected a scalar", field)
		return nil
	}
	return &Value{Raw: node.Value, Node: node}
}

func (d *decoder) triggers(out *Triggers, node *yaml.Node) error {
	node = resolveAlias(node)
	out.Node = node
	switch node.Kind {
	case yaml.ScalarNode:
		out.Events = []Trigger{{Name: node.Value, Node: node}}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			item = resolveAlias(item)
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("%s:%d:%d: on: trigger list entries must be strings", d.doc.Path, item.Line, item.Column)
			}
			out.Events = append(out.Events, Trigger{Name: item.Value, Node: item})
		}
	case yaml.MappingNode:
		for key, val := range mappingEntries(node) {
			out.Events = append(out.Events, Trigger{Name: key.Value, Node: key, Config: val})
		}
	default:
		return fmt.Errorf("%s:%d:%d: on: expected string, list, or mapping", d.doc.Path, node.Line, node.Column)
	}
	return nil
}

func (d *decoder) permissions(out *Permissions, node *yaml.Node) error {
	node = resolveAlias(node)
	out.Node = node
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Value {
		case "read-all":
			out.Base = PermReadAll
		case "write-all":
			out.Base = PermWriteAll
		default:
			return fmt.Errorf("%s:%d:%d: permissions: expected read-all or write-all, found %q", d.doc.Path, node.Line, node.Column, node.Value)
		}
	case yaml.MappingNode:
		if len(node.Content) == 0 {
			out.Base = PermEmpty
			return nil
		}
		out.Base = PermScoped
		for key, val := range mappingEntries(node) {
			val = resolveAlias(val)
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("%s:%d:%d: permissions.%s: expected read, write, or none", d.doc.Path, val.Line, val.Column, key.Value)
			}
			out.Scopes = append(out.Scopes, PermissionScope{
				Scope:    key.Value,
				Access:   val.Value,
				Node:     key,
				ValueNode: val,
			})
		}
	default:
		return fmt.Errorf("%s:%d:%d: permissions: expected shorthand or mapping", d.doc.Path, node.Line, node.Column)
	}
	return nil
}

func (d *decoder) env(node *yaml.Node) *Env {
	node = resolveAlias(node)
	env := &Env{Node: node}
	switch node.Kind {
	case yaml.ScalarNode:
		env.Expr = &String{Value: node.Value, Node: node}
	case yaml.MappingNode:
		for key, val := range mappingEntries(node) {
			env.Items = append(env.Items, EnvVar{
				Name:     key.Value,
				NameNode: key,
				Value:    d.value(val, "env."+key.Value),
			})
		}
	default:
		d.fail(node, "env: expected a mapping")
	}
	return env
}

func (d *decoder) envVars(node *yaml.Node, field string) []EnvVar {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		d.fail(node, "%s: expected a mapping", field)
		return nil
	}
	var items []EnvVar
	for key, val := range mappingEntries(node) {
		items = append(items, EnvVar{
			Name:     key.Value,
			NameNode: key,
			Value:    d.value(val, field+"."+key.Value),
		})
	}
	return items
}

func (d *decoder) runsOn(node *yaml.Node) *RunsOn {
	node = resolveAlias(node)
	out := &RunsOn{Node: node}
	switch node.Kind {
	case yaml.ScalarNode:
		out.Labels = []*String{{Value: node.Value, Node: node}}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			out.Labels = append(out.Labels, d.str(item, "runs-on"))
		}
	case yaml.MappingNode:
		for key, val := range mappingEntries(node) {
			switch key.Value {
			case "group":
				out.Group = d.str(val, "runs-on.group")
			case "labels":
				val = resolveAlias(val)
				if val.Kind == yaml.SequenceNode {
					for _, item := range val.Content {
						out.GroupLabels = append(out.GroupLabels, d.str(item, "runs-on.labels"))
					}
				} else {
					out.GroupLabels = append(out.GroupLabels, d.str(val, "runs-on.labels"))
				}
			}
		}
	default:
		d.fail(node, "runs-on: expected string, list, or group mapping")
	}
	return out
}

func (d *decoder) container(node *yaml.Node, field string) *Container {
	node = resolveAlias(node)
	out := &Container{Node: node}
	switch node.Kind {
	case yaml.ScalarNode:
		out.Image = d.str(node, field)
	case yaml.MappingNode:
		for key, val := range mappingEntries(node) {
			switch key.Value {
			case "image":
				out.Image = d.str(val, field+".image")
			case "credentials":
				val = resolveAlias(val)
				creds := &Credentials{Node: val}
				if val.Kind == yaml.MappingNode {
					for ck, cv := range mappingEntries(val) {
						switch ck.Value {
						case "username":
							creds.Username = d.value(cv, field+".credentials.username")
						case "password":
							creds.Password = d.value(cv, field+".credentials.password")
						}
					}
				}
				out.Credentials = creds
			}
		}
	default:
		d.fail(node, "%s: expected image string or mapping", field)
	}
	return out
}

func (d *decoder) strategy(node *yaml.Node) *Strategy {
	node = resolveAlias(node)
	out := &Strategy{Node: node}
	if node.Kind != yaml.MappingNode {
		d.fail(node, "strategy: expected a mapping")
		return out
	}
	for key, val := range mappingEntries(node) {
		switch key.Value {
		case "matrix":
			out.Matrix = resolveAlias(val)
		case "fail-fast":
			out.FailFast = d.value(val, "strategy.fail-fast")
		case "max-parallel":
			out.MaxParallel = d.value(val, "strategy.max-parallel")
		}
	}
	return out
}

func (d *decoder) secrets(node *yaml.Node) *Secrets {
	node = resolveAlias(node)
	out := &Secrets{Node: node}
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != "inherit" {
			d.fail(node, "secrets: expected inherit or a mapping")
			return out
		}
		out.Inherit = true
	case yaml.MappingNode:
		out.Items = d.envVars(node, "secrets")
	default:
		d.fail(node, "secrets: expected inherit or a mapping")
	}
	return out
}

func (d *decoder) steps(node *yaml.Node, prefix string) []*Step {
	node = resolveAlias(node)
	if node.Kind != yaml.SequenceNode {
		d.fail(node, "%s.steps: expected a sequence", prefix)
		return nil
	}
	seen := map[string]bool{}
	var steps []*Step
	for i, item := range node.Content {
		step := d.step(item, i, prefix)
		if step == nil {
			continue
		}
		if step.ID != nil && step.ID.Value != "" {
			if seen[step.ID.Value] {
				d.fail(step.ID.Node, "%s.steps: duplicate step id %q", prefix, step.ID.Value)
			}
			seen[step.ID.Value] = true
		}
		steps = append(steps, step)
	}
	return steps
}

func (d *decoder) step(node *yaml.Node, index int, prefix string) *Step {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		d.fail(node, "%s.steps[%d]: expected a mapping", prefix, index)
		return nil
	}
	step := &Step{Index: index, Node: node}
	for key, val := range mappingEntries(node) {
		field := fmt.Sprintf("%s.steps[%d].%s", prefix, index, key.Value)
		switch key.Value {
		case "id":
			step.ID = d.str(val, field)
		case "name":
			step.Name = d.str(val, field)
		case "if":
			step.If = d.ifCondition(val, field)
		case "uses":
			step.Uses = d.str(val, field)
		case "run":
			step.Run = d.str(val, field)
		case "shell":
			step.Shell = d.str(val, field)
		case "working-directory":
			step.WorkingDirectory = d.str(val, field)
		case "with":
			step.With = d.envVars(val, field)
		case "env":
			step.Env = d.env(val)
		case "continue-on-error":
			step.ContinueOnError = d.value(val, field)
		case "timeout-minutes":
			step.TimeoutMinutes = d.value(val, field)
		}
	}
	return step
}

// ifCondition accepts any scalar: `if: true` and bare expressions are
// both legal in condition position.
func (d *decoder) ifCondition(node *yaml.Node, field string) *String {
	node = resolveAlias(node)
	if node == nil {
		return nil
	}
	if node.Kind != yaml.ScalarNode {
		d.fail(node, "%s: expected a scalar condition", field)
		return nil
	}
	return &String{Value: node.Value, Node: node}
}

func (d *decoder) jobs(node *yaml.Node) ([]*Job, error) {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s:%d:%d: jobs: expected a mapping", d.doc.Path, node.Line, node.Column)
	}
	var jobs []*Job
	for key, val := range mappingEntries(node) {
		job, err := d.job(key, val)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (d *decoder) job(key, node *yaml.Node) (*Job, error) {
	node = resolveAlias(node)
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s:%d:%d: jobs.%s: expected a mapping", d.doc.Path, node.Line, node.Column, key.Value)
	}
	job := &Job{ID: key.Value, IDNode: key, Node: node, Unknown: map[string]*yaml.Node{}}
	for k, v := range mappingEntries(node) {
		field := fmt.Sprintf("jobs.%s.%s", job.ID, k.Value)
		switch k.Value {
		case "name":
			job.Name = d.str(v, field)
		case "runs-on":
			job.RunsOn = d.runsOn(v)
		case "permissions":
			if err := d.permissions(&job.Permissions, v); err != nil {
				return nil, err
			}
		case "env":
			job.Env = d.env(v)
		case "defaults":
			job.Defaults = v
		case "if":
			job.If = d.ifCondition(v, field)
		case "needs":
			rv := resolveAlias(v)
			if rv.Kind == yaml.SequenceNode {
				for _, item := range rv.Content {
					job.Needs = append(job.Needs, d.str(item, field))
				}
			} else {
				job.Needs = append(job.Needs, d.str(v, field))
			}
		case "strategy":
			job.Strategy = d.strategy(v)
		case "container":
			job.Container = d.container(v, field)
		case "services":
			rv := resolveAlias(v)
			if rv.Kind != yaml.MappingNode {
				return nil, fmt.Errorf("%s:%d:%d: %s: expected a mapping", d.doc.Path, rv.Line, rv.Column, field)
			}
			for sk, sv := range mappingEntries(rv) {
				job.Services = append(job.Services, Service{
					Name:      sk.Value,
					NameNode:  sk,
					Container: d.container(sv, field+"."+sk.Value),
				})
			}
		case "outputs":
			job.Outputs = d.envVars(v, field)
		case "steps":
			job.Steps = d.steps(v, "jobs."+job.ID)
		case "uses":
			job.Uses = d.str(v, field)
		case "with":
			job.With = d.envVars(v, field)
		case "secrets":
			job.Secrets = d.secrets(v)
		case "continue-on-error":
			job.ContinueOnError = d.value(v, field)
		case "timeout-minutes":
			job.TimeoutMinutes = d.value(v, field)
		default:
			job.Unknown[k.Value] = v
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return job, nil
}

// mappingEntries iterates a mapping node's key/value pairs in
// declaration order
func mappingEntries(node *yaml.Node) func(yield func(key, val *yaml.Node) bool) {
	return func(yield func(key, val *yaml.Node) bool) {
		if node == nil || node.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i+1 < len(node.Content); i += 2 {
			if !yield(node.Content[i], resolveAlias(node.Content[i+1])) {
				return
			}
		}
	}
}
