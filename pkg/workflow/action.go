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

// ActionKind distinguishes the three `runs:` variants of an action
// metadata file
type ActionKind int

const (
	ActionComposite ActionKind = iota
	ActionDocker
	ActionJavaScript
)

// ActionRuns is the decoded `runs:` block of an action definition
type ActionRuns struct {
	Node  *yaml.Node
	Using *String

	// composite
	Steps []*Step

	// docker
	Image *String
	Args  *yaml.Node
	Env   *Env

	// javascript
	Main *String
	Pre  *String
	Post *String
}

// Action is the typed model of an action.yml / action.yaml file
type Action struct {
	Doc *Document

	Name        *String
	Description *String
	Inputs      *yaml.Node
	Outputs     *yaml.Node
	Runs        ActionRuns

	Unknown map[string]*yaml.Node
}

// Kind classifies the action by its `runs.using` value
func (a *Action) Kind() ActionKind {
	if a.Runs.Using == nil {
		return ActionComposite
	}
	using := a.Runs.Using.Value
	switch {
	case using == "composite":
		return ActionComposite
	case using == "docker":
		return ActionDocker
	case strings.HasPrefix(using, "node"):
		return ActionJavaScript
	}
	return ActionComposite
}

// DecodeAction decodes a loaded document into the typed action model
func DecodeAction(doc *Document) (*Action, error) {
	body := doc.Body()
	if body == nil || body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: action definition must be a YAML mapping", doc.Path)
	}

	a := &Action{Doc: doc, Unknown: map[string]*yaml.Node{}}
	dec := decoder{doc: doc}

	sawRuns := false
	for key, val := range mappingEntries(body) {
		switch key.Value {
		case "name":
			a.Name = dec.str(val, "name")
		case "description":
			a.Description = dec.str(val, "description")
		case "inputs":
			a.Inputs = val
		case "outputs":
			a.Outputs = val
		case "runs":
			sawRuns = true
			if err := dec.actionRuns(&a.Runs, val); err != nil {
				return nil, err
			}
		default:
			a.Unknown[key.Value] = val
		}
	}

	if dec.err != nil {
		return nil, dec.err
	}
	if !sawRuns {
		return nil, fmt.Errorf("%s: action definition has no runs block", doc.Path)
	}
	return a, nil
}

func (d *decoder) actionRuns(out *ActionRuns, node *yaml.Node) error {
	node = resolveAlias(node)
	out.Node = node
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%s:%d:%d: runs: expected a mapping", d.doc.Path, node.Line, node.Column)
	}
	for key, val := range mappingEntries(node) {
		switch key.Value {
		case "using":
			out.Using = d.str(val, "runs.using")
		case "steps":
			out.Steps = d.steps(val, "runs")
		case "image":
			out.Image = d.str(val, "runs.image")
		case "args":
			out.Args = val
		case "env":
			out.Env = d.env(val)
		case "main":
			out.Main = d.str(val, "runs.main")
		case "pre":
			out.Pre = d.str(val, "runs.pre")
		case "post":
			out.Post = d.str(val, "runs.post")
		}
	}
	return d.err
}
