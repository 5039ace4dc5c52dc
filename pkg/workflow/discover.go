package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghast-sh/ghast/pkg/uses"
)

// InputKind distinguishes workflow files from action definitions
type InputKind int

const (
	InputWorkflow InputKind = iota
	InputAction
)

// Input is one analyzable file: its document plus exactly one of the
// typed models
type Input struct {
	Kind     InputKind
	Doc      *Document
	Workflow *Workflow
	Action   *Action
}

// LoadInput loads and decodes a single file, classifying it by name
func LoadInput(path string) (*Input, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}

	if isActionFile(path) {
		action, err := DecodeAction(doc)
		if err != nil {
			return nil, err
		}
		return &Input{Kind: InputAction, Doc: doc, Action: action}, nil
	}

	wf, err := DecodeWorkflow(doc)
	if err != nil {
		return nil, err
	}
	return &Input{Kind: InputWorkflow, Doc: doc, Workflow: wf}, nil
}

// Discover expands a path into the set of analyzable inputs. Files are
// accepted as given; directories are searched for .github/workflows
// YAML files and action definitions.
func Discover(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read input %s: %w", path, err)
	}

	if !info.IsDir() {
		if !isYAMLFile(path) {
			return nil, fmt.Errorf("%s does not have a YAML extension (.yml or .yaml)", path)
		}
		return []string{path}, nil
	}

	var inputs []string

	workflowsDir := filepath.Join(path, ".github", "workflows")
	if stat, err := os.Stat(workflowsDir); err == nil && stat.IsDir() {
		err := filepath.Walk(workflowsDir, func(p string, fi os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !fi.IsDir() && isYAMLFile(p) {
				inputs = append(inputs, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error searching for workflow files: %w", err)
		}
	}

	// Action definitions at the repository root or in subdirectories.
	err = filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			name := fi.Name()
			if name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if isActionFile(p) {
			inputs = append(inputs, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error searching for action files: %w", err)
	}

	if len(inputs) == 0 {
		return nil, fmt.Errorf("no workflow or action files found in %s", path)
	}
	return inputs, nil
}

// ExpandLocalActions follows local `uses: ./path` references from the
// given inputs and loads the action definitions they point at, rooted
// at the repository root. Composite actions can reference each other
// transitively; a visited set terminates cycles by treating repeated
// definitions as opaque. Broken references are skipped.
func ExpandLocalActions(root string, inputs []*Input) []*Input {
	visited := map[string]bool{}
	for _, in := range inputs {
		visited[in.Doc.Path] = true
	}

	queue := append([]*Input(nil), inputs...)
	out := inputs
	for len(queue) > 0 {
		in := queue[0]
		queue = queue[1:]

		for _, ref := range localRefs(in) {
			dir := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(ref, "./")))
			for _, name := range []string{"action.yml", "action.yaml"} {
				path := filepath.Join(dir, name)
				if visited[path] {
					continue
				}
				visited[path] = true
				if _, err := os.Stat(path); err != nil {
					continue
				}
				loaded, err := LoadInput(path)
				if err != nil {
					continue
				}
				out = append(out, loaded)
				queue = append(queue, loaded)
			}
		}
	}
	return out
}

// localRefs collects the local action paths an input references
func localRefs(in *Input) []string {
	var steps []*Step
	if in.Workflow != nil {
		for _, job := range in.Workflow.Jobs {
			steps = append(steps, job.Steps...)
		}
	}
	if in.Action != nil {
		steps = append(steps, in.Action.Runs.Steps...)
	}

	var refs []string
	for _, step := range steps {
		if step.Uses == nil {
			continue
		}
		parsed, err := uses.Parse(step.Uses.Value)
		if err != nil || parsed.Local == nil {
			continue
		}
		refs = append(refs, parsed.Local.Path)
	}
	return refs
}

func isYAMLFile(path string) bool {
	return strings.HasSuffix(path, ".yml") || strings.HasSuffix(path, ".yaml")
}

func isActionFile(path string) bool {
	base := filepath.Base(path)
	return base == "action.yml" || base == "action.yaml"
}
