package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".github", "workflows", "ci.yml"), "on: push\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	writeFile(t, filepath.Join(root, ".github", "workflows", "notes.txt"), "not yaml")
	writeFile(t, filepath.Join(root, "actions", "setup", "action.yml"), "name: Setup\ndescription: d\nruns:\n  using: composite\n  steps: []\n")

	inputs, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, inputs, 2)
}

func TestDiscoverSingleFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "wf.yml")
	writeFile(t, path, "on: push\njobs: {}\n")

	inputs, err := Discover(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, inputs)

	_, err = Discover(filepath.Join(root, "missing.yml"))
	require.Error(t, err)
}

func TestLoadInputClassification(t *testing.T) {
	root := t.TempDir()

	wfPath := filepath.Join(root, "ci.yml")
	writeFile(t, wfPath, "on: push\njobs:\n  a:\n    runs-on: ubuntu-latest\n    steps: []\n")
	in, err := LoadInput(wfPath)
	require.NoError(t, err)
	assert.Equal(t, InputWorkflow, in.Kind)
	require.NotNil(t, in.Workflow)

	actionPath := filepath.Join(root, "action.yml")
	writeFile(t, actionPath, "name: A\ndescription: d\nruns:\n  using: node20\n  main: index.js\n")
	in, err = LoadInput(actionPath)
	require.NoError(t, err)
	assert.Equal(t, InputAction, in.Kind)
	require.NotNil(t, in.Action)
}

func TestExpandLocalActions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".github", "workflows", "ci.yml"), `on: push
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - uses: ./actions/one
`)
	// Two composite actions that reference each other: the visited set
	// must terminate the chain.
	writeFile(t, filepath.Join(root, "actions", "one", "action.yml"), `name: One
description: d
runs:
  using: composite
  steps:
    - uses: ./actions/two
`)
	writeFile(t, filepath.Join(root, "actions", "two", "action.yml"), `name: Two
description: d
runs:
  using: composite
  steps:
    - uses: ./actions/one
`)

	in, err := LoadInput(filepath.Join(root, ".github", "workflows", "ci.yml"))
	require.NoError(t, err)

	expanded := ExpandLocalActions(root, []*Input{in})
	require.Len(t, expanded, 3)

	names := map[InputKind]int{}
	for _, e := range expanded {
		names[e.Kind]++
	}
	assert.Equal(t, 1, names[InputWorkflow])
	assert.Equal(t, 2, names[InputAction])
}

func TestExpandLocalActionsBrokenRefIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".github", "workflows", "ci.yml"), `on: push
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - uses: ./actions/missing
`)
	in, err := LoadInput(filepath.Join(root, ".github", "workflows", "ci.yml"))
	require.NoError(t, err)

	expanded := ExpandLocalActions(root, []*Input{in})
	assert.Len(t, expanded, 1)
}
