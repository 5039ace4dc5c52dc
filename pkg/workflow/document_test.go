package workflow

import (
	"strings"
	"testing"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleWorkflow = `name: CI
on:
  push:
    branches: [main]
  pull_request:

permissions:
  contents: read

jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - name: Build
        run: |
          make build
          make test
`

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument("ci.yml", []byte(sampleWorkflow))
	require.NoError(t, err)
	require.NotNil(t, doc.Body())
	assert.Equal(t, []byte(sampleWorkflow), doc.Raw)
}

func TestDuplicateKeysRejected(t *testing.T) {
	input := "name: a\nname: b\njobs: {}\n"
	_, err := ParseDocument("dup.yml", []byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate mapping key")
	assert.Contains(t, err.Error(), `"name"`)
}

func TestSyntaxErrorHasLocation(t *testing.T) {
	input := "name: [unclosed\njobs:\n"
	_, err := ParseDocument("bad.yml", []byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.yml")
}

// TestSpanFidelity checks the core location invariant: every span
// resolves to the exact text the node was decoded from
func TestSpanFidelity(t *testing.T) {
	doc, err := ParseDocument("ci.yml", []byte(sampleWorkflow))
	require.NoError(t, err)
	wf, err := DecodeWorkflow(doc)
	require.NoError(t, err)

	job := wf.Jobs[0]
	require.Len(t, job.Steps, 2)

	usesNode := job.Steps[0].Uses.Node
	span := doc.Span(usesNode)
	assert.Equal(t, "actions/checkout@v4", doc.Snippet(span))

	label := job.RunsOn.Labels[0]
	assert.Equal(t, "ubuntu-latest", doc.Snippet(doc.Span(label.Node)))

	runSpan := doc.Span(job.Steps[1].Run.Node)
	snippet := doc.Snippet(runSpan)
	assert.Contains(t, snippet, "make build")
	assert.Contains(t, snippet, "make test")
}

func TestSpanQuotedScalars(t *testing.T) {
	input := "name: \"quoted name\"\nother: 'single ''quoted'''\njobs:\n  a:\n    steps: []\n"
	doc, err := ParseDocument("q.yml", []byte(input))
	require.NoError(t, err)

	body := doc.Body()
	nameVal := body.Content[1]
	assert.Equal(t, `"quoted name"`, doc.Snippet(doc.Span(nameVal)))

	otherVal := body.Content[3]
	assert.Equal(t, `'single ''quoted'''`, doc.Snippet(doc.Span(otherVal)))
}

func TestSubSpan(t *testing.T) {
	input := "run: echo ${{ github.event.issue.title }}\n"
	doc, err := ParseDocument("s.yml", []byte(input))
	require.NoError(t, err)

	whole := finding.Span{Start: 0, End: len(input)}
	sub := doc.SubSpan(whole, "github.event.issue.title")
	assert.Equal(t, "github.event.issue.title", doc.Snippet(sub))

	missing := doc.SubSpan(whole, "not present anywhere")
	assert.Equal(t, whole, missing)
}

func TestLineMapRoundTrip(t *testing.T) {
	content := "first\nsecond line\n\nfourth\n"
	lm := NewLineMap([]byte(content))

	for offset := 0; offset < len(content); offset++ {
		line, col := lm.Position(offset)
		back := lm.Offset(line, col)
		assert.Equal(t, offset, back, "offset %d", offset)
	}

	assert.Equal(t, "second line", lm.LineText(2))
	assert.Equal(t, 5, lm.LineEnd(1))
}

func TestAnchorsExpanded(t *testing.T) {
	input := strings.Join([]string{
		"defaults: &shared",
		"  shell: bash",
		"on: push",
		"jobs:",
		"  a:",
		"    runs-on: ubuntu-latest",
		"    defaults: *shared",
		"    steps: []",
		"",
	}, "\n")
	doc, err := ParseDocument("anchor.yml", []byte(input))
	require.NoError(t, err)
	wf, err := DecodeWorkflow(doc)
	require.NoError(t, err)
	require.NotNil(t, wf.Jobs[0].Defaults)
	assert.Equal(t, "bash", wf.Jobs[0].Defaults.Content[1].Value)
}
