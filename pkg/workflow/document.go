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
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ghast-sh/ghast/pkg/finding"
	"gopkg.in/yaml.v3"
)

// Document is a parsed YAML input file. It keeps the raw bytes alongside
// the node tree so downstream consumers can resolve nodes back to exact
// byte ranges and re-quote snippets.
type Document struct {
	Path string
	Raw  []byte
	Root *yaml.Node

	lineMap *LineMap
}

// LoadDocument reads and parses a single YAML file
func LoadDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseDocument(path, raw)
}

// ParseDocument parses raw YAML bytes into a Document
func ParseDocument(path string, raw []byte) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	doc := &Document{
		Path:    path,
		Raw:     raw,
		Root:    &root,
		lineMap: NewLineMap(raw),
	}

	if err := doc.checkDuplicateKeys(resolveAlias(&root), 0); err != nil {
		return nil, err
	}

	return doc, nil
}

// Body returns the document's top-level mapping node, or nil for an
// empty document
func (d *Document) Body() *yaml.Node {
	if d.Root == nil || len(d.Root.Content) == 0 {
		return nil
	}
	return resolveAlias(d.Root.Content[0])
}

// checkDuplicateKeys rejects mappings that define the same key twice.
// yaml.v3's node API accepts them silently; we treat them as a syntax
// error because the platform's behavior for duplicates is undefined.
func (d *Document) checkDuplicateKeys(node *yaml.Node, depth int) error {
	if node == nil || depth > 64 {
		return nil
	}
	if node.Kind == yaml.MappingNode {
		seen := map[string]int{}
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			if prev, ok := seen[key.Value]; ok {
				return fmt.Errorf("%s:%d: duplicate mapping key %q (previously defined on line %d)",
					d.Path, key.Line, key.Value, prev)
			}
			seen[key.Value] = key.Line
		}
	}
	for _, child := range node.Content {
		if err := d.checkDuplicateKeys(resolveAlias(child), depth+1); err != nil {
			return err
		}
	}
	return nil
}

// Offset converts a 1-based (line, column) pair to a byte offset
func (d *Document) Offset(line, column int) int {
	return d.lineMap.Offset(line, column)
}

// Position converts a byte offset back to a 1-based (line, column) pair
func (d *Document) Position(offset int) (line, column int) {
	return d.lineMap.Position(offset)
}

// Line returns the text of a 1-based line without its newline
func (d *Document) Line(line int) string {
	return d.lineMap.LineText(line)
}

// LineStart returns the byte offset where a 1-based line begins
func (d *Document) LineStart(line int) int {
	return d.lineMap.Offset(line, 1)
}

// Span computes the byte range covered by a node's scalar content.
// Quoted and block scalars are measured against the raw bytes so the
// range always resolves to real source text.
func (d *Document) Span(node *yaml.Node) finding.Span {
	node = resolveAlias(node)
	if node == nil {
		return finding.Span{}
	}

	start := d.lineMap.Offset(node.Line, node.Column)
	if start < 0 || start >= len(d.Raw) {
		return finding.Span{Start: start, End: start}
	}

	switch node.Kind {
	case yaml.ScalarNode:
		return d.scalarSpan(node, start)
	default:
		// For mappings and sequences the span starts at the node and runs
		// to the end of the last child.
		end := start
		if n := lastScalar(node); n != nil {
			child := d.Span(n)
			if child.End > end {
				end = child.End
			}
		}
		return finding.Span{Start: start, End: end}
	}
}

func (d *Document) scalarSpan(node *yaml.Node, start int) finding.Span {
	switch node.Style {
	case yaml.SingleQuotedStyle, yaml.DoubleQuotedStyle:
		quote := d.Raw[start]
		for i := start + 1; i < len(d.Raw); i++ {
			if d.Raw[i] == quote {
				if quote == '\'' && i+1 < len(d.Raw) && d.Raw[i+1] == '\'' {
					i++ // escaped single quote
					continue
				}
				if quote == '"' && d.Raw[i-1] == '\\' {
					continue
				}
				return finding.Span{Start: start, End: i + 1}
			}
		}
		return finding.Span{Start: start, End: len(d.Raw)}
	case yaml.LiteralStyle, yaml.FoldedStyle:
		return finding.Span{Start: start, End: d.blockEnd(node, start)}
	default:
		// Plain scalar. Single-line values end after the literal text;
		// multi-line plain scalars run to the last continuation line.
		lines := strings.Split(node.Value, "\n")
		if len(lines) == 1 {
			end := start + len(node.Value)
			if end > len(d.Raw) {
				end = len(d.Raw)
			}
			return finding.Span{Start: start, End: end}
		}
		return finding.Span{Start: start, End: d.blockEnd(node, start)}
	}
}

// blockEnd finds the end of a block or multi-line scalar. The content's
// own indentation sets the threshold: the span extends over every
// following line at least that indented, and stops at the first line
// that dedents below it.
func (d *Document) blockEnd(node *yaml.Node, start int) int {
	end := d.lineMap.LineEnd(node.Line)
	if node.Value == "" {
		return end
	}

	contIndent := -1
	for line := node.Line + 1; line <= d.lineMap.Lines(); line++ {
		text := d.lineMap.LineText(line)
		trimmed := strings.TrimLeft(text, " \t")
		if trimmed == "" {
			continue
		}
		contIndent = len(text) - len(trimmed)
		break
	}
	if contIndent < 0 {
		return end
	}

	for line := node.Line + 1; line <= d.lineMap.Lines(); line++ {
		text := d.lineMap.LineText(line)
		trimmed := strings.TrimLeft(text, " \t")
		if trimmed == "" {
			continue
		}
		if len(text)-len(trimmed) < contIndent {
			break
		}
		end = d.lineMap.LineEnd(line)
	}
	if end < start {
		end = start
	}
	return end
}

// Snippet returns the raw source text for a span
func (d *Document) Snippet(span finding.Span) string {
	if span.Start < 0 || span.End > len(d.Raw) || span.Start > span.End {
		return ""
	}
	return string(d.Raw[span.Start:span.End])
}

// Locate builds a Location for a node in this document
func (d *Document) Locate(node *yaml.Node) finding.Location {
	return finding.Location{Path: d.Path, Span: d.Span(node)}
}

// SubSpan narrows a leaf's span to the first occurrence of text inside
// it, preserving span fidelity for findings that point at a fragment of
// a scalar (e.g. one expression inside a run block). Falls back to the
// whole span when the text cannot be found verbatim.
func (d *Document) SubSpan(span finding.Span, text string) finding.Span {
	if text == "" || span.Start >= span.End || span.End > len(d.Raw) {
		return span
	}
	window := d.Raw[span.Start:span.End]
	if idx := bytes.Index(window, []byte(text)); idx >= 0 {
		return finding.Span{Start: span.Start + idx, End: span.Start + idx + len(text)}
	}
	return span
}

func resolveAlias(node *yaml.Node) *yaml.Node {
	for i := 0; node != nil && node.Kind == yaml.AliasNode && i < 64; i++ {
		node = node.Alias
	}
	return node
}

func lastScalar(node *yaml.Node) *yaml.Node {
	if node == nil || len(node.Content) == 0 {
		return nil
	}
	last := resolveAlias(node.Content[len(node.Content)-1])
	if last == nil {
		return nil
	}
	if last.Kind == yaml.ScalarNode {
		return last
	}
	return lastScalar(last)
}
