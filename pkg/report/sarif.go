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

package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/ghast-sh/ghast/pkg/finding"
)

// SARIF v2.1.0 document structures, per the code-scanning subset of
// https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

type sarifReport struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Invocations []sarifInvocation `json:"invocations"`
	Results     []sarifResult     `json:"results"`
	ColumnKind  string            `json:"columnKind,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version,omitempty"`
	InformationURI string      `json:"informationUri,omitempty"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name,omitempty"`
	ShortDescription     sarifMessage      `json:"shortDescription"`
	HelpURI              string            `json:"helpUri,omitempty"`
	DefaultConfiguration sarifRuleSeverity `json:"defaultConfiguration"`
}

type sarifRuleSeverity struct {
	Level string `json:"level"`
}

type sarifInvocation struct {
	ExecutionSuccessful        bool                `json:"executionSuccessful"`
	StartTimeUTC               string              `json:"startTimeUtc,omitempty"`
	EndTimeUTC                 string              `json:"endTimeUtc,omitempty"`
	ToolExecutionNotifications []sarifNotification `json:"toolExecutionNotifications,omitempty"`
}

type sarifNotification struct {
	Level      string        `json:"level"`
	Message    sarifMessage  `json:"message"`
	Descriptor *sarifRuleRef `json:"associatedRule,omitempty"`
}

type sarifRuleRef struct {
	ID string `json:"id"`
}

type sarifResult struct {
	RuleID              string            `json:"ruleId"`
	RuleIndex           int               `json:"ruleIndex"`
	Level               string            `json:"level"`
	Message             sarifMessage      `json:"message"`
	Locations           []sarifLocation   `json:"locations"`
	RelatedLocations    []sarifLocation   `json:"relatedLocations,omitempty"`
	PartialFingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
	Message          *sarifMessage         `json:"message,omitempty"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int           `json:"startLine,omitempty"`
	StartColumn int           `json:"startColumn,omitempty"`
	EndLine     int           `json:"endLine,omitempty"`
	EndColumn   int           `json:"endColumn,omitempty"`
	ByteOffset  int           `json:"byteOffset"`
	ByteLength  int           `json:"byteLength"`
	Snippet     *sarifContent `json:"snippet,omitempty"`
}

type sarifContent struct {
	Text string `json:"text"`
}

const sarifSchema = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/master/Schemata/sarif-schema-2.1.0.json"

// sarif renders the full SARIF wrapper
func (g *Generator) sarif() error {
	rules, ruleIndex := g.sarifRules()

	invocation := sarifInvocation{
		ExecutionSuccessful: !g.Run.Cancelled,
	}
	if !g.Run.StartTime.IsZero() {
		invocation.StartTimeUTC = g.Run.StartTime.UTC().Format("2006-01-02T15:04:05Z")
		invocation.EndTimeUTC = g.Run.StartTime.Add(g.Run.Duration).UTC().Format("2006-01-02T15:04:05Z")
	}
	for _, diag := range g.Run.Diagnostics {
		note := sarifNotification{
			Level:   "note",
			Message: sarifMessage{Text: diag.Message},
		}
		if diag.AuditID != "" {
			note.Descriptor = &sarifRuleRef{ID: diag.AuditID}
		}
		invocation.ToolExecutionNotifications = append(invocation.ToolExecutionNotifications, note)
	}

	results := g.sarifResults()
	for i := range results {
		results[i].RuleIndex = ruleIndex[results[i].RuleID]
	}

	doc := sarifReport{
		Version: "2.1.0",
		Schema:  sarifSchema,
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:           "ghast",
				InformationURI: "https://github.com/ghast-sh/ghast",
				Rules:          rules,
			}},
			Invocations: []sarifInvocation{invocation},
			Results:     results,
			ColumnKind:  "utf16CodeUnits",
		}},
	}

	enc := json.NewEncoder(g.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// sarifRules builds rule metadata for every registered audit, not just
// those with findings, so rule indices are stable across runs
func (g *Generator) sarifRules() ([]sarifRule, map[string]int) {
	var rules []sarifRule
	index := map[string]int{}
	for _, a := range g.Run.Audits {
		index[a.ID] = len(rules)
		rules = append(rules, sarifRule{
			ID:               a.ID,
			Name:             a.Name,
			ShortDescription: sarifMessage{Text: a.Description},
			HelpURI:          a.URL,
			DefaultConfiguration: sarifRuleSeverity{
				Level: severityToLevel(defaultSeverityFor(g.Run, a.ID)),
			},
		})
	}
	return rules, index
}

// defaultSeverityFor picks the severity of the audit's first finding,
// or medium when the audit produced none this run
func defaultSeverityFor(run *Run, auditID string) finding.Severity {
	for _, f := range run.Findings {
		if f.AuditID == auditID {
			return f.Severity
		}
	}
	return finding.Medium
}

func (g *Generator) sarifResults() []sarifResult {
	var results []sarifResult
	for _, f := range g.Run.Findings {
		primary := f.Primary()

		result := sarifResult{
			RuleID:  f.AuditID,
			Level:   severityToLevel(f.Severity),
			Message: sarifMessage{Text: f.Description},
		}

		for _, ann := range f.Locations {
			loc := g.sarifLocation(ann)
			if ann.Primary {
				result.Locations = append(result.Locations, loc)
			} else {
				result.RelatedLocations = append(result.RelatedLocations, loc)
			}
		}
		if len(result.Locations) == 0 && len(result.RelatedLocations) > 0 {
			result.Locations = result.RelatedLocations[:1]
			result.RelatedLocations = result.RelatedLocations[1:]
		}

		if primary != nil {
			var snippet string
			if doc := g.Run.Documents[primary.Location.Path]; doc != nil {
				snippet = doc.Snippet(primary.Location.Span)
			}
			result.PartialFingerprints = map[string]string{
				"ghast/v1": fingerprint(f.AuditID, primary.Location.Path, snippet),
			}
		}

		results = append(results, result)
	}
	return results
}

func (g *Generator) sarifLocation(ann finding.Annotation) sarifLocation {
	region := sarifRegion{
		ByteOffset: ann.Location.Span.Start,
		ByteLength: ann.Location.Span.End - ann.Location.Span.Start,
	}
	if doc := g.Run.Documents[ann.Location.Path]; doc != nil {
		region.StartLine, region.StartColumn = doc.Position(ann.Location.Span.Start)
		region.EndLine, region.EndColumn = doc.Position(ann.Location.Span.End)
		if snippet := doc.Snippet(ann.Location.Span); snippet != "" {
			region.Snippet = &sarifContent{Text: snippet}
		}
	}

	loc := sarifLocation{
		PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: normalizeURI(ann.Location.Path)},
			Region:           region,
		},
	}
	if ann.Message != "" {
		loc.Message = &sarifMessage{Text: ann.Message}
	}
	return loc
}

func severityToLevel(s finding.Severity) string {
	switch s {
	case finding.High:
		return "error"
	case finding.Medium:
		return "warning"
	default:
		return "note"
	}
}

// normalizeURI converts a path to the forward-slash relative form the
// code-scanning backend expects
func normalizeURI(path string) string {
	normalized := filepath.ToSlash(path)
	if idx := strings.Index(normalized, ".github/workflows/"); idx >= 0 {
		return normalized[idx:]
	}
	return strings.TrimPrefix(normalized, "/")
}

// fingerprint derives a stable partial fingerprint from the audit, the
// file, and the finding's surrounding text
func fingerprint(auditID, path, snippet string) string {
	h := sha256.New()
	h.Write([]byte(auditID))
	h.Write([]byte{0})
	h.Write([]byte(normalizeURI(path)))
	h.Write([]byte{0})
	h.Write([]byte(snippet))
	return hex.EncodeToString(h.Sum(nil))
}
