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

package finding

import "sort"

// Severity represents the severity level of a finding
type Severity string

const (
	Informational Severity = "informational"
	Low           Severity = "low"
	Medium        Severity = "medium"
	High          Severity = "high"
)

// Confidence represents how confident an audit is in a finding
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var severityRank = map[Severity]int{
	Informational: 0,
	Low:           1,
	Medium:        2,
	High:          3,
}

var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

// AtLeast reports whether s is at or above min
func (s Severity) AtLeast(min Severity) bool {
	return severityRank[s] >= severityRank[min]
}

// AtLeast reports whether c is at or above min
func (c Confidence) AtLeast(min Confidence) bool {
	return confidenceRank[c] >= confidenceRank[min]
}

// ParseSeverity maps a user-supplied severity name to a Severity,
// returning false for unknown names
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case Informational, Low, Medium, High:
		return Severity(s), true
	}
	return "", false
}

// ParseConfidence maps a user-supplied confidence name to a Confidence
func ParseConfidence(s string) (Confidence, bool) {
	switch Confidence(s) {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
		return Confidence(s), true
	}
	return "", false
}

// Span is a half-open byte range [Start, End) in an input file
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Location identifies a byte range within an input file
type Location struct {
	Path string `json:"path"`
	Span Span   `json:"span"`
}

// Annotation attaches a message to a location. The primary annotation is
// the one that suppression comments and sorting key off of.
type Annotation struct {
	Location Location `json:"location"`
	Message  string   `json:"message"`
	Primary  bool     `json:"primary,omitempty"`
}

// Finding represents a single result produced by an audit
type Finding struct {
	AuditID     string       `json:"auditId"`
	Severity    Severity     `json:"severity"`
	Confidence  Confidence   `json:"confidence"`
	Description string       `json:"description"`
	Locations   []Annotation `json:"locations"`
	Remediation string       `json:"remediation,omitempty"`

	// SuppressedBy records the location of the inline comment that
	// suppressed this finding, when one matched.
	SuppressedBy *Location `json:"suppressedBy,omitempty"`
}

// Primary returns the finding's primary annotation, falling back to the
// first location when none is marked primary
func (f *Finding) Primary() *Annotation {
	for i := range f.Locations {
		if f.Locations[i].Primary {
			return &f.Locations[i]
		}
	}
	if len(f.Locations) > 0 {
		return &f.Locations[0]
	}
	return nil
}

// Sort orders findings canonically: by file, then primary span start,
// then audit ID. Emission order is deterministic regardless of which
// audits ran or in what order.
func Sort(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		pi, pj := findings[i].Primary(), findings[j].Primary()
		var li, lj Location
		if pi != nil {
			li = pi.Location
		}
		if pj != nil {
			lj = pj.Location
		}
		if li.Path != lj.Path {
			return li.Path < lj.Path
		}
		if li.Span.Start != lj.Span.Start {
			return li.Span.Start < lj.Span.Start
		}
		return findings[i].AuditID < findings[j].AuditID
	})
}
