package audit

import (
	"regexp"
	"strings"

	"github.com/ghast-sh/ghast/pkg/finding"
	"github.com/ghast-sh/ghast/pkg/workflow"
)

// suppressionPattern matches inline suppression comments of the form
//
//	# ghast: ignore[audit-id] or # ghast: ignore[a,b,c]
var suppressionPattern = regexp.MustCompile(`#\s*ghast:\s*ignore\[([a-z0-9, -]+)\]`)

// suppression is one parsed inline comment
type suppression struct {
	line     int
	auditIDs []string
	location finding.Location
}

// findSuppressions scans a document's raw text for suppression comments
func findSuppressions(doc *workflow.Document) []suppression {
	var out []suppression

	lines := strings.Split(string(doc.Raw), "\n")
	for i, text := range lines {
		match := suppressionPattern.FindStringIndex(text)
		if match == nil {
			continue
		}
		ids := suppressionPattern.FindStringSubmatch(text)[1]

		var auditIDs []string
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				auditIDs = append(auditIDs, id)
			}
		}
		if len(auditIDs) == 0 {
			continue
		}

		start := doc.LineStart(i+1) + match[0]
		out = append(out, suppression{
			line:     i + 1,
			auditIDs: auditIDs,
			location: finding.Location{
				Path: doc.Path,
				Span: finding.Span{Start: start, End: start + match[1] - match[0]},
			},
		})
	}

	return out
}

// applySuppressions marks findings whose primary location falls on a
// suppression comment's line, or on the line immediately below it.
// Suppressed findings are dropped from the returned slice; the matched
// comment is recorded as the suppression source.
func applySuppressions(doc *workflow.Document, findings []finding.Finding) (kept, suppressed []finding.Finding) {
	suppressions := findSuppressions(doc)
	if len(suppressions) == 0 {
		return findings, nil
	}

	for _, f := range findings {
		primary := f.Primary()
		if primary == nil || primary.Location.Path != doc.Path {
			kept = append(kept, f)
			continue
		}

		line, _ := doc.Position(primary.Location.Span.Start)

		matched := false
		for i := range suppressions {
			s := &suppressions[i]
			if s.line != line && s.line != line-1 {
				continue
			}
			for _, id := range s.auditIDs {
				if id == f.AuditID {
					loc := s.location
					f.SuppressedBy = &loc
					matched = true
					break
				}
			}
			if matched {
				break
			}
		}

		if matched {
			suppressed = append(suppressed, f)
		} else {
			kept = append(kept, f)
		}
	}

	return kept, suppressed
}
