package expr

import "strings"

// Expansion is one `${{ … }}` occurrence within a string leaf. Offsets
// are byte positions relative to the enclosing string.
type Expansion struct {
	// Raw is the whole expansion including the delimiters
	Raw string
	// Body is the inner text with surrounding whitespace trimmed
	Body string
	// Start and End delimit Raw within the scanned string
	Start int
	End   int
	// BodyStart is the offset of Body within the scanned string
	BodyStart int
}

// Extract scans a string for template expansions. The scan tracks
// single-quoted strings inside the expression body, so a `}}` inside a
// quoted literal does not terminate the expansion.
func Extract(s string) []Expansion {
	var out []Expansion
	for i := 0; i+3 < len(s); {
		start := strings.Index(s[i:], "${{")
		if start < 0 {
			break
		}
		start += i

		inString := false
		end := -1
		for j := start + 3; j < len(s); j++ {
			c := s[j]
			if c == '\'' {
				// '' inside a string is an escaped quote, not a close
				if inString && j+1 < len(s) && s[j+1] == '\'' {
					j++
					continue
				}
				inString = !inString
				continue
			}
			if !inString && c == '}' && j+1 < len(s) && s[j+1] == '}' {
				end = j + 2
				break
			}
		}
		if end < 0 {
			break
		}

		inner := s[start+3 : end-2]
		trimmed := strings.TrimSpace(inner)
		bodyStart := start + 3 + strings.Index(inner, trimmed)
		if trimmed == "" {
			bodyStart = start + 3
		}

		out = append(out, Expansion{
			Raw:       s[start:end],
			Body:      trimmed,
			Start:     start,
			End:       end,
			BodyStart: bodyStart,
		})
		i = end
	}
	return out
}

// Parse parses this expansion's body
func (e Expansion) Parse() (Expr, error) {
	return Parse(e.Body)
}
