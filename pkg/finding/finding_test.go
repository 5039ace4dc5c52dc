package finding

import "testing"

func TestSortCanonical(t *testing.T) {
	findings := []Finding{
		{AuditID: "b", Locations: []Annotation{{Location: Location{Path: "b.yml", Span: Span{Start: 10}}, Primary: true}}},
		{AuditID: "b", Locations: []Annotation{{Location: Location{Path: "a.yml", Span: Span{Start: 20}}, Primary: true}}},
		{AuditID: "a", Locations: []Annotation{{Location: Location{Path: "a.yml", Span: Span{Start: 20}}, Primary: true}}},
		{AuditID: "c", Locations: []Annotation{{Location: Location{Path: "a.yml", Span: Span{Start: 5}}, Primary: true}}},
	}

	Sort(findings)

	want := []struct {
		path  string
		start int
		id    string
	}{
		{"a.yml", 5, "c"},
		{"a.yml", 20, "a"},
		{"a.yml", 20, "b"},
		{"b.yml", 10, "b"},
	}
	for i, w := range want {
		p := findings[i].Primary()
		if p.Location.Path != w.path || p.Location.Span.Start != w.start || findings[i].AuditID != w.id {
			t.Errorf("position %d: got (%s, %d, %s)", i, p.Location.Path, p.Location.Span.Start, findings[i].AuditID)
		}
	}
}

func TestPrimaryFallback(t *testing.T) {
	f := Finding{Locations: []Annotation{
		{Location: Location{Path: "x.yml"}},
		{Location: Location{Path: "y.yml"}, Primary: true},
	}}
	if f.Primary().Location.Path != "y.yml" {
		t.Error("explicit primary not selected")
	}

	noPrimary := Finding{Locations: []Annotation{{Location: Location{Path: "x.yml"}}}}
	if noPrimary.Primary().Location.Path != "x.yml" {
		t.Error("first location should be the fallback primary")
	}

	empty := Finding{}
	if empty.Primary() != nil {
		t.Error("no locations means no primary")
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !High.AtLeast(Medium) || Medium.AtLeast(High) {
		t.Error("severity ordering broken")
	}
	if !Informational.AtLeast(Informational) {
		t.Error("AtLeast should be reflexive")
	}
	if !ConfidenceHigh.AtLeast(ConfidenceLow) || ConfidenceLow.AtLeast(ConfidenceMedium) {
		t.Error("confidence ordering broken")
	}
}

func TestParseSeverity(t *testing.T) {
	if _, ok := ParseSeverity("medium"); !ok {
		t.Error("medium should parse")
	}
	if _, ok := ParseSeverity("catastrophic"); ok {
		t.Error("unknown severity should not parse")
	}
	if _, ok := ParseConfidence("high"); !ok {
		t.Error("high confidence should parse")
	}
}
