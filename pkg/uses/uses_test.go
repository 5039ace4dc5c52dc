package uses

import "testing"

func TestParseRepository(t *testing.T) {
	cases := []struct {
		input   string
		owner   string
		repo    string
		subpath string
		ref     string
	}{
		{"actions/checkout@v4", "actions", "checkout", "", "v4"},
		{"actions/checkout", "actions", "checkout", "", ""},
		{"actions/aws/ec2@main", "actions", "aws", "ec2", "main"},
		{"github/codeql-action/analyze@v3", "github", "codeql-action", "analyze", "v3"},
		{"actions/checkout@11bd71901bbe5b1630ceea73d27597364c9af683", "actions", "checkout", "", "11bd71901bbe5b1630ceea73d27597364c9af683"},
	}

	for _, tc := range cases {
		ref, err := Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tc.input, err)
		}
		repo := ref.Repository
		if repo == nil {
			t.Fatalf("Parse(%q) did not yield a repository reference", tc.input)
		}
		if repo.Owner != tc.owner || repo.Repo != tc.repo || repo.Subpath != tc.subpath || repo.Ref != tc.ref {
			t.Errorf("Parse(%q) = %+v", tc.input, repo)
		}
	}
}

func TestParseLocal(t *testing.T) {
	ref, err := Parse("./.github/actions/setup")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if ref.Local == nil || ref.Local.Path != "./.github/actions/setup" {
		t.Errorf("unexpected local ref %+v", ref.Local)
	}
}

func TestParseDocker(t *testing.T) {
	cases := []struct {
		input    string
		registry string
		image    string
		tag      string
		digest   string
	}{
		{"docker://alpine:3.19", "", "alpine", "3.19", ""},
		{"docker://alpine", "", "alpine", "", ""},
		{"docker://ghcr.io/owner/tool:v1", "ghcr.io", "owner/tool", "v1", ""},
		{"docker://alpine@sha256:deadbeef", "", "alpine", "", "sha256:deadbeef"},
		{"docker://localhost/img:latest", "localhost", "img", "latest", ""},
	}

	for _, tc := range cases {
		ref, err := Parse(tc.input)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", tc.input, err)
		}
		d := ref.Docker
		if d == nil {
			t.Fatalf("Parse(%q) did not yield a docker reference", tc.input)
		}
		if d.Registry != tc.registry || d.Image != tc.image || d.Tag != tc.tag || d.Digest != tc.digest {
			t.Errorf("Parse(%q) = %+v", tc.input, d)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	for _, input := range []string{"", "justoneword", "/leading@v1", "owner/@v1", "docker://"} {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) should have failed", input)
		}
	}
}

func TestPinning(t *testing.T) {
	hash := "11bd71901bbe5b1630ceea73d27597364c9af683"

	unpinned, _ := Parse("actions/checkout")
	if unpinned.Repository.IsPinned() {
		t.Error("ref-less reference should be unpinned")
	}

	symbolic, _ := Parse("actions/checkout@v4")
	if !symbolic.Repository.IsPinned() || symbolic.Repository.IsHashPinned() {
		t.Error("@v4 should be pinned but not hash-pinned")
	}
	if sym, ok := symbolic.Repository.SymbolicRef(); !ok || sym != "v4" {
		t.Errorf("SymbolicRef = %q, %v", sym, ok)
	}

	pinned, _ := Parse("actions/checkout@" + hash)
	if !pinned.Repository.IsHashPinned() {
		t.Error("40-hex ref should be hash-pinned")
	}
	if _, ok := pinned.Repository.SymbolicRef(); ok {
		t.Error("hash pin should not be symbolic")
	}

	// A short hash is still symbolic.
	short, _ := Parse("actions/checkout@11bd719")
	if short.Repository.IsHashPinned() {
		t.Error("short hash should not count as hash-pinned")
	}
}

func TestDockerPinning(t *testing.T) {
	tagged, _ := Parse("docker://alpine:3.19")
	if !tagged.Docker.IsPinned() {
		t.Error("tagged image should be pinned")
	}
	bare, _ := Parse("docker://alpine")
	if bare.Docker.IsPinned() {
		t.Error("untagged image should be unpinned")
	}
}
