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

// Package uses parses `uses:` reference strings into their repository,
// local-path, and container forms.
package uses

import (
	"fmt"
	"strings"
)

// Reference is a parsed `uses:` value; exactly one of the three
// variants is non-nil
type Reference struct {
	Repository *RepositoryRef
	Local      *LocalRef
	Docker     *DockerRef
}

// RepositoryRef names an action hosted in a repository:
// owner/repo[/subpath]@ref
type RepositoryRef struct {
	Owner   string
	Repo    string
	Subpath string
	Ref     string
}

// LocalRef is an action referenced by a path inside the same repository
type LocalRef struct {
	Path string
}

// DockerRef is a container action: docker://[registry/]image[:tag][@digest]
type DockerRef struct {
	Registry string
	Image    string
	Tag      string
	Digest   string
}

// Parse parses a `uses:` string. Unrecognized shapes are errors; the
// caller decides whether to surface or skip them.
func Parse(s string) (*Reference, error) {
	switch {
	case strings.HasPrefix(s, "./"):
		return &Reference{Local: &LocalRef{Path: s}}, nil
	case strings.HasPrefix(s, "docker://"):
		return parseDocker(strings.TrimPrefix(s, "docker://"))
	}

	rest, ref := s, ""
	if at := strings.LastIndex(s, "@"); at >= 0 {
		rest, ref = s[:at], s[at+1:]
	}

	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("malformed action reference %q", s)
	}

	return &Reference{Repository: &RepositoryRef{
		Owner:   parts[0],
		Repo:    parts[1],
		Subpath: strings.Join(parts[2:], "/"),
		Ref:     ref,
	}}, nil
}

func parseDocker(s string) (*Reference, error) {
	if s == "" {
		return nil, fmt.Errorf("empty docker reference")
	}

	docker := &DockerRef{}

	if at := strings.Index(s, "@"); at >= 0 {
		docker.Digest = s[at+1:]
		s = s[:at]
	}

	// A registry prefix contains a dot or port before the first slash.
	if slash := strings.Index(s, "/"); slash >= 0 {
		head := s[:slash]
		if strings.ContainsAny(head, ".:") || head == "localhost" {
			docker.Registry = head
			s = s[slash+1:]
		}
	}

	if colon := strings.LastIndex(s, ":"); colon >= 0 {
		docker.Tag = s[colon+1:]
		s = s[:colon]
	}

	docker.Image = s
	return &Reference{Docker: docker}, nil
}

// IsPinned reports whether the reference carries any ref at all
func (r *RepositoryRef) IsPinned() bool {
	return r.Ref != ""
}

// IsHashPinned reports whether the ref is a full 40-hex commit
func (r *RepositoryRef) IsHashPinned() bool {
	return isCommitHash(r.Ref)
}

// SymbolicRef returns the ref when it is a branch or tag name rather
// than a commit hash
func (r *RepositoryRef) SymbolicRef() (string, bool) {
	if r.Ref == "" || isCommitHash(r.Ref) {
		return "", false
	}
	return r.Ref, true
}

// Slug returns the owner/repo[/subpath] form without the ref
func (r *RepositoryRef) Slug() string {
	slug := r.Owner + "/" + r.Repo
	if r.Subpath != "" {
		slug += "/" + r.Subpath
	}
	return slug
}

func (r *RepositoryRef) String() string {
	if r.Ref == "" {
		return r.Slug()
	}
	return r.Slug() + "@" + r.Ref
}

// IsPinned reports whether the image carries a tag or digest
func (d *DockerRef) IsPinned() bool {
	return d.Tag != "" || d.Digest != ""
}

// Matches reports whether the reference names the given owner/repo
// action, ignoring the ref and subpath
func (r *RepositoryRef) Matches(slug string) bool {
	return strings.EqualFold(r.Owner+"/"+r.Repo, slug)
}

func isCommitHash(s string) bool {
	if len(s) != 40 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
			return false
		}
	}
	return true
}
