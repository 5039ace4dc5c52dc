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

// Package githubapi wraps the platform API operations the online audits
// depend on. Every operation fails soft: callers receive an error and
// downgrade the affected audit to "unknown" instead of aborting the run.
package githubapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v53/github"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	cacheSize      = 512
	cacheTTL       = 10 * time.Minute
)

// ErrBudgetExhausted is returned once the run's overall online budget
// has been spent; remaining online audits are skipped with a diagnostic.
var ErrBudgetExhausted = errors.New("online time budget exhausted")

// Client performs the online lookups used by online audits. A nil
// *Client means offline mode; all methods are safe to call on nil and
// report an error.
type Client struct {
	gh       *github.Client
	limiter  *rate.Limiter
	cache    *lru.LRU[string, any]
	deadline time.Time
}

// Options configures a Client
type Options struct {
	// Token is a platform API token; anonymous access is heavily
	// rate-limited but functional
	Token string
	// Budget bounds the total wall-clock this run may spend online;
	// zero means no bound
	Budget time.Duration
	// RequestsPerSecond tunes the shared token bucket; zero uses a
	// conservative default
	RequestsPerSecond float64
	// BaseURL overrides the API endpoint, mainly for tests. Must end
	// with a trailing slash.
	BaseURL string
}

// NewClient builds a client with a shared connection pool, a token
// bucket rate limiter, and a bounded response cache
func NewClient(opts Options) *Client {
	var httpClient *http.Client
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}

	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}

	c := &Client{
		gh:      github.NewClient(httpClient),
		limiter: rate.NewLimiter(rate.Limit(rps), int(rps)*2),
		cache:   lru.NewLRU[string, any](cacheSize, nil, cacheTTL),
	}
	if opts.BaseURL != "" {
		if base, err := url.Parse(opts.BaseURL); err == nil {
			c.gh.BaseURL = base
		}
	}
	if opts.Budget > 0 {
		c.deadline = time.Now().Add(opts.Budget)
	}
	return c
}

// do runs one API call with the shared rate limit, a per-request
// deadline, and bounded retries with exponential backoff
func (c *Client) do(ctx context.Context, call func(ctx context.Context) error) error {
	if c == nil {
		return errors.New("offline: no API client")
	}
	if !c.deadline.IsZero() && time.Now().After(c.deadline) {
		return ErrBudgetExhausted
	}

	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = c.limiter.Wait(ctx); err != nil {
			return err
		}

		reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
		err = call(reqCtx)
		cancel()

		if err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

func retryable(err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		return respErr.Response.StatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// ResolveRef resolves a symbolic ref to a commit SHA
func (c *Client) ResolveRef(ctx context.Context, owner, repo, ref string) (string, error) {
	key := fmt.Sprintf("sha:%s/%s@%s", owner, repo, ref)
	if cached, ok := c.cacheGet(key); ok {
		return cached.(string), nil
	}

	var sha string
	err := c.do(ctx, func(ctx context.Context) error {
		resolved, _, err := c.gh.Repositories.GetCommitSHA1(ctx, owner, repo, ref, "")
		if err != nil {
			return err
		}
		sha = resolved
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("resolving %s/%s@%s: %w", owner, repo, ref, err)
	}

	c.cachePut(key, sha)
	return sha, nil
}

// NamedRef is a branch or tag with its tip commit
type NamedRef struct {
	Name string
	SHA  string
}

// ListBranches lists all branches with their tip commits
func (c *Client) ListBranches(ctx context.Context, owner, repo string) ([]NamedRef, error) {
	key := fmt.Sprintf("branches:%s/%s", owner, repo)
	if cached, ok := c.cacheGet(key); ok {
		return cached.([]NamedRef), nil
	}

	var refs []NamedRef
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		var page []*github.Branch
		var resp *github.Response
		err := c.do(ctx, func(ctx context.Context) error {
			var err error
			page, resp, err = c.gh.Repositories.ListBranches(ctx, owner, repo, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing branches for %s/%s: %w", owner, repo, err)
		}
		for _, b := range page {
			refs = append(refs, NamedRef{Name: b.GetName(), SHA: b.GetCommit().GetSHA()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.cachePut(key, refs)
	return refs, nil
}

// ListTags lists all tags with their tip commits
func (c *Client) ListTags(ctx context.Context, owner, repo string) ([]NamedRef, error) {
	key := fmt.Sprintf("tags:%s/%s", owner, repo)
	if cached, ok := c.cacheGet(key); ok {
		return cached.([]NamedRef), nil
	}

	var refs []NamedRef
	opts := &github.ListOptions{PerPage: 100}
	for {
		var page []*github.RepositoryTag
		var resp *github.Response
		err := c.do(ctx, func(ctx context.Context) error {
			var err error
			page, resp, err = c.gh.Repositories.ListTags(ctx, owner, repo, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("listing tags for %s/%s: %w", owner, repo, err)
		}
		for _, t := range page {
			refs = append(refs, NamedRef{Name: t.GetName(), SHA: t.GetCommit().GetSHA()})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.cachePut(key, refs)
	return refs, nil
}

// refContainsCommit reports whether a named ref's history contains the
// commit. The compare API reports "behind" or "identical" when the base
// contains the head; a 404 means the histories are fully divergent.
func (c *Client) refContainsCommit(ctx context.Context, owner, repo, base, sha string) (bool, error) {
	var status string
	err := c.do(ctx, func(ctx context.Context) error {
		comp, _, err := c.gh.Repositories.CompareCommits(ctx, owner, repo, base, sha, nil)
		if err != nil {
			return err
		}
		status = comp.GetStatus()
		return nil
	})
	if err != nil {
		var respErr *github.ErrorResponse
		if errors.As(err, &respErr) && respErr.Response != nil && respErr.Response.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return status == "behind" || status == "identical", nil
}

// CommitPresent reports whether a commit is reachable from any branch
// or tag of the repository itself, as opposed to existing only in the
// repository's fork network.
func (c *Client) CommitPresent(ctx context.Context, owner, repo, sha string) (bool, error) {
	key := fmt.Sprintf("present:%s/%s@%s", owner, repo, sha)
	if cached, ok := c.cacheGet(key); ok {
		return cached.(bool), nil
	}

	branches, err := c.ListBranches(ctx, owner, repo)
	if err != nil {
		return false, err
	}
	tags, err := c.ListTags(ctx, owner, repo)
	if err != nil {
		return false, err
	}

	// Fast path: most pinned commits sit at the tip of a branch or tag.
	for _, ref := range branches {
		if ref.SHA == sha {
			c.cachePut(key, true)
			return true, nil
		}
	}
	for _, ref := range tags {
		if ref.SHA == sha {
			c.cachePut(key, true)
			return true, nil
		}
	}

	for _, ref := range branches {
		ok, err := c.refContainsCommit(ctx, owner, repo, "refs/heads/"+ref.Name, sha)
		if err != nil {
			return false, err
		}
		if ok {
			c.cachePut(key, true)
			return true, nil
		}
	}
	for _, ref := range tags {
		ok, err := c.refContainsCommit(ctx, owner, repo, "refs/tags/"+ref.Name, sha)
		if err != nil {
			return false, err
		}
		if ok {
			c.cachePut(key, true)
			return true, nil
		}
	}

	c.cachePut(key, false)
	return false, nil
}

// RefConfusable reports whether a symbolic ref exists as both a branch
// and a tag on the repository
func (c *Client) RefConfusable(ctx context.Context, owner, repo, ref string) (bool, error) {
	branches, err := c.ListBranches(ctx, owner, repo)
	if err != nil {
		return false, err
	}
	tags, err := c.ListTags(ctx, owner, repo)
	if err != nil {
		return false, err
	}

	branchMatch, tagMatch := false, false
	for _, b := range branches {
		if b.Name == ref {
			branchMatch = true
			break
		}
	}
	for _, t := range tags {
		if t.Name == ref {
			tagMatch = true
			break
		}
	}
	return branchMatch && tagMatch, nil
}

func (c *Client) cacheGet(key string) (any, bool) {
	if c == nil || c.cache == nil {
		return nil, false
	}
	return c.cache.Get(key)
}

func (c *Client) cachePut(key string, value any) {
	if c == nil || c.cache == nil {
		return
	}
	c.cache.Add(key, value)
}
