package githubapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const (
	tipSHA      = "1111111111111111111111111111111111111111"
	orphanSHA   = "2222222222222222222222222222222222222222"
	ancestorSHA = "3333333333333333333333333333333333333333"
)

// fakeAPI serves the subset of the platform API the client touches
func fakeAPI(t *testing.T) (*Client, *int) {
	t.Helper()
	requests := new(int)

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/tool/branches", func(w http.ResponseWriter, r *http.Request) {
		*requests++
		fmt.Fprintf(w, `[{"name":"main","commit":{"sha":"%s"}},{"name":"dev","commit":{"sha":"%s"}}]`, tipSHA, ancestorSHA)
	})
	mux.HandleFunc("/repos/acme/tool/tags", func(w http.ResponseWriter, r *http.Request) {
		*requests++
		fmt.Fprintf(w, `[{"name":"v1","commit":{"sha":"%s"}},{"name":"main","commit":{"sha":"%s"}}]`, tipSHA, tipSHA)
	})
	mux.HandleFunc("/repos/acme/tool/commits/", func(w http.ResponseWriter, r *http.Request) {
		*requests++
		fmt.Fprint(w, tipSHA)
	})
	mux.HandleFunc("/repos/acme/tool/compare/", func(w http.ResponseWriter, r *http.Request) {
		*requests++
		if strings.Contains(r.URL.Path, orphanSHA) {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"status":"behind"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client := NewClient(Options{
		BaseURL:           server.URL + "/",
		RequestsPerSecond: 1000,
	})
	return client, requests
}

func TestResolveRef(t *testing.T) {
	client, _ := fakeAPI(t)

	sha, err := client.ResolveRef(context.Background(), "acme", "tool", "v1")
	if err != nil {
		t.Fatalf("ResolveRef failed: %v", err)
	}
	if sha != tipSHA {
		t.Errorf("ResolveRef = %q, want %q", sha, tipSHA)
	}
}

func TestCommitPresent(t *testing.T) {
	client, _ := fakeAPI(t)
	ctx := context.Background()

	// Tip of a branch: fast path.
	present, err := client.CommitPresent(ctx, "acme", "tool", tipSHA)
	if err != nil {
		t.Fatalf("CommitPresent failed: %v", err)
	}
	if !present {
		t.Error("branch tip should be present")
	}

	// Contained in history via compare.
	present, err = client.CommitPresent(ctx, "acme", "tool", "4444444444444444444444444444444444444444")
	if err != nil {
		t.Fatalf("CommitPresent failed: %v", err)
	}
	if !present {
		t.Error("contained commit should be present")
	}
}

func TestCommitAbsentFromNetwork(t *testing.T) {
	client, _ := fakeAPI(t)

	present, err := client.CommitPresent(context.Background(), "acme", "tool", orphanSHA)
	if err != nil {
		t.Fatalf("CommitPresent failed: %v", err)
	}
	if present {
		t.Error("divergent commit should be reported absent")
	}
}

func TestRefConfusable(t *testing.T) {
	client, _ := fakeAPI(t)
	ctx := context.Background()

	confusable, err := client.RefConfusable(ctx, "acme", "tool", "main")
	if err != nil {
		t.Fatalf("RefConfusable failed: %v", err)
	}
	if !confusable {
		t.Error("main exists as both branch and tag; should be confusable")
	}

	confusable, err = client.RefConfusable(ctx, "acme", "tool", "v1")
	if err != nil {
		t.Fatalf("RefConfusable failed: %v", err)
	}
	if confusable {
		t.Error("v1 is tag-only; should not be confusable")
	}
}

func TestListingsAreCached(t *testing.T) {
	client, requests := fakeAPI(t)
	ctx := context.Background()

	if _, err := client.ListBranches(ctx, "acme", "tool"); err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	before := *requests
	if _, err := client.ListBranches(ctx, "acme", "tool"); err != nil {
		t.Fatalf("ListBranches failed: %v", err)
	}
	if *requests != before {
		t.Errorf("second listing hit the network (%d -> %d requests)", before, *requests)
	}
}

func TestNilClientIsOffline(t *testing.T) {
	var client *Client
	if _, err := client.ResolveRef(context.Background(), "a", "b", "c"); err == nil {
		t.Error("nil client should report an error")
	}
}

func TestBudgetExhaustion(t *testing.T) {
	client, _ := fakeAPI(t)
	client.deadline = time.Now().Add(-time.Second)

	_, err := client.ResolveRef(context.Background(), "acme", "tool", "other")
	if err == nil {
		t.Fatal("expected budget exhaustion error")
	}
	if !strings.Contains(err.Error(), "budget") {
		t.Errorf("unexpected error: %v", err)
	}
}
