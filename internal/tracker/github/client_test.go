package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/elephantgerald/bartleby-sub001/internal/types"
)

func testClient(serverURL string) *Client {
	return NewClient("test-token", "acme", "repo").WithBaseURL(serverURL)
}

func TestFetchIssuesPagination(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		n := requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/repo/issues?page=2>; rel="next"`, "http://"+r.Host))
			fmt.Fprint(w, `[{"number": 1, "title": "one", "state": "open"}]`)
			return
		}
		fmt.Fprint(w, `[{"number": 2, "title": "two", "state": "open"}]`)
	}))
	defer server.Close()

	issues, err := testClient(server.URL).FetchIssues(context.Background(), "all")
	if err != nil {
		t.Fatalf("FetchIssues: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2", len(issues))
	}
	if issues[0].Number != 1 || issues[1].Number != 2 {
		t.Errorf("issue numbers = %d, %d", issues[0].Number, issues[1].Number)
	}
}

func TestFetchIssuesFiltersPullRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number": 1, "title": "an issue", "state": "open"},
			{"number": 2, "title": "a pr", "state": "open", "pull_request": {"url": "https://example.com"}}
		]`)
	}))
	defer server.Close()

	issues, err := testClient(server.URL).FetchIssues(context.Background(), "all")
	if err != nil {
		t.Fatalf("FetchIssues: %v", err)
	}
	if len(issues) != 1 || issues[0].Number != 1 {
		t.Fatalf("pull requests must be filtered: %+v", issues)
	}
}

func TestRateLimitRetryThenSuccess(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchIssues(context.Background(), "all")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if requests.Load() != 2 {
		t.Errorf("got %d requests, want 2", requests.Load())
	}
}

func TestNonRetryableErrorSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"message": "Bad credentials"}`)
	}))
	defer server.Close()

	_, err := testClient(server.URL).FetchIssues(context.Background(), "all")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestUpdateIssueSendsPatch(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"number": 42, "state": "closed"}`)
	}))
	defer server.Close()

	issue, err := testClient(server.URL).UpdateIssue(context.Background(), 42, map[string]interface{}{"state": "closed"})
	if err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %s, want PATCH", gotMethod)
	}
	if gotPath != "/repos/acme/repo/issues/42" {
		t.Errorf("path = %s", gotPath)
	}
	if gotBody["state"] != "closed" {
		t.Errorf("body = %v", gotBody)
	}
	if issue.State != "closed" {
		t.Errorf("parsed state = %s", issue.State)
	}
}

func TestSourceSyncConvertsIssues(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"number": 7, "title": "Widget", "state": "open", "labels": [{"name": "bartleby:ready"}], "html_url": "https://example.com/7"}
		]`)
	}))
	defer server.Close()

	source := NewSource(testClient(server.URL))
	items, err := source.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items", len(items))
	}
	item := items[0]
	if item.SourceName != "github" || item.ExternalID != "7" {
		t.Errorf("binding = %s:%s", item.SourceName, item.ExternalID)
	}
	if item.Status != types.StatusReady {
		t.Errorf("status = %s", item.Status)
	}
}

func TestSourceUpdateStatusRequiresBinding(t *testing.T) {
	source := NewSource(testClient("http://unused"))
	err := source.UpdateStatus(context.Background(), &types.WorkItem{ID: "x", Title: "t"})
	if err == nil {
		t.Fatal("expected error for unbound item")
	}
}
