package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func TestMyself(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/api/2/myself" && r.Method == "GET" {
			if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
				t.Errorf("unexpected auth header: %q", got)
			}
			json.NewEncoder(w).Encode(User{Name: "lookout-bot", DisplayName: "Lookout", Active: true})
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client, err := New(server.URL, "test-token", WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatal(err)
	}
	user, err := client.Myself(context.Background())
	if err != nil {
		t.Fatalf("Myself: %v", err)
	}
	if user.Name != "lookout-bot" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/search" || r.Method != "POST" {
			http.NotFound(w, r)
			return
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["jql"] == "" {
			t.Error("expected jql in request body")
		}
		json.NewEncoder(w).Encode(SearchResult{
			Total: 1,
			Issues: []Issue{{
				Key: "INFRA-42",
				Fields: IssueFields{
					Project: &Project{Key: "INFRA"},
					Status:  &Status{Name: "Open", StatusCategory: &StatusCategory{Key: "new"}},
					Labels:  []string{"lookout-fp-abc"},
				},
			}},
		})
	}))
	defer server.Close()

	client, _ := New(server.URL, "t", WithHTTPClient(server.Client()))
	result, err := client.Search(context.Background(), `labels = "lookout-fp-abc"`, []string{"status"}, 20)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Total != 1 || result.Issues[0].Key != "INFRA-42" {
		t.Errorf("unexpected result: %+v", result)
	}
	if result.Issues[0].Fields.Status.Done() {
		t.Error("status category 'new' should not be Done")
	}
}

func TestCreateIssue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/issue" || r.Method != "POST" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Fields IssueFields `json:"fields"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Fields.Project == nil || req.Fields.Project.Key != "INFRA" {
			t.Errorf("unexpected project: %+v", req.Fields.Project)
		}
		if req.Fields.IssueType == nil || req.Fields.IssueType.Name != "Bug" {
			t.Errorf("unexpected issue type: %+v", req.Fields.IssueType)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(CreatedIssue{ID: "10001", Key: "INFRA-43"})
	}))
	defer server.Close()

	client, _ := New(server.URL, "t", WithHTTPClient(server.Client()))
	created, err := client.CreateIssue(context.Background(), IssueFields{
		Summary:   "job periodic-e2e: testB failed",
		Project:   &Project{Key: "INFRA"},
		IssueType: &IssueType{Name: "Bug"},
	})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if created.Key != "INFRA-43" {
		t.Errorf("unexpected key: %s", created.Key)
	}
}

func TestAddComment(t *testing.T) {
	var gotPath, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		gotBody = req["body"]
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client, _ := New(server.URL, "t", WithHTTPClient(server.Client()))
	if err := client.AddComment(context.Background(), "INFRA-43", "recurred in build 44"); err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if gotPath != "/rest/api/2/issue/INFRA-43/comment" {
		t.Errorf("unexpected path: %s", gotPath)
	}
	if gotBody != "recurred in build 44" {
		t.Errorf("unexpected body: %s", gotBody)
	}
}

func TestAPIError_FromErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(ErrorBody{
			ErrorMessages: []string{"Field 'priority' is required."},
		})
	}))
	defer server.Close()

	client, _ := New(server.URL, "t", WithHTTPClient(server.Client()))
	_, err := client.CreateIssue(context.Background(), IssueFields{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !HasStatusCode(err, 400) {
		t.Errorf("expected status 400: %v", err)
	}
	want := `create issue: HTTP 400: Field 'priority' is required.`
	if err.Error() != want {
		t.Errorf("error string: got %q, want %q", err.Error(), want)
	}
}

func TestErrorPredicates(t *testing.T) {
	err404 := newAPIError("search issues", 404, "not found")
	err401 := newAPIError("get myself", 401, "unauthorized")
	err429 := newAPIError("create issue", 429, "rate limited")
	err503 := newAPIError("add comment", 503, "unavailable")

	if !IsNotFound(err404) || IsNotFound(err401) {
		t.Error("IsNotFound misclassified")
	}
	if !IsUnauthorized(err401) {
		t.Error("expected IsUnauthorized for 401")
	}
	if !IsRateLimited(err429) {
		t.Error("expected IsRateLimited for 429")
	}
	if !IsTransient(err429) || !IsTransient(err503) {
		t.Error("429 and 5xx must be transient")
	}
	if IsTransient(err404) || IsTransient(err401) {
		t.Error("4xx (except 429) must not be transient")
	}
	netErr := fmt.Errorf("search issues: do request: %w",
		&url.Error{Op: "Post", URL: "http://jira.invalid", Err: io.EOF})
	if !IsTransient(netErr) {
		t.Error("transport errors must be transient")
	}
	if IsTransient(io.EOF) {
		t.Error("other non-API errors are not transient")
	}
}

func TestNew_EmptyBaseURL(t *testing.T) {
	if _, err := New("", "token"); err == nil {
		t.Error("expected error for empty baseURL")
	}
}

func TestReadAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".jira-api-key")
	if err := os.WriteFile(path, []byte("  secret-token \nrest ignored\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	key, err := ReadAPIKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if key != "secret-token" {
		t.Errorf("got %q", key)
	}
}
