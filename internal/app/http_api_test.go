package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"threadsift/internal/auth"
	"threadsift/internal/gitrepo"
	"threadsift/internal/search"
	"threadsift/internal/store"
)

func newTestServer(t *testing.T, fs *fakeStore, fg *fakeGit, fsrch *fakeSearch) *HTTPServer {
	t.Helper()
	return NewHTTPServer(newTestService(t, fs, fg, fsrch, &fakeNotifier{}), "*")
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("parse response %q: %v", rr.Body.String(), err)
	}
	return response
}

func TestSubmitDocumentEndpoint(t *testing.T) {
	server := newTestServer(t, &fakeStore{}, &fakeGit{}, &fakeSearch{})

	body := fmt.Sprintf(`{"title": "Launch day", "originUrl": "https://example.com/p/1", "document": %s}`, sampleDocument)
	rr := doRequest(t, server, http.MethodPost, "/api/documents", testAdminToken, body)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)

	source, ok := response["source"].(map[string]any)
	if !ok {
		t.Fatalf("source = %v", response["source"])
	}
	if id, _ := source["id"].(string); !strings.HasPrefix(id, "src_") {
		t.Errorf("source id = %v", source["id"])
	}

	extraction, ok := response["extraction"].(map[string]any)
	if !ok {
		t.Fatalf("extraction = %v", response["extraction"])
	}
	if extraction["found"] != true || extraction["rootCount"] != float64(2) {
		t.Errorf("extraction = %v", extraction)
	}

	threads, ok := response["threads"].([]any)
	if !ok || len(threads) != 2 {
		t.Errorf("threads = %v", response["threads"])
	}

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestSubmitDocumentEndpointRequiresKey(t *testing.T) {
	server := newTestServer(t, &fakeStore{}, &fakeGit{}, &fakeSearch{})

	rr := doRequest(t, server, http.MethodPost, "/api/documents", "", `{"document": {}}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status without key = %d, want 401", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/documents", "bogus-key", `{"document": {}}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status with bad key = %d, want 401", rr.Code)
	}
}

func TestAdminScopeEnforcement(t *testing.T) {
	plaintext, prefix, hash, err := auth.NewKey()
	if err != nil {
		t.Fatalf("NewKey() error = %v", err)
	}
	fs := &fakeStore{
		listAPIKeysByPrefixFn: func(context.Context, string) ([]store.APIKey, error) {
			return []store.APIKey{
				{ID: "key_1", Name: "ci ingest", KeyPrefix: prefix, KeyHash: hash, Scope: "ingest"},
			}, nil
		},
	}
	server := newTestServer(t, fs, &fakeGit{}, &fakeSearch{})

	// An ingest key may submit documents but not delete sources.
	rr := doRequest(t, server, http.MethodDelete, "/api/sources/src_1", plaintext, "")
	if rr.Code != http.StatusForbidden {
		t.Errorf("delete with ingest key = %d, want 403", rr.Code)
	}

	rr = doRequest(t, server, http.MethodDelete, "/api/sources/src_1", testAdminToken, "")
	if rr.Code != http.StatusOK {
		t.Errorf("delete with admin token = %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestListSourcesEndpoint(t *testing.T) {
	now := time.Now().UTC()
	extractedAt := now
	fs := &fakeStore{
		listSourcesFn: func(context.Context) ([]store.SourceSummary, error) {
			return []store.SourceSummary{
				{
					Source:       store.Source{ID: "src_1", Title: "One", CreatedAt: now, UpdatedAt: now},
					Found:        true,
					RootCount:    2,
					CommentCount: 3,
					ExtractedAt:  &extractedAt,
				},
				{
					Source: store.Source{ID: "src_2", Title: "Two", CreatedAt: now, UpdatedAt: now},
				},
			}, nil
		},
	}
	server := newTestServer(t, fs, &fakeGit{}, &fakeSearch{})

	rr := doRequest(t, server, http.MethodGet, "/api/sources", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	sources, ok := response["sources"].([]any)
	if !ok || len(sources) != 2 {
		t.Fatalf("sources = %v", response["sources"])
	}
	first := sources[0].(map[string]any)
	last, ok := first["lastExtraction"].(map[string]any)
	if !ok {
		t.Fatalf("lastExtraction = %v", first["lastExtraction"])
	}
	if last["rootCount"] != float64(2) {
		t.Errorf("lastExtraction = %v", last)
	}
	second := sources[1].(map[string]any)
	if second["lastExtraction"] != nil {
		t.Errorf("source without extraction should have null lastExtraction, got %v", second["lastExtraction"])
	}
}

func TestGetSourceEndpointNotFound(t *testing.T) {
	fs := &fakeStore{
		getSourceFn: func(context.Context, string) (store.Source, error) {
			return store.Source{}, sql.ErrNoRows
		},
	}
	server := newTestServer(t, fs, &fakeGit{}, &fakeSearch{})

	rr := doRequest(t, server, http.MethodGet, "/api/sources/src_missing", "", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "NOT_FOUND" {
		t.Errorf("code = %v", response["code"])
	}
}

func TestSourceThreadsEndpointPassesRevision(t *testing.T) {
	var askedHash string
	fg := &fakeGit{
		getThreadsAtFn: func(_ string, hash string) ([]byte, error) {
			askedHash = hash
			return []byte(`[]`), nil
		},
	}
	server := newTestServer(t, &fakeStore{}, fg, &fakeSearch{})

	rr := doRequest(t, server, http.MethodGet, "/api/sources/src_1/threads?at=feed1234", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if askedHash != "feed1234" {
		t.Errorf("asked hash = %q", askedHash)
	}

	// An unknown revision is a 404, not a server error.
	fg.getThreadsAtFn = func(string, string) ([]byte, error) {
		return nil, fmt.Errorf("%q: %w", "zzz", gitrepo.ErrUnknownRevision)
	}
	rr = doRequest(t, server, http.MethodGet, "/api/sources/src_1/threads?at=zzz", "", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status for unknown revision = %d, want 404", rr.Code)
	}
}

func TestExportEndpointSetsAttachmentHeaders(t *testing.T) {
	tree := `{"id":"c1","author":"Ann","text":"First comment","replies":[]}`
	fs := &fakeStore{
		getThreadFn: func(_ context.Context, threadID string) (store.Thread, error) {
			return store.Thread{ID: threadID, SourceID: "src_1", Author: "Ann", CommentCount: 1, Tree: []byte(tree)}, nil
		},
	}
	server := newTestServer(t, fs, &fakeGit{}, &fakeSearch{})

	rr := doRequest(t, server, http.MethodGet, "/api/threads/th_1/export?format=html", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if disposition := rr.Header().Get("Content-Disposition"); !strings.Contains(disposition, "attachment") {
		t.Errorf("Content-Disposition = %q", disposition)
	}
	if contentType := rr.Header().Get("Content-Type"); !strings.HasPrefix(contentType, "text/html") {
		t.Errorf("Content-Type = %q", contentType)
	}
	if !strings.Contains(rr.Body.String(), "<article") {
		t.Error("body should contain the rendered thread")
	}

	rr = doRequest(t, server, http.MethodGet, "/api/threads/th_1/export?format=docx", "", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status for unknown format = %d, want 422", rr.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	fsrch := &fakeSearch{
		searchFn: func(query search.Query) search.Response {
			return search.Response{
				Results: []search.Result{
					{Type: search.ResultComment, ID: "cmt_1", Title: "Ann", Snippet: "hello <em>world</em>", SourceID: "src_1", ThreadID: "th_1"},
				},
				Total: 1,
				Query: query.Text,
			}
		},
	}
	server := newTestServer(t, &fakeStore{}, &fakeGit{}, fsrch)

	rr := doRequest(t, server, http.MethodGet, "/api/search", "", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status without q = %d, want 422", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/search?q=world", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	response := decodeResponse(t, rr)
	results, ok := response["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v", response["results"])
	}
	hit := results[0].(map[string]any)
	if hit["type"] != "comment" || hit["threadId"] != "th_1" {
		t.Errorf("hit = %v", hit)
	}
	if response["total"] != float64(1) {
		t.Errorf("total = %v", response["total"])
	}

	rr = doRequest(t, server, http.MethodGet, "/api/search?q=world&type=bogus", "", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status for bad type = %d, want 422", rr.Code)
	}
}

func TestKeysEndpoints(t *testing.T) {
	var saved *store.APIKey
	fs := &fakeStore{
		insertAPIKeyFn: func(_ context.Context, key store.APIKey) error {
			saved = &key
			return nil
		},
		listAPIKeysFn: func(context.Context) ([]store.APIKey, error) {
			if saved == nil {
				return nil, nil
			}
			return []store.APIKey{*saved}, nil
		},
	}
	server := newTestServer(t, fs, &fakeGit{}, &fakeSearch{})

	rr := doRequest(t, server, http.MethodPost, "/api/keys", "", `{"name": "ci"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/keys", testAdminToken, `{"name": "ci ingest", "scope": "ingest"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	response := decodeResponse(t, rr)
	if key, _ := response["key"].(string); !strings.HasPrefix(key, "tsk_") {
		t.Errorf("key = %v", response["key"])
	}

	rr = doRequest(t, server, http.MethodGet, "/api/keys", testAdminToken, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	response = decodeResponse(t, rr)
	keys, ok := response["keys"].([]any)
	if !ok || len(keys) != 1 {
		t.Fatalf("keys = %v", response["keys"])
	}
	listed := keys[0].(map[string]any)
	if _, exposed := listed["key"]; exposed {
		t.Error("listing must never include the plaintext key")
	}

	rr = doRequest(t, server, http.MethodDelete, "/api/keys/key_1", testAdminToken, "")
	if rr.Code != http.StatusOK {
		t.Errorf("delete status = %d", rr.Code)
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	server := newTestServer(t, &fakeStore{}, &fakeGit{}, &fakeSearch{})

	rr := doRequest(t, server, http.MethodGet, "/api/unknown", "", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
	response := decodeResponse(t, rr)
	if response["code"] != "NOT_FOUND" {
		t.Errorf("code = %v", response["code"])
	}
}
