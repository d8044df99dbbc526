package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestAsk_SendsMessage(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/chat": `{"response":"42","sessionId":"s-1"}`,
	})
	client := ts.client()

	resp, err := client.post(ctx, "/api/chat", map[string]any{"message": "what is the answer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Response  string `json:"response"`
		SessionID string `json:"sessionId"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Response != "42" || result.SessionID != "s-1" {
		t.Errorf("unexpected result: %+v", result)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	if !strings.Contains(ts.requests[0].Body, `"message":"what is the answer"`) {
		t.Errorf("unexpected body: %s", ts.requests[0].Body)
	}
}

func TestUpload_MultipartForm(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /api/rag/upload": `{"ok":true,"document":{"id":"d-1","originalName":"faq.docx","chunks":7}}`,
	})
	client := ts.client()

	path := filepath.Join(t.TempDir(), "faq.docx")
	if err := os.WriteFile(path, []byte("fake docx payload"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	resp, err := client.postFile(ctx, "/api/rag/upload", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		OK       bool `json:"ok"`
		Document struct {
			ID     string `json:"id"`
			Chunks int    `json:"chunks"`
		} `json:"document"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if !result.OK || result.Document.Chunks != 7 {
		t.Errorf("unexpected result: %+v", result)
	}

	req := ts.requests[0]
	if !strings.HasPrefix(req.ContentType, "multipart/form-data") {
		t.Errorf("expected multipart request, got %s", req.ContentType)
	}
	if !strings.Contains(req.Body, `filename="faq.docx"`) {
		t.Errorf("upload body missing filename: %s", req.Body)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()

	if _, err := client.postFile(ctx, "/api/rag/upload", "/nonexistent/file.docx"); err == nil {
		t.Fatal("expected error for missing local file")
	}
}

func TestDocsDelete_NotFound(t *testing.T) {
	ts := newTestServer(t, nil)
	client := ts.client()

	resp, err := client.delete(ctx, "/api/rag/documents/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]any
	if err := decodeJSON(resp, &result); err == nil {
		t.Fatal("expected decode error on 404 response")
	} else if !strings.Contains(err.Error(), "404") {
		t.Errorf("error should surface the status code: %v", err)
	}
}

func TestReindex_ErrorMessageSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"no eligible source file found","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)
	client := &apiClient{baseURL: srv.URL, httpClient: srv.Client()}

	resp, err := client.post(ctx, "/api/rag/reindex-latest", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]any
	err = decodeJSON(resp, &result)
	if err == nil || !strings.Contains(err.Error(), "no eligible source file") {
		t.Errorf("expected server message in error, got %v", err)
	}
}
