package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verasoft/docchat/internal/chat"
	"github.com/verasoft/docchat/internal/chunker"
	"github.com/verasoft/docchat/internal/groq"
	"github.com/verasoft/docchat/internal/history"
	"github.com/verasoft/docchat/internal/index"
	"github.com/verasoft/docchat/internal/ingest"
	"github.com/verasoft/docchat/internal/retrieval"
	"github.com/verasoft/docchat/internal/storage"
)

const testDeclineReply = "I can only answer questions about the uploaded documents."

type fakeCompleter struct {
	reply string
	calls int
}

func (f *fakeCompleter) Chat(ctx context.Context, model string, messages []groq.Message) (string, error) {
	f.calls++
	return f.reply, nil
}

type testApp struct {
	handler   http.Handler
	store     *storage.Store
	handle    *retrieval.Handle
	manager   *ingest.Manager
	completer *fakeCompleter
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	dir := t.TempDir()
	handle := retrieval.NewHandle()
	manager := ingest.NewManager(store, handle, ingest.Config{
		DocsDir:      filepath.Join(dir, "docs"),
		SnapshotPath: filepath.Join(dir, "index.json"),
		WindowWords:  5,
		OverlapWords: 1,
		Params:       index.DefaultParams(),
	})

	hist := history.NewManager(store, 20)
	retriever := retrieval.NewRetriever(handle, 4, 0.1)
	completer := &fakeCompleter{reply: "the canned answer"}
	svc := chat.NewService(hist, retriever, completer, "test-model", testDeclineReply, time.Second)

	handler := NewAppHandler(AppDeps{
		Chat:      svc,
		History:   hist,
		Documents: manager,
	})
	return &testApp{handler: handler, store: store, handle: handle, manager: manager, completer: completer}
}

// publishCorpus builds and publishes an index generation directly,
// bypassing file ingestion.
func publishCorpus(t *testing.T, handle *retrieval.Handle, texts ...string) {
	t.Helper()
	ix := index.New(index.DefaultParams())
	chunks := make([]chunker.Chunk, len(texts))
	for i, text := range texts {
		c := chunker.Chunk{ID: "c_" + string(rune('0'+i)), Text: text, Ordinal: i}
		chunks[i] = c
		if err := ix.AddDoc(c.ID, c.Text); err != nil {
			t.Fatalf("AddDoc: %v", err)
		}
	}
	if err := ix.Consolidate(); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	handle.Publish(retrieval.NewGeneration(ix, chunks))
}

func doJSON(t *testing.T, h http.Handler, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.handler, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.handler, http.MethodPost, "/api/chat", `{"message":"   "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestChat_WithContext(t *testing.T) {
	app := setupApp(t)
	publishCorpus(t, app.handle,
		"cats eat fish", "dogs eat bones", "cats and dogs are pets")

	rr := doJSON(t, app.handler, http.MethodPost, "/api/chat", `{"message":"what do cats eat"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Response != "the canned answer" {
		t.Errorf("response = %q", resp.Response)
	}
	if resp.SessionID == "" {
		t.Error("expected a session id")
	}
	if app.completer.calls != 1 {
		t.Errorf("completer calls = %d, want 1", app.completer.calls)
	}

	// Follow-up in the same session reuses the id.
	rr = doJSON(t, app.handler, http.MethodPost, "/api/chat",
		`{"message":"and dogs?","sessionId":"`+resp.SessionID+`"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("follow-up status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var second ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &second); err != nil {
		t.Fatalf("parsing follow-up: %v", err)
	}
	if second.SessionID != resp.SessionID {
		t.Errorf("session id changed: %q vs %q", second.SessionID, resp.SessionID)
	}
}

func TestChat_DeclinesOffTopic(t *testing.T) {
	app := setupApp(t)
	publishCorpus(t, app.handle,
		"cats eat fish", "dogs eat bones", "cats and dogs are pets")

	rr := doJSON(t, app.handler, http.MethodPost, "/api/chat", `{"message":"giraffe habitats"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	if resp.Response != testDeclineReply {
		t.Errorf("response = %q, want decline", resp.Response)
	}
	if app.completer.calls != 0 {
		t.Errorf("completer must not be called on decline, got %d calls", app.completer.calls)
	}
}

func TestSessions_Lifecycle(t *testing.T) {
	app := setupApp(t)
	publishCorpus(t, app.handle,
		"cats eat fish", "dogs eat bones", "cats and dogs are pets")

	rr := doJSON(t, app.handler, http.MethodPost, "/api/chat", `{"message":"cats?"}`)
	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing chat response: %v", err)
	}

	rr = doJSON(t, app.handler, http.MethodGet, "/api/chat/sessions", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var listResp struct {
		OK       bool              `json:"ok"`
		Sessions []storage.Session `json:"sessions"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &listResp); err != nil {
		t.Fatalf("parsing sessions: %v", err)
	}
	if !listResp.OK || len(listResp.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %+v", listResp)
	}

	rr = doJSON(t, app.handler, http.MethodGet, "/api/chat/sessions/"+resp.SessionID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var getResp struct {
		OK      bool            `json:"ok"`
		Session storage.Session `json:"session"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &getResp); err != nil {
		t.Fatalf("parsing session: %v", err)
	}
	if len(getResp.Session.Messages) != 2 {
		t.Errorf("expected user+assistant messages, got %d", len(getResp.Session.Messages))
	}

	rr = doJSON(t, app.handler, http.MethodDelete, "/api/chat/sessions/"+resp.SessionID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = doJSON(t, app.handler, http.MethodGet, "/api/chat/sessions/"+resp.SessionID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestSessions_GetNotFound(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.handler, http.MethodGet, "/api/chat/sessions/nope", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

// docxBytes builds a minimal in-memory DOCX file.
func docxBytes(t *testing.T, text string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("creating zip entry: %v", err)
	}
	doc := `<?xml version="1.0"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body><w:p><w:r><w:t>` + text + `</w:t></w:r></w:p></w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("writing zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	return buf.Bytes()
}

func uploadRequest(t *testing.T, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("writing form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/rag/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload_UnsupportedType(t *testing.T) {
	app := setupApp(t)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, uploadRequest(t, "notes.txt", []byte("plain text")))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestUpload_AndDocumentLifecycle(t *testing.T) {
	app := setupApp(t)

	content := docxBytes(t, "cats eat fish every day while dogs eat bones and cats and dogs are pets living together")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, uploadRequest(t, "pets.docx", content))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var up UploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &up); err != nil {
		t.Fatalf("parsing upload response: %v", err)
	}
	if !up.OK || up.Document.ID == "" || up.Document.ChunkCount < 2 {
		t.Fatalf("unexpected upload response: %+v", up)
	}
	if up.Document.OriginalName != "pets.docx" {
		t.Errorf("originalName = %q", up.Document.OriginalName)
	}

	// The uploaded content is immediately searchable via chat.
	chatRR := doJSON(t, app.handler, http.MethodPost, "/api/chat", `{"message":"what do cats eat"}`)
	var chatResp ChatResponse
	if err := json.Unmarshal(chatRR.Body.Bytes(), &chatResp); err != nil {
		t.Fatalf("parsing chat response: %v", err)
	}
	if chatResp.Response == testDeclineReply {
		t.Error("uploaded content should be retrievable")
	}

	rr = doJSON(t, app.handler, http.MethodGet, "/api/rag/documents", "")
	var docsResp struct {
		OK        bool               `json:"ok"`
		Documents []storage.Document `json:"documents"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &docsResp); err != nil {
		t.Fatalf("parsing documents: %v", err)
	}
	if !docsResp.OK || len(docsResp.Documents) != 1 {
		t.Fatalf("expected 1 document, got %+v", docsResp)
	}

	rr = doJSON(t, app.handler, http.MethodGet, "/api/rag/documents/"+up.Document.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("get document status = %d", rr.Code)
	}

	rr = doJSON(t, app.handler, http.MethodDelete, "/api/rag/documents/"+up.Document.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete document status = %d; body = %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, app.handler, http.MethodGet, "/api/rag/documents/"+up.Document.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestUpload_TooShortDocument(t *testing.T) {
	app := setupApp(t)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, uploadRequest(t, "tiny.docx", docxBytes(t, "just three words")))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusUnprocessableEntity, rr.Body.String())
	}
}

func TestReindexLatest_NoFiles(t *testing.T) {
	app := setupApp(t)
	rr := doJSON(t, app.handler, http.MethodPost, "/api/rag/reindex-latest", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadRequest, rr.Body.String())
	}
}

func TestReindexLatest_AfterUpload(t *testing.T) {
	app := setupApp(t)
	content := docxBytes(t, "cats eat fish every day while dogs eat bones and cats and dogs are pets living together")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, uploadRequest(t, "pets.docx", content))
	if rr.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rr.Code)
	}

	rr2 := doJSON(t, app.handler, http.MethodPost, "/api/rag/reindex-latest", "")
	if rr2.Code != http.StatusOK {
		t.Fatalf("reindex status = %d; body = %s", rr2.Code, rr2.Body.String())
	}
	var resp struct {
		OK   bool   `json:"ok"`
		File string `json:"file"`
	}
	if err := json.Unmarshal(rr2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parsing reindex response: %v", err)
	}
	if !resp.OK || !strings.HasSuffix(resp.File, ".docx") {
		t.Errorf("unexpected reindex response: %+v", resp)
	}
}

func TestCORS_Preflight(t *testing.T) {
	app := setupApp(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORS_RestrictedOrigin(t *testing.T) {
	mw := CORS([]string{"https://app.example.com"})
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin must not be echoed, got %q", got)
	}
}
