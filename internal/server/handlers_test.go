package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kiku/internal/config"
	"github.com/hyperjump/kiku/internal/conversation"
	"github.com/hyperjump/kiku/internal/embedding"
	"github.com/hyperjump/kiku/internal/indexer"
	"github.com/hyperjump/kiku/internal/llm"
	"github.com/hyperjump/kiku/internal/models"
	"github.com/hyperjump/kiku/internal/rag"
	"github.com/hyperjump/kiku/internal/storage"
	"github.com/hyperjump/kiku/internal/vector"
)

type mockWatchService struct {
	dirs []string
}

func (m *mockWatchService) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockWatchService) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockWatchService) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type failingAnswerer struct{ err error }

func (f failingAnswerer) Answer(context.Context, models.AnswerRequest) (*models.AnswerResponse, error) {
	return nil, f.err
}

type blockingAnswerer struct{}

func (blockingAnswerer) Answer(ctx context.Context, _ models.AnswerRequest) (*models.AnswerResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	cfg     *config.Config
	convs   *conversation.Service
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverMemory
	cfg.Vector.Local.Path = filepath.Join(dir, "chunks.kidx")
	cfg.Server.MaxUploadBytes = 4096

	store, err := vector.NewOrchestrator([]vector.PrioritizedBackend{
		{Backend: vector.NewMemoryBackend(), Priority: 40},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	gateway := embedding.NewGateway(embedding.NewHashingEmbedder(64))
	chunker, err := indexer.NewChunker(200, 20)
	if err != nil {
		t.Fatal(err)
	}
	idx := indexer.NewIndexer(gateway, store, chunker)
	convs := conversation.NewService(storage.NewMemoryRepository())
	pipeline := rag.NewPipeline(gateway, store, llm.NewStaticGenerator("Forty-two."), rag.WithConversations(convs))

	srv := NewServer(pipeline, idx, convs, store, cfg, nil, opts...)
	return &testEnv{srv: srv, handler: srv.Handler(), cfg: cfg, convs: convs}
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	if owner != "" {
		r.Header.Set(OwnerHeader, owner)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func (e *testEnv) ingestRaw(t *testing.T, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents?name="+name, strings.NewReader(content))
	r.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		w := e.do(t, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d", path, w.Code)
		}
	}
}

func TestAsk_beforeIngestConflicts(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/ask", "", map[string]string{"question": "anything?"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409 (%s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "ingest a document first") {
		t.Errorf("body should tell the user to ingest first: %s", w.Body.String())
	}
}

func TestIngestThenAsk(t *testing.T) {
	e := newTestEnv(t)
	w := e.ingestRaw(t, "guide.txt", "The answer to the great question of life is forty-two.")
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest status: got %d (%s)", w.Code, w.Body.String())
	}
	var res models.IngestResult
	decode(t, w, &res)
	if res.ChunkCount != 1 || res.BackendUsed != models.BackendInMemoryEphemeral {
		t.Errorf("ingest result: %+v", res)
	}

	w = e.do(t, http.MethodPost, "/api/v1/ask", "", map[string]string{"question": "What is the answer?"})
	if w.Code != http.StatusOK {
		t.Fatalf("ask status: got %d (%s)", w.Code, w.Body.String())
	}
	var resp models.AnswerResponse
	decode(t, w, &resp)
	if resp.Answer != "Forty-two." {
		t.Errorf("answer: got %q", resp.Answer)
	}
	if resp.ConversationID != "" {
		t.Errorf("anonymous ask should not persist, got conversation %q", resp.ConversationID)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].DocumentID != res.DocumentID {
		t.Errorf("sources: %+v", resp.Sources)
	}
}

func TestAsk_ownerPersistsConversation(t *testing.T) {
	e := newTestEnv(t)
	if w := e.ingestRaw(t, "notes.md", "Kiku answers questions about your documents."); w.Code != http.StatusCreated {
		t.Fatalf("ingest: %d", w.Code)
	}
	w := e.do(t, http.MethodPost, "/api/v1/ask", "alice", map[string]string{"question": "What does kiku do?"})
	if w.Code != http.StatusOK {
		t.Fatalf("ask: %d (%s)", w.Code, w.Body.String())
	}
	var resp models.AnswerResponse
	decode(t, w, &resp)
	if resp.ConversationID == "" {
		t.Fatal("expected a new conversation id")
	}

	w = e.do(t, http.MethodGet, "/api/v1/conversations/"+resp.ConversationID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	var conv models.Conversation
	decode(t, w, &conv)
	if len(conv.Messages) != 2 || conv.Messages[0].Content != "What does kiku do?" || conv.Messages[1].Content != "Forty-two." {
		t.Errorf("messages: %+v", conv.Messages)
	}

	if w := e.do(t, http.MethodGet, "/api/v1/conversations/"+resp.ConversationID, "bob", nil); w.Code != http.StatusNotFound {
		t.Errorf("foreign conversation: got %d, want 404", w.Code)
	}
}

func TestAsk_invalid(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/ask", "", map[string]string{"question": "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank question: got %d, want 400", w.Code)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: got %d, want 400", rec.Code)
	}
}

func TestAsk_errorMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		retry      bool
	}{
		{models.ErrAllBackendsUnavailable, http.StatusServiceUnavailable, true},
		{fmt.Errorf("%w: timeout", models.ErrGenerationFailed), http.StatusBadGateway, true},
		{models.ErrEmbeddingFailed, http.StatusBadGateway, true},
		{models.ErrIndexCorrupt, http.StatusInternalServerError, false},
		{errors.New("boom"), http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		e := newTestEnv(t)
		e.srv.answerer = failingAnswerer{err: tt.err}
		w := e.do(t, http.MethodPost, "/api/v1/ask", "", map[string]string{"question": "q"})
		if w.Code != tt.wantStatus {
			t.Errorf("%v: got %d, want %d", tt.err, w.Code, tt.wantStatus)
		}
		if got := w.Header().Get("Retry-After") != ""; got != tt.retry {
			t.Errorf("%v: Retry-After present = %v, want %v", tt.err, got, tt.retry)
		}
	}
}

func TestAsk_retrievalTimeout(t *testing.T) {
	e := newTestEnv(t)
	e.cfg.Retrieval.Timeout = 20 * time.Millisecond
	e.srv.answerer = blockingAnswerer{}

	start := time.Now()
	w := e.do(t, http.MethodPost, "/api/v1/ask", "", map[string]string{"question": "q"})
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("got %d, want 504", w.Code)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("answer was not bounded by retrieval timeout: %v", elapsed)
	}
}

func TestIngest_multipart(t *testing.T) {
	e := newTestEnv(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "upload.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := part.Write([]byte("Multipart uploads are indexed too.")); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d (%s)", w.Code, w.Body.String())
	}
	var res models.IngestResult
	decode(t, w, &res)
	if res.Name != "upload.txt" {
		t.Errorf("name: got %q", res.Name)
	}
}

func TestIngest_rejected(t *testing.T) {
	e := newTestEnv(t)
	if w := e.ingestRaw(t, "empty.txt", ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty document: got %d, want 400", w.Code)
	}
	r := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("no name"))
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing name: got %d, want 400", w.Code)
	}
	if w := e.ingestRaw(t, "big.txt", strings.Repeat("x", 5000)); w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("oversized: got %d, want 413", w.Code)
	}
}

func TestConversations_requireOwner(t *testing.T) {
	e := newTestEnv(t)
	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/conversations"},
		{http.MethodPost, "/api/v1/conversations"},
		{http.MethodGet, "/api/v1/conversations/x"},
		{http.MethodPatch, "/api/v1/conversations/x"},
		{http.MethodDelete, "/api/v1/conversations/x"},
		{http.MethodPost, "/api/v1/conversations/x/messages"},
	}
	for _, rt := range routes {
		if w := e.do(t, rt.method, rt.path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: got %d, want 401", rt.method, rt.path, w.Code)
		}
	}
}

func TestConversations_lifecycle(t *testing.T) {
	e := newTestEnv(t)
	w := e.do(t, http.MethodPost, "/api/v1/conversations", "alice", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d (%s)", w.Code, w.Body.String())
	}
	var conv models.Conversation
	decode(t, w, &conv)
	if conv.Title != models.DefaultConversationTitle {
		t.Errorf("title: got %q", conv.Title)
	}

	w = e.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "alice", map[string]interface{}{
		"messages": []map[string]string{
			{"role": "user", "content": "hi"},
			{"role": "assistant", "content": "hello"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("append: %d (%s)", w.Code, w.Body.String())
	}
	var appended models.Conversation
	decode(t, w, &appended)
	if appended.ID != conv.ID || len(appended.Messages) != 2 || !appended.Messages[1].Timestamp.After(appended.Messages[0].Timestamp) {
		t.Errorf("appended: %+v", appended)
	}

	w = e.do(t, http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "alice", map[string]interface{}{
		"messages": []map[string]string{{"role": "system", "content": "x"}},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad role: got %d, want 400", w.Code)
	}

	w = e.do(t, http.MethodPatch, "/api/v1/conversations/"+conv.ID, "alice", map[string]string{"title": "Greetings"})
	if w.Code != http.StatusOK {
		t.Fatalf("rename: %d", w.Code)
	}
	var renamed models.Conversation
	decode(t, w, &renamed)
	if renamed.Title != "Greetings" || !renamed.CustomTitle || len(renamed.Messages) != 2 {
		t.Errorf("rename response: %+v", renamed)
	}

	w = e.do(t, http.MethodGet, "/api/v1/conversations", "alice", nil)
	var list struct {
		Conversations []models.ConversationSummary `json:"conversations"`
	}
	decode(t, w, &list)
	if len(list.Conversations) != 1 || list.Conversations[0].Preview != "Greetings" {
		t.Errorf("list: %+v", list.Conversations)
	}

	for i := 0; i < 2; i++ {
		if w := e.do(t, http.MethodDelete, "/api/v1/conversations/"+conv.ID, "alice", nil); w.Code != http.StatusOK {
			t.Errorf("delete #%d: got %d", i+1, w.Code)
		}
	}
	if w := e.do(t, http.MethodGet, "/api/v1/conversations/"+conv.ID, "alice", nil); w.Code != http.StatusNotFound {
		t.Errorf("after delete: got %d, want 404", w.Code)
	}
}

func TestStatus(t *testing.T) {
	e := newTestEnv(t)
	if err := os.WriteFile(e.cfg.Vector.Local.Path, []byte("12345"), 0644); err != nil {
		t.Fatal(err)
	}
	w := e.do(t, http.MethodGet, "/api/v1/status", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	var out statusResponse
	decode(t, w, &out)
	if len(out.Backends) != 1 || out.Backends[0].Kind != models.BackendInMemoryEphemeral {
		t.Errorf("backends: %+v", out.Backends)
	}
	if out.Populated {
		t.Error("nothing ingested yet")
	}
	if out.Disk == nil || out.Disk.TotalBytes != 5 {
		t.Errorf("disk: %+v", out.Disk)
	}
	if out.Config["storage_driver"] != config.DriverMemory {
		t.Errorf("config: %+v", out.Config)
	}
}

func TestHeaderIdentity(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := (HeaderIdentity{}).OwnerID(r); got != "" {
		t.Errorf("anonymous: got %q", got)
	}
	r.Header.Set(OwnerHeader, "  alice ")
	if got := (HeaderIdentity{}).OwnerID(r); got != "alice" {
		t.Errorf("got %q, want alice", got)
	}
	r.Header.Set("X-User", "bob")
	if got := (HeaderIdentity{Header: "X-User"}).OwnerID(r); got != "bob" {
		t.Errorf("custom header: got %q", got)
	}
}

func TestHandleWatchDirectoriesList(t *testing.T) {
	mock := &mockWatchService{dirs: []string{"/tmp/docs"}}
	e := newTestEnv(t, WithWatch(mock, ""))

	w := e.do(t, http.MethodGet, "/api/v1/watch/directories", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
	var out struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != "/tmp/docs" {
		t.Errorf("directories: got %v", out.Directories)
	}
}

func TestHandleWatchDirectories_notEnabled(t *testing.T) {
	e := newTestEnv(t)
	if w := e.do(t, http.MethodGet, "/api/v1/watch/directories", "", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("got %d, want 501", w.Code)
	}
}

func TestHandleWatchDirectoriesAddRemove_persistsConfig(t *testing.T) {
	dir := t.TempDir()
	docs := filepath.Join(dir, "docs")
	if err := os.Mkdir(docs, 0755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(dir, "config.yaml")
	mock := &mockWatchService{}
	e := newTestEnv(t, WithWatch(mock, cfgPath))

	w := e.do(t, http.MethodPost, "/api/v1/watch/directories", "", map[string]interface{}{"path": docs, "sync": false})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: got %d (%s)", w.Code, w.Body.String())
	}
	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Watch.Directories) != 1 || saved.Watch.Directories[0] != docs {
		t.Errorf("saved directories: %v", saved.Watch.Directories)
	}

	if w := e.do(t, http.MethodPost, "/api/v1/watch/directories", "", map[string]string{"path": filepath.Join(dir, "missing")}); w.Code != http.StatusNotFound {
		t.Errorf("missing dir: got %d, want 404", w.Code)
	}

	w = e.do(t, http.MethodDelete, "/api/v1/watch/directories?path="+docs, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove: got %d", w.Code)
	}
	if len(mock.dirs) != 0 {
		t.Errorf("after remove: %v", mock.dirs)
	}
}
