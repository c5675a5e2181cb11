package api

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
	"strings"
	"testing"
	"time"

	"docqa/internal/domain"
	"docqa/internal/logging"
	"docqa/internal/service"
)

type fakeService struct {
	uploadedName    string
	uploadedContent string
	queries         []service.QueryRequest
	bullets         int
	deleted         []string
	stale           bool
	queryErr        error
}

func (f *fakeService) IngestFile(_ context.Context, path, filename string) (service.IngestResult, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return service.IngestResult{}, err
	}
	f.uploadedName, f.uploadedContent = filename, string(b)
	if strings.TrimSpace(string(b)) == "" {
		return service.IngestResult{}, fmt.Errorf("%w: no text", domain.ErrUnsupportedInput)
	}
	return service.IngestResult{DocumentID: "doc-1", Filename: filename, ChunksCreated: 3}, nil
}

func (f *fakeService) Query(_ context.Context, req service.QueryRequest) (domain.QueryResult, error) {
	f.queries = append(f.queries, req)
	if f.queryErr != nil {
		return domain.QueryResult{}, f.queryErr
	}
	return domain.QueryResult{
		Answer:          "Blue [1].",
		Citations:       []domain.Citation{{DocumentID: "doc-1", Filename: "sky.txt", Text: "The sky is blue.", SimilarityScore: 0.9}},
		RetrievedChunks: 1,
	}, nil
}

func (f *fakeService) SummarizeDocument(_ context.Context, id string, maxBullets int) (service.Summary, error) {
	if id != "doc-1" {
		return service.Summary{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	f.bullets = maxBullets
	return service.Summary{DocumentID: id, Filename: "sky.txt", Summary: "- blue"}, nil
}

func (f *fakeService) Documents(context.Context) ([]domain.Document, error) {
	return []domain.Document{{ID: "doc-1", Filename: "sky.txt", FileType: "txt", UploadedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}}, nil
}

func (f *fakeService) Document(_ context.Context, id string) (service.DocumentDetail, error) {
	if id != "doc-1" {
		return service.DocumentDetail{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	page := 1
	return service.DocumentDetail{
		Document: domain.Document{ID: id, Filename: "sky.txt", FileType: "txt", Content: "The sky is blue."},
		Chunks:   []domain.Chunk{{DocumentID: id, Index: 0, Text: "The sky is blue.", PageNumber: &page}},
	}, nil
}

func (f *fakeService) DeleteDocument(_ context.Context, id string) error {
	if id != "doc-1" {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	f.deleted = append(f.deleted, id)
	f.stale = true
	return nil
}

func (f *fakeService) RebuildIndex(context.Context) (int, error) {
	f.stale = false
	return 7, nil
}

func (f *fakeService) IndexSize(context.Context) (int, error) { return 7, nil }
func (f *fakeService) IndexStale() bool                       { return f.stale }

func newTestServer(t *testing.T) (*fakeService, http.Handler) {
	t.Helper()
	svc := &fakeService{}
	h := NewHandler(svc, t.TempDir(), logging.Discard())
	return svc, NewServer(h, 1, logging.Discard())
}

func do(t *testing.T, srv http.Handler, method, path, contentType string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func multipartBody(t *testing.T, field, filename, content string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		w, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(content))
	} else {
		_ = mw.WriteField("note", "no file here")
	}
	_ = mw.Close()
	return buf.Bytes(), mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	svc, srv := newTestServer(t)
	body, ct := multipartBody(t, "file", "../../Notes.TXT", "hello upload")
	rec, out := do(t, srv, http.MethodPost, "/upload-document", ct, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	if out["document_id"] != "doc-1" || out["chunks_created"] != float64(3) {
		t.Fatalf("unexpected body %v", out)
	}
	if svc.uploadedName != "Notes.TXT" || svc.uploadedContent != "hello upload" {
		t.Fatalf("service got %q %q", svc.uploadedName, svc.uploadedContent)
	}
}

func TestUpload_Rejections(t *testing.T) {
	_, srv := newTestServer(t)
	cases := []struct {
		name, field, filename, content string
		want                           int
	}{
		{"missing file", "", "", "", http.StatusBadRequest},
		{"bad extension", "file", "tool.exe", "MZ", http.StatusBadRequest},
		{"no extension", "file", "README", "text", http.StatusBadRequest},
		{"empty text", "file", "blank.txt", "   ", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartBody(t, tc.field, tc.filename, tc.content)
			rec, out := do(t, srv, http.MethodPost, "/upload-document", ct, body)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body)
			}
			if out["error"] == nil {
				t.Fatalf("expected error message")
			}
		})
	}
}

func TestChat(t *testing.T) {
	svc, srv := newTestServer(t)
	rec, out := do(t, srv, http.MethodPost, "/chat", "application/json",
		[]byte(`{"query":"What color is the sky?","document_ids":["doc-1"],"k":3}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if out["answer"] != "Blue [1]." || out["retrieved_chunks"] != float64(1) {
		t.Fatalf("unexpected body %v", out)
	}
	cites := out["citations"].([]any)
	first := cites[0].(map[string]any)
	if first["similarity_score"] != 0.9 || first["filename"] != "sky.txt" {
		t.Fatalf("unexpected citation %v", first)
	}
	if _, ok := first["page_number"]; ok {
		t.Fatalf("page_number must be omitted when unknown")
	}
	q := svc.queries[0]
	if q.K != 3 || len(q.DocumentIDs) != 1 || q.DocumentIDs[0] != "doc-1" {
		t.Fatalf("unexpected request %+v", q)
	}
}

func TestChat_Errors(t *testing.T) {
	svc, srv := newTestServer(t)
	if rec, _ := do(t, srv, http.MethodPost, "/chat", "application/json", []byte(`{"document_ids":[]}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing query, got %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodPost, "/chat", "application/json", []byte(`{not json`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
	svc.queryErr = &domain.ProviderError{Provider: "openai", Op: "complete", Err: errors.New("503")}
	rec, out := do(t, srv, http.MethodPost, "/chat", "application/json", []byte(`{"query":"q"}`))
	if rec.Code != http.StatusBadGateway || !strings.HasPrefix(out["error"].(string), "Error processing chat request") {
		t.Fatalf("expected 502, got %d %v", rec.Code, out)
	}
}

func TestDocuments(t *testing.T) {
	_, srv := newTestServer(t)
	rec, out := do(t, srv, http.MethodGet, "/documents", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	docs := out["documents"].([]any)
	first := docs[0].(map[string]any)
	if first["document_id"] != "doc-1" || first["upload_date"] != "2024-05-01T12:00:00Z" || first["file_type"] != "txt" {
		t.Fatalf("unexpected document %v", first)
	}

	rec, out = do(t, srv, http.MethodGet, "/documents/doc-1", "", nil)
	if rec.Code != http.StatusOK || out["content"] != "The sky is blue." {
		t.Fatalf("unexpected detail %d %v", rec.Code, out)
	}
	chunk := out["chunks"].([]any)[0].(map[string]any)
	if chunk["page_number"] != float64(1) || chunk["chunk_index"] != float64(0) {
		t.Fatalf("unexpected chunk %v", chunk)
	}

	if rec, _ := do(t, srv, http.MethodGet, "/documents/nope", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteAndRebuild(t *testing.T) {
	svc, srv := newTestServer(t)
	rec, out := do(t, srv, http.MethodDelete, "/documents/doc-1", "", nil)
	if rec.Code != http.StatusOK || out["index_stale"] != true {
		t.Fatalf("unexpected delete response %d %v", rec.Code, out)
	}
	if rec, _ := do(t, srv, http.MethodDelete, "/delete-document/missing", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on legacy path, got %d", rec.Code)
	}
	rec, out = do(t, srv, http.MethodPost, "/index/rebuild", "", nil)
	if rec.Code != http.StatusOK || out["chunks_indexed"] != float64(7) || svc.stale {
		t.Fatalf("unexpected rebuild response %d %v", rec.Code, out)
	}
}

func TestSummarize(t *testing.T) {
	svc, srv := newTestServer(t)
	rec, out := do(t, srv, http.MethodPost, "/documents/doc-1/summary", "application/json", []byte(`{"max_bullets":3}`))
	if rec.Code != http.StatusOK || out["summary"] != "- blue" || svc.bullets != 3 {
		t.Fatalf("unexpected summary %d %v bullets=%d", rec.Code, out, svc.bullets)
	}
	rec, _ = do(t, srv, http.MethodPost, "/summarize-document/doc-1", "", nil)
	if rec.Code != http.StatusOK || svc.bullets != 0 {
		t.Fatalf("empty body should use the default bullet count, got %d bullets=%d", rec.Code, svc.bullets)
	}
	if rec, _ := do(t, srv, http.MethodPost, "/documents/nope/summary", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec, _ := do(t, srv, http.MethodPost, "/documents/doc-1/summary", "application/json", []byte(`{"max_bullets":-2}`)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	_, srv := newTestServer(t)
	rec, out := do(t, srv, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK || out["status"] != "ok" || out["indexed_chunks"] != float64(7) {
		t.Fatalf("unexpected health %d %v", rec.Code, out)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrUnsupportedInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", domain.ErrNotFound), http.StatusNotFound},
		{domain.WrapProvider("openai", "embed", errors.New("boom")), http.StatusBadGateway},
		{fmt.Errorf("retrieve: %w", domain.WrapProvider("qdrant", "POST /points/search", errors.New("unexpected status 500"))), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusFor(tc.err); got != tc.want {
			t.Errorf("StatusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
