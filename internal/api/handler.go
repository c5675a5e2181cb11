// Package api exposes the document question-answering service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"docqa/internal/domain"
	"docqa/internal/extract"
	"docqa/internal/service"
)

// Service is the part of the RAG service the HTTP layer needs.
type Service interface {
	IngestFile(ctx context.Context, path, filename string) (service.IngestResult, error)
	Query(ctx context.Context, req service.QueryRequest) (domain.QueryResult, error)
	SummarizeDocument(ctx context.Context, id string, maxBullets int) (service.Summary, error)
	Documents(ctx context.Context) ([]domain.Document, error)
	Document(ctx context.Context, id string) (service.DocumentDetail, error)
	DeleteDocument(ctx context.Context, id string) error
	RebuildIndex(ctx context.Context) (int, error)
	IndexSize(ctx context.Context) (int, error)
	IndexStale() bool
}

// AllowedExtensions are the upload types accepted by POST /upload-document.
var AllowedExtensions = []string{"txt", "pdf", "doc", "docx", "html", "htm", "xlsx"}

type Handler struct {
	svc       Service
	uploadDir string
	allowed   map[string]bool
	logger    *slog.Logger
}

func NewHandler(svc Service, uploadDir string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(AllowedExtensions))
	for _, ext := range AllowedExtensions {
		allowed[ext] = true
	}
	return &Handler{svc: svc, uploadDir: uploadDir, allowed: allowed, logger: logger}
}

type documentJSON struct {
	DocumentID string    `json:"document_id"`
	Filename   string    `json:"filename"`
	UploadDate time.Time `json:"upload_date"`
	FileType   string    `json:"file_type"`
}

type chunkJSON struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	PageNumber *int   `json:"page_number"`
}

func toDocumentJSON(d domain.Document) documentJSON {
	return documentJSON{DocumentID: d.ID, Filename: d.Filename, UploadDate: d.UploadedAt, FileType: d.FileType}
}

// Upload handles POST /upload-document with a multipart "file" field.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file provided"})
	}
	filename := sanitizeFilename(fh.Filename)
	if filename == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "No file selected"})
	}
	ext := extract.TypeOf(filename)
	if !h.allowed[ext] {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "File type not supported. Supported types: " + strings.Join(sortedExtensions(), ", "),
		})
	}

	src, err := fh.Open()
	if err != nil {
		return h.fail(c, "Error processing document", err)
	}
	defer src.Close()
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		return h.fail(c, "Error processing document", err)
	}
	tmp, err := os.CreateTemp(h.uploadDir, "upload-*."+ext)
	if err != nil {
		return h.fail(c, "Error processing document", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		return h.fail(c, "Error processing document", err)
	}
	if err := tmp.Close(); err != nil {
		return h.fail(c, "Error processing document", err)
	}

	res, err := h.svc.IngestFile(c.Request().Context(), tmp.Name(), filename)
	if err != nil {
		return h.fail(c, "Error processing document", err)
	}
	return c.JSON(http.StatusCreated, map[string]any{
		"message":        "Document uploaded and processed successfully",
		"document_id":    res.DocumentID,
		"filename":       res.Filename,
		"chunks_created": res.ChunksCreated,
	})
}

// Chat handles POST /chat.
func (h *Handler) Chat(c echo.Context) error {
	var req service.QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
	}
	if strings.TrimSpace(req.Query) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Query is required"})
	}
	res, err := h.svc.Query(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, "Error processing chat request", err)
	}
	return c.JSON(http.StatusOK, res)
}

// ListDocuments handles GET /documents.
func (h *Handler) ListDocuments(c echo.Context) error {
	docs, err := h.svc.Documents(c.Request().Context())
	if err != nil {
		return h.fail(c, "Error retrieving documents", err)
	}
	out := make([]documentJSON, len(docs))
	for i, d := range docs {
		out[i] = toDocumentJSON(d)
	}
	return c.JSON(http.StatusOK, map[string]any{"documents": out})
}

// GetDocument handles GET /documents/:id.
func (h *Handler) GetDocument(c echo.Context) error {
	detail, err := h.svc.Document(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.fail(c, "Error retrieving document", err)
	}
	chunks := make([]chunkJSON, len(detail.Chunks))
	for i, ch := range detail.Chunks {
		chunks[i] = chunkJSON{DocumentID: ch.DocumentID, ChunkIndex: ch.Index, Text: ch.Text, PageNumber: ch.PageNumber}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"document": toDocumentJSON(detail.Document),
		"content":  detail.Document.Content,
		"chunks":   chunks,
	})
}

// DeleteDocument handles DELETE /documents/:id. The index keeps the
// document's vectors until POST /index/rebuild.
func (h *Handler) DeleteDocument(c echo.Context) error {
	if err := h.svc.DeleteDocument(c.Request().Context(), c.Param("id")); err != nil {
		return h.fail(c, "Error deleting document", err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message":     "Document deleted successfully",
		"index_stale": h.svc.IndexStale(),
	})
}

// Summarize handles POST /documents/:id/summary with an optional
// {"max_bullets": n} body.
func (h *Handler) Summarize(c echo.Context) error {
	var body struct {
		MaxBullets int `json:"max_bullets"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid json: " + err.Error()})
	}
	if body.MaxBullets < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "max_bullets must be positive"})
	}
	sum, err := h.svc.SummarizeDocument(c.Request().Context(), c.Param("id"), body.MaxBullets)
	if err != nil {
		return h.fail(c, "Error generating summary", err)
	}
	return c.JSON(http.StatusOK, sum)
}

// Rebuild handles POST /index/rebuild.
func (h *Handler) Rebuild(c echo.Context) error {
	n, err := h.svc.RebuildIndex(c.Request().Context())
	if err != nil {
		return h.fail(c, "Error rebuilding index", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"message": "Index rebuilt", "chunks_indexed": n})
}

// Health handles GET /health.
func (h *Handler) Health(c echo.Context) error {
	n, err := h.svc.IndexSize(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"indexed_chunks": n,
		"index_stale":    h.svc.IndexStale(),
	})
}

// fail maps error kinds to status codes and writes {"error": "..."}.
func (h *Handler) fail(c echo.Context, prefix string, err error) error {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(prefix, "path", c.Path(), "err", err)
	}
	return c.JSON(status, map[string]string{"error": fmt.Sprintf("%s: %v", prefix, err)})
}

// StatusFor returns the HTTP status for an error returned by the service.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnsupportedInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrProviderFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, strings.TrimSpace(name))
}

func sortedExtensions() []string {
	out := append([]string(nil), AllowedExtensions...)
	sort.Strings(out)
	return out
}
