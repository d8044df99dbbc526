package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/verasoft/docchat/internal/extract"
	"github.com/verasoft/docchat/internal/index"
	"github.com/verasoft/docchat/internal/ingest"
	"github.com/verasoft/docchat/internal/storage"
)

type UploadResponse struct {
	OK       bool             `json:"ok"`
	Document storage.Document `json:"document"`
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required: %v", err)
			return
		}
		defer file.Close()

		name := filepath.Base(header.Filename)
		if !extract.Supported(name) {
			httpError(w, http.StatusBadRequest, "invalid_request_error",
				"unsupported file type %q, expected .docx or .pdf", strings.ToLower(filepath.Ext(name)))
			return
		}

		path, err := deps.Documents.SaveUpload(name, file)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to store upload: %v", err)
			return
		}

		doc, err := deps.Documents.Ingest(path, name)
		if errors.Is(err, index.ErrInsufficientCorpus) {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error",
				"document too short to index: %v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to ingest document: %v", err)
			return
		}

		writeJSON(w, UploadResponse{OK: true, Document: doc})
	}
}

func handleListDocuments(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Documents.List()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.Document{}
		}
		writeJSON(w, map[string]any{"ok": true, "documents": docs})
	}
}

func handleGetDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Documents.Document(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get document: %v", err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "document": doc})
	}
}

func handleDeleteDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Documents.Delete(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete document: %v", err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "filename": doc.Filename})
	}
}

func handleReindexLatest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, err := deps.Documents.ReindexLatest()
		if errors.Is(err, ingest.ErrNoEligibleFile) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "no eligible source file found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to reindex: %v", err)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "file": file})
	}
}
