package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verasoft/docchat/internal/chat"
	"github.com/verasoft/docchat/internal/history"
	"github.com/verasoft/docchat/internal/ingest"
)

const maxUploadSize = 20 << 20 // 20MB

type AppDeps struct {
	Chat           *chat.Service
	History        *history.Manager
	Documents      *ingest.Manager
	AllowedOrigins []string
	Logger         *slog.Logger
}

func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(CORS(deps.AllowedOrigins))

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", handleChat(deps))
		r.Get("/chat/sessions", handleListSessions(deps))
		r.Get("/chat/sessions/{id}", handleGetSession(deps))
		r.Delete("/chat/sessions/{id}", handleDeleteSession(deps))

		r.Post("/rag/upload", handleUpload(deps))
		r.Get("/rag/documents", handleListDocuments(deps))
		r.Get("/rag/documents/{id}", handleGetDocument(deps))
		r.Delete("/rag/documents/{id}", handleDeleteDocument(deps))
		r.Post("/rag/reindex-latest", handleReindexLatest(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}
