package server

import (
	"encoding/json"
	"io"
	"net/http"

	refsync "github.com/alfredjeanlab/refguard/internal/sync"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 20

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *DocumentServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("POST /v1/models/{model}/documents", s.handleCreateDocument)
	mux.HandleFunc("GET /v1/models/{model}/documents", s.handleListDocuments)
	mux.HandleFunc("GET /v1/models/{model}/documents/{id}", s.handleGetDocument)
	mux.HandleFunc("PUT /v1/models/{model}/documents/{id}", s.handleSaveDocument)
	mux.HandleFunc("PATCH /v1/models/{model}/documents/{id}", s.handleUpdateDocument)
	mux.HandleFunc("DELETE /v1/models/{model}/documents/{id}", s.handleDeleteDocument)
	mux.HandleFunc("GET /v1/export", s.handleExport)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *DocumentServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListModels handles GET /v1/models.
func (s *DocumentServer) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.listModels()})
}

// handleCreateDocument handles POST /v1/models/{model}/documents.
func (s *DocumentServer) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeErr(w, err)
		return
	}
	doc, err := s.createDocument(r.Context(), r.PathValue("model"), fields)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// handleListDocuments handles GET /v1/models/{model}/documents.
func (s *DocumentServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.listDocuments(r.Context(), r.PathValue("model"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"total":     len(docs),
	})
}

// handleGetDocument handles GET /v1/models/{model}/documents/{id}.
func (s *DocumentServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.getDocument(r.Context(), r.PathValue("model"), r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleSaveDocument handles PUT /v1/models/{model}/documents/{id}.
func (s *DocumentServer) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	fields, err := readFields(w, r)
	if err != nil {
		writeErr(w, err)
		return
	}
	doc, err := s.saveDocument(r.Context(), r.PathValue("model"), r.PathValue("id"), fields)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleUpdateDocument handles PATCH /v1/models/{model}/documents/{id}.
// The body is an operator map such as {"$set": {...}, "$push": {...}}.
func (s *DocumentServer) handleUpdateDocument(w http.ResponseWriter, r *http.Request) {
	raw, err := readFields(w, r)
	if err != nil {
		writeErr(w, err)
		return
	}
	doc, err := s.updateDocument(r.Context(), r.PathValue("model"), r.PathValue("id"), raw)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument handles DELETE /v1/models/{model}/documents/{id}.
func (s *DocumentServer) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.deleteDocument(r.Context(), r.PathValue("model"), r.PathValue("id")); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleExport handles GET /v1/export and streams every document as JSONL.
func (s *DocumentServer) handleExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	if err := refsync.ExportJSONL(r.Context(), s.registry.Store(), w); err != nil {
		// Headers may already be sent; the truncated body is all we can signal.
		s.logger.Error("export failed", "error", err)
	}
}

func readFields(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, inputError("failed to read request body")
	}
	return decodeFields(body)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
