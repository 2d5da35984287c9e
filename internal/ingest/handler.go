package ingest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trapper/pkg/httputil"
)

// Handler exposes the ingestion endpoint.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler constructs the ingestion HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts ingestion routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/ingest/records", h.ingestRecord)
}

type ingestRequest struct {
	SourceSystem   string            `json:"source_system"`
	SourceRecordID string            `json:"source_record_id"`
	Payload        map[string]string `json:"payload"`
}

type ingestResponse struct {
	ID          string `json:"id"`
	ContentHash string `json:"content_hash"`
	Created     bool   `json:"created"`
}

func (h *Handler) ingestRecord(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[ingestRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec, created, err := h.svc.Ingest(r.Context(), req.SourceSystem, req.SourceRecordID, req.Payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, ingestResponse{
		ID:          rec.ID.String(),
		ContentHash: rec.ContentHash,
		Created:     created,
	})
}
