package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"trapper/pkg/httputil"
)

// Handler exposes the audit trail read endpoint.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler constructs the audit HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts audit routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/{entityType}/{entityID}", h.listTrail)
}

func (h *Handler) listTrail(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.ListByEntity(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
