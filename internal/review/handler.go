package review

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	derrors "trapper/pkg/domainerrors"
	"trapper/pkg/httputil"
)

// Handler exposes the review endpoints.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler constructs the review HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts review routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/review/decisions/{id}/resolve", h.resolveDecision)
	r.Post("/review/entities/merge", h.mergeEntities)
}

type resolveRequest struct {
	Action   string  `json:"action"`
	Reviewer string  `json:"reviewer"`
	EntityID *string `json:"entity_id,omitempty"`
	Role     string  `json:"role,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

func (h *Handler) resolveDecision(w http.ResponseWriter, r *http.Request) {
	decisionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid decision id"))
		return
	}
	req, err := httputil.Decode[resolveRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res := Resolution{
		Action:   Action(req.Action),
		Reviewer: req.Reviewer,
		Role:     req.Role,
		Notes:    req.Notes,
	}
	if req.EntityID != nil {
		id, err := uuid.Parse(*req.EntityID)
		if err != nil {
			httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid entity_id"))
			return
		}
		res.EntityID = &id
	}

	resolved, err := h.svc.Resolve(r.Context(), decisionID, res)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, resolved)
}

type mergeRequest struct {
	LoserID  string `json:"loser_id"`
	WinnerID string `json:"winner_id"`
	Actor    string `json:"actor"`
}

func (h *Handler) mergeEntities(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[mergeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	loserID, err := uuid.Parse(req.LoserID)
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid loser_id"))
		return
	}
	winnerID, err := uuid.Parse(req.WinnerID)
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid winner_id"))
		return
	}

	winner, err := h.svc.MergeEntities(r.Context(), loserID, winnerID, req.Actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"winner_id":    winner.ID.String(),
		"display_name": winner.DisplayName,
	})
}
