package match

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	derrors "trapper/pkg/domainerrors"
	"trapper/pkg/httputil"
)

// RulesetStore is the configuration surface the handler administers.
type RulesetStore interface {
	Snapshot(ctx context.Context, sourceSystem string) (Ruleset, error)
	Save(ctx context.Context, rs Ruleset) error
}

// Handler exposes ruleset administration.
type Handler struct {
	store  RulesetStore
	logger *slog.Logger
}

// NewHandler constructs the ruleset HTTP handler.
func NewHandler(store RulesetStore, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts ruleset routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/match/rulesets/{sourceSystem}", h.getRuleset)
	r.Put("/match/rulesets/{sourceSystem}", h.saveRuleset)
}

func (h *Handler) getRuleset(w http.ResponseWriter, r *http.Request) {
	rs, err := h.store.Snapshot(r.Context(), chi.URLParam(r, "sourceSystem"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rs)
}

func (h *Handler) saveRuleset(w http.ResponseWriter, r *http.Request) {
	rs, err := httputil.Decode[Ruleset](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	sourceSystem := chi.URLParam(r, "sourceSystem")
	if rs.SourceSystem == "" {
		rs.SourceSystem = sourceSystem
	}
	if rs.SourceSystem != sourceSystem {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "source_system in body does not match URL"))
		return
	}
	if err := h.store.Save(r.Context(), rs); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "ruleset saved", "source_system", rs.SourceSystem)
	httputil.WriteJSON(w, http.StatusOK, rs)
}
