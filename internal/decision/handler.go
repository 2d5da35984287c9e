package decision

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	derrors "trapper/pkg/domainerrors"
	"trapper/pkg/httputil"
)

// DecisionReader is the read surface the handler pages decisions from.
type DecisionReader interface {
	GetDecision(ctx context.Context, id uuid.UUID) (*MatchDecision, error)
	ListDecisions(ctx context.Context, types []Type, limit, offset int) ([]MatchDecision, error)
}

// Handler exposes the batch trigger and decision listing endpoints.
type Handler struct {
	svc        *Service
	reader     DecisionReader
	batchLimit int
	logger     *slog.Logger
}

// NewHandler constructs the decision HTTP handler. batchLimit is the default
// pull size when a process-batch request does not name one.
func NewHandler(svc *Service, reader DecisionReader, batchLimit int, logger *slog.Logger) *Handler {
	if batchLimit <= 0 {
		batchLimit = 500
	}
	return &Handler{svc: svc, reader: reader, batchLimit: batchLimit, logger: logger}
}

// Register mounts decision routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/match/process-batch", h.processBatch)
	r.Get("/match/decisions", h.listDecisions)
	r.Get("/match/decisions/{id}", h.getDecision)
}

type processBatchRequest struct {
	SourceSystem string `json:"source_system"`
	Limit        int    `json:"limit"`
}

func (h *Handler) processBatch(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.Decode[processBatchRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.Limit <= 0 || req.Limit > 5000 {
		req.Limit = h.batchLimit
	}
	run, err := h.svc.ProcessBatch(r.Context(), req.SourceSystem, req.Limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "batch run failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

var validTypes = map[Type]struct{}{
	TypeAutoMatch:    {},
	TypeNewEntity:    {},
	TypeReviewNeeded: {},
	TypeRejected:     {},
}

func (h *Handler) listDecisions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var types []Type
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			t := Type(strings.TrimSpace(part))
			if _, ok := validTypes[t]; !ok {
				httputil.WriteError(w, derrors.Newf(derrors.CodeValidation, "unknown decision status %q", t))
				return
			}
			types = append(types, t)
		}
	}

	limit := queryInt(q.Get("limit"), 50)
	if limit > 500 {
		limit = 500
	}
	offset := queryInt(q.Get("offset"), 0)

	decisions, err := h.reader.ListDecisions(r.Context(), types, limit, offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if decisions == nil {
		decisions = []MatchDecision{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"decisions": decisions,
		"limit":     limit,
		"offset":    offset,
	})
}

func (h *Handler) getDecision(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid decision id"))
		return
	}
	d, err := h.reader.GetDecision(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
