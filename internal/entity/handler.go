package entity

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	derrors "trapper/pkg/domainerrors"
	"trapper/pkg/httputil"
)

// Reader is the store surface the read-only entity endpoints need.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (*Entity, error)
	ResolveTerminal(ctx context.Context, id uuid.UUID) (*Entity, error)
	Identifiers(ctx context.Context, entityID uuid.UUID) ([]Identifier, error)
	HouseholdMembers(ctx context.Context, placeID uuid.UUID) ([]HouseholdMember, error)
}

// Handler exposes read access to the entity arena.
type Handler struct {
	store  Reader
	logger *slog.Logger
}

// NewHandler constructs the entity HTTP handler.
func NewHandler(store Reader, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register mounts entity routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/entities/{id}", h.getEntity)
	r.Get("/entities/{id}/identifiers", h.listIdentifiers)
	r.Get("/entities/{id}/household", h.listHousehold)
}

type entityResponse struct {
	ID           string  `json:"id"`
	Type         Type    `json:"type"`
	DisplayName  string  `json:"display_name"`
	FirstName    string  `json:"first_name,omitempty"`
	LastName     string  `json:"last_name,omitempty"`
	IsPseudo     bool    `json:"is_pseudo"`
	SourceSystem string  `json:"source_system"`
	MergedFrom   *string `json:"resolved_from,omitempty"`
}

// getEntity always answers with the terminal entity. Asking for a tombstone
// returns its canonical successor, flagged with resolved_from.
func (h *Handler) getEntity(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid entity id"))
		return
	}
	e, err := h.store.ResolveTerminal(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := entityResponse{
		ID:           e.ID.String(),
		Type:         e.Type,
		DisplayName:  e.DisplayName,
		FirstName:    e.FirstName,
		LastName:     e.LastName,
		IsPseudo:     e.IsPseudo,
		SourceSystem: e.SourceSystem,
	}
	if e.ID != id {
		from := id.String()
		resp.MergedFrom = &from
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) listIdentifiers(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid entity id"))
		return
	}
	e, err := h.store.ResolveTerminal(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	idents, err := h.store.Identifiers(r.Context(), e.ID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	type identifierResponse struct {
		Type       IdentifierType `json:"type"`
		ValueNorm  string         `json:"value_norm"`
		Confidence float64        `json:"confidence"`
		Source     string         `json:"source_system"`
	}
	out := make([]identifierResponse, 0, len(idents))
	for _, ident := range idents {
		out = append(out, identifierResponse{
			Type:       ident.Type,
			ValueNorm:  ident.ValueNorm,
			Confidence: ident.Confidence,
			Source:     ident.SourceSystem,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"entity_id": e.ID.String(), "identifiers": out})
}

func (h *Handler) listHousehold(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, derrors.New(derrors.CodeValidation, "invalid entity id"))
		return
	}
	e, err := h.store.ResolveTerminal(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	placeID := e.ID
	if e.Type != TypePlace {
		if e.PrimaryPlaceID == nil {
			httputil.WriteJSON(w, http.StatusOK, map[string]any{"members": []any{}})
			return
		}
		placeID = *e.PrimaryPlaceID
	}
	members, err := h.store.HouseholdMembers(r.Context(), placeID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	type memberResponse struct {
		PersonID   string  `json:"person_id"`
		Role       string  `json:"role"`
		Confidence float64 `json:"confidence"`
		Source     string  `json:"source"`
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			PersonID:   m.PersonID.String(),
			Role:       m.Role,
			Confidence: m.Confidence,
			Source:     m.Source,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"place_id": placeID.String(), "members": out})
}
