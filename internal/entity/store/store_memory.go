package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"trapper/internal/entity"
	derrors "trapper/pkg/domainerrors"
)

// InMemory is a mutex-guarded entity arena used by unit tests and local runs.
type InMemory struct {
	mu         sync.RWMutex
	entities   map[uuid.UUID]*entity.Entity
	idents     map[identKey]entity.Identifier
	byIdent    map[indexKey]map[uuid.UUID]struct{}
	households map[householdKey]entity.HouseholdMember
	clock      func() time.Time
}

type identKey struct {
	entityID  uuid.UUID
	idType    entity.IdentifierType
	valueNorm string
}

type indexKey struct {
	idType    entity.IdentifierType
	valueNorm string
}

type householdKey struct {
	placeID  uuid.UUID
	personID uuid.UUID
}

// NewInMemory constructs an empty in-memory entity store.
func NewInMemory() *InMemory {
	return &InMemory{
		entities:   make(map[uuid.UUID]*entity.Entity),
		idents:     make(map[identKey]entity.Identifier),
		byIdent:    make(map[indexKey]map[uuid.UUID]struct{}),
		households: make(map[householdKey]entity.HouseholdMember),
		clock:      time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *InMemory) WithClock(clock func() time.Time) *InMemory {
	s.clock = clock
	return s
}

func (s *InMemory) Create(_ context.Context, e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := s.clock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

func (s *InMemory) Update(_ context.Context, e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = s.clock()
	cp := *e
	s.entities[e.ID] = &cp
	return nil
}

func (s *InMemory) Get(_ context.Context, id uuid.UUID) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *InMemory) ResolveTerminal(_ context.Context, id uuid.UUID) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, err := s.terminalLocked(id)
	if err != nil {
		return nil, err
	}
	cp := *e
	return &cp, nil
}

// terminalLocked follows the merge chain under the read lock. Chains are
// re-pointed to one hop on every merge; the hop bound guards against a
// corrupted forest.
func (s *InMemory) terminalLocked(id uuid.UUID) (*entity.Entity, error) {
	e, ok := s.entities[id]
	if !ok {
		return nil, ErrNotFound
	}
	for hops := 0; e.MergedIntoID != nil; hops++ {
		if hops >= maxChainHops {
			return nil, derrors.Newf(derrors.CodeInternal, "merge chain from %s exceeds %d hops", id, maxChainHops)
		}
		next, ok := s.entities[*e.MergedIntoID]
		if !ok {
			return nil, derrors.Newf(derrors.CodeInternal, "merge chain from %s points at missing entity %s", id, *e.MergedIntoID)
		}
		e = next
	}
	return e, nil
}

func (s *InMemory) FindByIdentifier(_ context.Context, idType entity.IdentifierType, valueNorm string) ([]*entity.Entity, error) {
	if valueNorm == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var out []*entity.Entity
	for id := range s.byIdent[indexKey{idType: idType, valueNorm: valueNorm}] {
		term, err := s.terminalLocked(id)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[term.ID]; dup {
			continue
		}
		seen[term.ID] = struct{}{}
		cp := *term
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) FindPlaceByAddress(_ context.Context, addressNorm string) (*entity.Entity, error) {
	if addressNorm == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities {
		if e.Type != entity.TypePlace || e.AddressNorm != addressNorm {
			continue
		}
		term, err := s.terminalLocked(e.ID)
		if err != nil {
			return nil, err
		}
		cp := *term
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *InMemory) AttachIdentifier(_ context.Context, ident entity.Identifier) error {
	if ident.ValueNorm == "" {
		return derrors.New(derrors.CodeValidation, "identifier value_norm is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[ident.EntityID]; !ok {
		return ErrNotFound
	}
	s.attachLocked(ident)
	return nil
}

func (s *InMemory) attachLocked(ident entity.Identifier) {
	key := identKey{entityID: ident.EntityID, idType: ident.Type, valueNorm: ident.ValueNorm}
	if existing, ok := s.idents[key]; ok {
		// Dedup on (entity, type, value_norm); highest confidence wins.
		if existing.Confidence >= ident.Confidence {
			return
		}
	}
	s.idents[key] = ident
	idx := indexKey{idType: ident.Type, valueNorm: ident.ValueNorm}
	if s.byIdent[idx] == nil {
		s.byIdent[idx] = make(map[uuid.UUID]struct{})
	}
	s.byIdent[idx][ident.EntityID] = struct{}{}
}

func (s *InMemory) Identifiers(_ context.Context, entityID uuid.UUID) ([]entity.Identifier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.Identifier
	for key, ident := range s.idents {
		if key.entityID == entityID {
			out = append(out, ident)
		}
	}
	return out, nil
}

func (s *InMemory) Merge(_ context.Context, loserID, winnerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loser, err := s.terminalLocked(loserID)
	if err != nil {
		return err
	}
	winner, err := s.terminalLocked(winnerID)
	if err != nil {
		return err
	}
	if loser.ID == winner.ID {
		return derrors.Newf(derrors.CodeMergeCycle, "merging %s into %s would close a cycle", loserID, winnerID)
	}

	now := s.clock()
	loser.MergedIntoID = &winner.ID
	loser.UpdatedAt = now

	// Re-point every tombstone aimed at the loser so chains stay one hop.
	for _, e := range s.entities {
		if e.MergedIntoID != nil && *e.MergedIntoID == loser.ID {
			e.MergedIntoID = &winner.ID
			e.UpdatedAt = now
		}
	}

	// Union the loser's identifiers onto the winner.
	for key, ident := range s.idents {
		if key.entityID != loser.ID {
			continue
		}
		moved := ident
		moved.EntityID = winner.ID
		s.attachLocked(moved)
	}
	winner.UpdatedAt = now
	return nil
}

func (s *InMemory) UpsertHouseholdMember(_ context.Context, m entity.HouseholdMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.clock()
	}
	key := householdKey{placeID: m.PlaceID, personID: m.PersonID}
	if existing, ok := s.households[key]; ok {
		// Manual overrides stick; inferred recomputation never downgrades them.
		if existing.Source == entity.HouseholdSourceManual && m.Source == entity.HouseholdSourceInferred {
			return nil
		}
		m.CreatedAt = existing.CreatedAt
	}
	s.households[key] = m
	return nil
}

func (s *InMemory) HouseholdMembers(_ context.Context, placeID uuid.UUID) ([]entity.HouseholdMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []entity.HouseholdMember
	for key, m := range s.households {
		if key.placeID == placeID {
			out = append(out, m)
		}
	}
	return out, nil
}
