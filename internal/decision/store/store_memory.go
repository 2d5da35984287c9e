package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trapper/internal/decision"
)

// InMemory keeps decisions and batch runs in memory for tests and local runs.
type InMemory struct {
	mu        sync.RWMutex
	decisions map[uuid.UUID]*decision.MatchDecision
	byRecord  map[uuid.UUID]uuid.UUID
	runs      map[uuid.UUID]*decision.BatchRun
	clock     func() time.Time
}

// NewInMemory constructs an empty in-memory decision store.
func NewInMemory() *InMemory {
	return &InMemory{
		decisions: make(map[uuid.UUID]*decision.MatchDecision),
		byRecord:  make(map[uuid.UUID]uuid.UUID),
		runs:      make(map[uuid.UUID]*decision.BatchRun),
		clock:     time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *InMemory) WithClock(clock func() time.Time) *InMemory {
	s.clock = clock
	return s
}

func (s *InMemory) CreateDecision(_ context.Context, d *decision.MatchDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.clock()
	}
	cp := *d
	s.decisions[d.ID] = &cp
	s.byRecord[d.RawRecordID] = d.ID
	return nil
}

func (s *InMemory) GetDecision(_ context.Context, id uuid.UUID) (*decision.MatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *InMemory) GetByRawRecord(_ context.Context, rawRecordID uuid.UUID) (*decision.MatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRecord[rawRecordID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.decisions[id]
	return &cp, nil
}

func (s *InMemory) ListDecisions(_ context.Context, types []decision.Type, limit, offset int) ([]decision.MatchDecision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[decision.Type]struct{}, len(types))
	for _, t := range types {
		wanted[t] = struct{}{}
	}

	var out []decision.MatchDecision
	for _, d := range s.decisions {
		if len(wanted) > 0 {
			if _, ok := wanted[d.Decision]; !ok {
				continue
			}
		}
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) MarkReviewed(_ context.Context, id uuid.UUID, reviewedBy string, reviewedAt time.Time, resolution, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.decisions[id]
	if !ok {
		return ErrNotFound
	}
	if d.ReviewedAt != nil {
		return alreadyResolved(d.ReviewedBy, *d.ReviewedAt)
	}
	d.ReviewedBy = reviewedBy
	d.ReviewedAt = &reviewedAt
	d.Resolution = resolution
	d.ReviewNotes = notes
	return nil
}

func (s *InMemory) CreateBatchRun(_ context.Context, run *decision.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.clock()
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *InMemory) FinishBatchRun(_ context.Context, run *decision.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return ErrNotFound
	}
	if run.FinishedAt == nil {
		now := s.clock()
		run.FinishedAt = &now
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}
