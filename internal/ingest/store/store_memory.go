package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"trapper/internal/ingest"
)

// InMemory stages raw records in memory for tests and local runs.
type InMemory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*ingest.RawRecord
	byHash  map[hashKey]uuid.UUID
	clock   func() time.Time
}

type hashKey struct {
	sourceSystem string
	contentHash  string
}

// NewInMemory constructs an empty in-memory staging store.
func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[uuid.UUID]*ingest.RawRecord),
		byHash:  make(map[hashKey]uuid.UUID),
		clock:   time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *InMemory) WithClock(clock func() time.Time) *InMemory {
	s.clock = clock
	return s
}

func (s *InMemory) Insert(_ context.Context, rec *ingest.RawRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hashKey{sourceSystem: rec.SourceSystem, contentHash: rec.ContentHash}
	if existingID, ok := s.byHash[key]; ok {
		*rec = *s.records[existingID]
		return false, nil
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = s.clock()
	}
	cp := *rec
	cp.Payload = copyPayload(rec.Payload)
	s.records[rec.ID] = &cp
	s.byHash[key] = rec.ID
	return true, nil
}

func (s *InMemory) Get(_ context.Context, id uuid.UUID) (*ingest.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	cp.Payload = copyPayload(rec.Payload)
	return &cp, nil
}

func (s *InMemory) ListUnprocessed(_ context.Context, sourceSystem string, limit int) ([]ingest.RawRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ingest.RawRecord
	for _, rec := range s.records {
		if rec.ProcessedAt != nil {
			continue
		}
		if sourceSystem != "" && rec.SourceSystem != sourceSystem {
			continue
		}
		cp := *rec
		cp.Payload = copyPayload(rec.Payload)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) MarkProcessed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.ProcessedAt == nil {
		now := s.clock()
		rec.ProcessedAt = &now
	}
	return nil
}

func copyPayload(p map[string]string) map[string]string {
	cp := make(map[string]string, len(p))
	for k, v := range p {
		cp[k] = v
	}
	return cp
}
