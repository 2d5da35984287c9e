package store

import (
	"context"
	"sync"

	"trapper/internal/match"
)

// InMemory holds rulesets in a map, seeded lazily with defaults.
type InMemory struct {
	mu       sync.RWMutex
	rulesets map[string]match.Ruleset
}

// NewInMemory constructs an empty in-memory ruleset store.
func NewInMemory() *InMemory {
	return &InMemory{rulesets: make(map[string]match.Ruleset)}
}

func (s *InMemory) Snapshot(_ context.Context, sourceSystem string) (match.Ruleset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rs, ok := s.rulesets[sourceSystem]; ok && rs.IsActive {
		cp := rs
		cp.Fields = append([]match.FieldParams(nil), rs.Fields...)
		return cp, nil
	}
	return match.DefaultRuleset(sourceSystem), nil
}

func (s *InMemory) Save(_ context.Context, rs match.Ruleset) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rs.Fields = append([]match.FieldParams(nil), rs.Fields...)
	s.rulesets[rs.SourceSystem] = rs
	return nil
}
