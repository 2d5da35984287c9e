// Package store persists per-source-system matching rulesets. The engine
// reads a snapshot per batch; writes happen only through the administrative
// surface, which validates before saving.
package store

import (
	"context"

	"trapper/internal/match"
	derrors "trapper/pkg/domainerrors"
)

// ErrNotFound is returned when no ruleset exists for a source system.
var ErrNotFound = derrors.New(derrors.CodeNotFound, "ruleset not found")

// Store is the ruleset configuration surface.
type Store interface {
	// Snapshot returns the active ruleset for a source system, falling back
	// to the shipped default when none is configured. The returned value is
	// a copy; mutating it cannot affect other batches.
	Snapshot(ctx context.Context, sourceSystem string) (match.Ruleset, error)

	// Save validates and upserts a ruleset. Invalid probabilities or
	// inverted thresholds are rejected before anything is written.
	Save(ctx context.Context, rs match.Ruleset) error
}
