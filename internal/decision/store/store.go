// Package store persists match decisions and batch runs.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"trapper/internal/decision"
	derrors "trapper/pkg/domainerrors"
)

// ErrNotFound is returned when a decision id does not exist.
var ErrNotFound = derrors.New(derrors.CodeNotFound, "decision not found")

// Store is the decision persistence surface used by the batch processor and
// the review workflow.
type Store interface {
	CreateDecision(ctx context.Context, d *decision.MatchDecision) error
	GetDecision(ctx context.Context, id uuid.UUID) (*decision.MatchDecision, error)

	// GetByRawRecord returns the decision for a raw record, or ErrNotFound.
	// One decision per raw record is the batch idempotency guard.
	GetByRawRecord(ctx context.Context, rawRecordID uuid.UUID) (*decision.MatchDecision, error)

	// ListDecisions pages decisions filtered by outcome type, newest first.
	// Empty types means all.
	ListDecisions(ctx context.Context, types []decision.Type, limit, offset int) ([]decision.MatchDecision, error)

	// MarkReviewed sets the review fields exactly once. A decision already
	// resolved fails with an already_resolved error naming the earlier
	// reviewer so double submits surface instead of silently overwriting.
	MarkReviewed(ctx context.Context, id uuid.UUID, reviewedBy string, reviewedAt time.Time, resolution, notes string) error

	CreateBatchRun(ctx context.Context, run *decision.BatchRun) error
	FinishBatchRun(ctx context.Context, run *decision.BatchRun) error
}

func alreadyResolved(reviewedBy string, reviewedAt time.Time) error {
	return derrors.Newf(derrors.CodeAlreadyResolved,
		"decision already resolved by %s at %s", reviewedBy, reviewedAt.UTC().Format(time.RFC3339))
}
