// Package store persists staged raw records awaiting resolution.
package store

import (
	"context"

	"github.com/google/uuid"

	"trapper/internal/ingest"
	derrors "trapper/pkg/domainerrors"
)

// ErrNotFound is returned when a raw record id does not exist.
var ErrNotFound = derrors.New(derrors.CodeNotFound, "raw record not found")

// Store is the staged-record surface consumed by ingestion and the batch
// processor.
type Store interface {
	// Insert appends a raw record unless one with the same
	// (source_system, content_hash) already exists. Returns whether a new
	// row was created; re-ingesting identical content is a silent no-op.
	Insert(ctx context.Context, rec *ingest.RawRecord) (bool, error)

	Get(ctx context.Context, id uuid.UUID) (*ingest.RawRecord, error)

	// ListUnprocessed returns up to limit staged records, oldest first.
	// Empty sourceSystem means all sources.
	ListUnprocessed(ctx context.Context, sourceSystem string, limit int) ([]ingest.RawRecord, error)

	// MarkProcessed stamps processed_at. The decision row is the real
	// idempotency guard; this just keeps the staging queue short.
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}
