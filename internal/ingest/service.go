package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	derrors "trapper/pkg/domainerrors"
)

// RecordStore is the persistence surface the ingestion service writes to.
// Declared here rather than importing the store package to keep the
// dependency edge pointing inward.
type RecordStore interface {
	Insert(ctx context.Context, rec *RawRecord) (bool, error)
	Get(ctx context.Context, id uuid.UUID) (*RawRecord, error)
	ListUnprocessed(ctx context.Context, sourceSystem string, limit int) ([]RawRecord, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
}

// Service stages incoming source rows for later resolution.
type Service struct {
	store  RecordStore
	logger *slog.Logger
	clock  func() time.Time
}

// NewService constructs the ingestion service.
func NewService(store RecordStore, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, clock: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Ingest stages one source row. Returns the staged record and whether it was
// newly created; rows whose content hash already exists are returned as-is
// so re-running an export is harmless.
func (s *Service) Ingest(ctx context.Context, sourceSystem, sourceRecordID string, payload map[string]string) (*RawRecord, bool, error) {
	if strings.TrimSpace(sourceSystem) == "" {
		return nil, false, derrors.New(derrors.CodeValidation, "source_system is required")
	}
	if payload == nil {
		payload = map[string]string{}
	}

	rec := &RawRecord{
		ID:             uuid.New(),
		SourceSystem:   sourceSystem,
		SourceRecordID: sourceRecordID,
		Payload:        payload,
		ContentHash:    ContentHash(payload),
		ReceivedAt:     s.clock(),
	}
	created, err := s.store.Insert(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	if !created {
		s.logger.DebugContext(ctx, "duplicate raw record skipped",
			"source_system", sourceSystem,
			"content_hash", rec.ContentHash,
		)
	}
	return rec, created, nil
}

// ListUnprocessed exposes the staging queue to the batch processor.
func (s *Service) ListUnprocessed(ctx context.Context, sourceSystem string, limit int) ([]RawRecord, error) {
	return s.store.ListUnprocessed(ctx, sourceSystem, limit)
}

// ContentHash fingerprints a payload independent of key order. Two rows with
// identical field values hash identically even if the export shuffles columns.
func ContentHash(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(payload[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
