package ingest

import (
	"time"

	"github.com/google/uuid"
)

// RawRecord is an append-only copy of one source row exactly as it arrived.
// Records are never updated; re-ingesting the same content is a no-op thanks
// to the content hash.
type RawRecord struct {
	ID             uuid.UUID
	SourceSystem   string
	SourceRecordID string
	Payload        map[string]string
	ContentHash    string
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
}

// Payload keys the extractor understands. Source adapters map vendor columns
// onto these before ingestion; anything else rides along untouched.
const (
	FieldName      = "name"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldEmail     = "email"
	FieldPhone     = "phone"
	FieldAddress   = "address"
	FieldRole      = "role"
)
