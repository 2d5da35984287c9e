package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trapper/internal/ingest"
)

// Postgres stages raw records in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed staging store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Insert(ctx context.Context, rec *ingest.RawRecord) (bool, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ReceivedAt.IsZero() {
		rec.ReceivedAt = time.Now()
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return false, fmt.Errorf("encode payload: %w", err)
	}
	var inserted bool
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO trapper.raw_records (id, source_system, source_record_id, payload, content_hash, received_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_system, content_hash) DO NOTHING
		RETURNING true
	`, rec.ID, rec.SourceSystem, rec.SourceRecordID, payload, rec.ContentHash, rec.ReceivedAt).Scan(&inserted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Duplicate content: load the existing row so callers see the
			// canonical staged record.
			existing, getErr := s.getByHash(ctx, rec.SourceSystem, rec.ContentHash)
			if getErr != nil {
				return false, getErr
			}
			*rec = *existing
			return false, nil
		}
		return false, fmt.Errorf("insert raw record: %w", err)
	}
	return true, nil
}

const rawColumns = `id, source_system, source_record_id, payload, content_hash, received_at, processed_at`

func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (*ingest.RawRecord, error) {
	rec, err := scanRawRecord(s.db.QueryRowContext(ctx,
		`SELECT `+rawColumns+` FROM trapper.raw_records WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get raw record: %w", err)
	}
	return rec, nil
}

func (s *Postgres) getByHash(ctx context.Context, sourceSystem, contentHash string) (*ingest.RawRecord, error) {
	rec, err := scanRawRecord(s.db.QueryRowContext(ctx,
		`SELECT `+rawColumns+` FROM trapper.raw_records WHERE source_system = $1 AND content_hash = $2`,
		sourceSystem, contentHash))
	if err != nil {
		return nil, fmt.Errorf("get raw record by hash: %w", err)
	}
	return rec, nil
}

func (s *Postgres) ListUnprocessed(ctx context.Context, sourceSystem string, limit int) ([]ingest.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+rawColumns+` FROM trapper.raw_records
		WHERE processed_at IS NULL
		  AND ($1 = '' OR source_system = $1)
		ORDER BY received_at
		LIMIT $2
	`, sourceSystem, limit)
	if err != nil {
		return nil, fmt.Errorf("list unprocessed records: %w", err)
	}
	defer rows.Close()

	var out []ingest.RawRecord
	for rows.Next() {
		rec, err := scanRawRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan raw record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trapper.raw_records SET processed_at = NOW()
		WHERE id = $1 AND processed_at IS NULL
	`, id)
	if err != nil {
		return fmt.Errorf("mark record processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already processed or unknown id; both are fine for a retried batch.
		return nil
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawRecord(row rowScanner) (*ingest.RawRecord, error) {
	var (
		rec     ingest.RawRecord
		payload []byte
	)
	if err := row.Scan(&rec.ID, &rec.SourceSystem, &rec.SourceRecordID, &payload,
		&rec.ContentHash, &rec.ReceivedAt, &rec.ProcessedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &rec, nil
}
