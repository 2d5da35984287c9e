package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"trapper/internal/decision"
)

// Postgres persists decisions and batch runs in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed decision store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const decisionColumns = `id, raw_record_id, source_system, decision,
	extracted_name, extracted_email, extracted_phone, entity_id, score,
	breakdown, candidate_ids, candidates_evaluated, reason, batch_run_id, created_at,
	reviewed_by, reviewed_at, resolution, review_notes`

func (s *Postgres) CreateDecision(ctx context.Context, d *decision.MatchDecision) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	breakdown, err := json.Marshal(d.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	candidateIDs := make([]string, len(d.CandidateIDs))
	for i, id := range d.CandidateIDs {
		candidateIDs[i] = id.String()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trapper.match_decisions
			(id, raw_record_id, source_system, decision,
			 extracted_name, extracted_email, extracted_phone, entity_id, score,
			 breakdown, candidate_ids, candidates_evaluated, reason, batch_run_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (raw_record_id) DO NOTHING
	`, d.ID, d.RawRecordID, d.SourceSystem, d.Decision,
		d.ExtractedName, d.ExtractedEmail, d.ExtractedPhone, d.EntityID, d.Score,
		breakdown, pq.Array(candidateIDs), d.CandidatesEvaluated, d.Reason, d.BatchRunID, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

func (s *Postgres) GetDecision(ctx context.Context, id uuid.UUID) (*decision.MatchDecision, error) {
	d, err := scanDecision(s.db.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM trapper.match_decisions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return d, nil
}

func (s *Postgres) GetByRawRecord(ctx context.Context, rawRecordID uuid.UUID) (*decision.MatchDecision, error) {
	d, err := scanDecision(s.db.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM trapper.match_decisions WHERE raw_record_id = $1`, rawRecordID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get decision by raw record: %w", err)
	}
	return d, nil
}

func (s *Postgres) ListDecisions(ctx context.Context, types []decision.Type, limit, offset int) ([]decision.MatchDecision, error) {
	typeFilter := make([]string, len(types))
	for i, t := range types {
		typeFilter[i] = string(t)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+decisionColumns+` FROM trapper.match_decisions
		WHERE cardinality($1::text[]) = 0 OR decision = ANY($1::text[])
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, pq.Array(typeFilter), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []decision.MatchDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Postgres) MarkReviewed(ctx context.Context, id uuid.UUID, reviewedBy string, reviewedAt time.Time, resolution, notes string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trapper.match_decisions
		SET reviewed_by = $2, reviewed_at = $3, resolution = $4, review_notes = $5
		WHERE id = $1 AND reviewed_at IS NULL
	`, id, reviewedBy, reviewedAt, resolution, notes)
	if err != nil {
		return fmt.Errorf("mark decision reviewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark decision reviewed: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Zero rows means either an unknown id or an earlier resolution; tell the
	// caller which, including who got there first.
	existing, err := s.GetDecision(ctx, id)
	if err != nil {
		return err
	}
	return alreadyResolved(existing.ReviewedBy, *existing.ReviewedAt)
}

func (s *Postgres) CreateBatchRun(ctx context.Context, run *decision.BatchRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trapper.batch_runs (id, source_system, started_at)
		VALUES ($1, $2, $3)
	`, run.ID, run.SourceSystem, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert batch run: %w", err)
	}
	return nil
}

func (s *Postgres) FinishBatchRun(ctx context.Context, run *decision.BatchRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE trapper.batch_runs
		SET finished_at = $2, processed = $3, auto_matched = $4, new_entities = $5,
		    review_needed = $6, rejected = $7, skipped = $8, errors = $9
		WHERE id = $1
	`, run.ID, run.FinishedAt, run.Processed, run.AutoMatched, run.NewEntities,
		run.ReviewNeeded, run.Rejected, run.Skipped, run.Errors)
	if err != nil {
		return fmt.Errorf("finish batch run: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDecision(row rowScanner) (*decision.MatchDecision, error) {
	var (
		d            decision.MatchDecision
		breakdown    []byte
		candidateIDs pq.StringArray
		reviewedBy   sql.NullString
		resolution   sql.NullString
		reviewNotes  sql.NullString
	)
	if err := row.Scan(&d.ID, &d.RawRecordID, &d.SourceSystem, &d.Decision,
		&d.ExtractedName, &d.ExtractedEmail, &d.ExtractedPhone, &d.EntityID,
		&d.Score, &breakdown, &candidateIDs, &d.CandidatesEvaluated, &d.Reason, &d.BatchRunID, &d.CreatedAt,
		&reviewedBy, &d.ReviewedAt, &resolution, &reviewNotes); err != nil {
		return nil, err
	}
	d.ReviewedBy = reviewedBy.String
	d.Resolution = resolution.String
	d.ReviewNotes = reviewNotes.String
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &d.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	for _, raw := range candidateIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse candidate id: %w", err)
		}
		d.CandidateIDs = append(d.CandidateIDs, id)
	}
	return &d, nil
}
