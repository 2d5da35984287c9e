package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"trapper/internal/match"
)

// Postgres persists rulesets with the field parameter table as JSONB.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed ruleset store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Snapshot(ctx context.Context, sourceSystem string) (match.Ruleset, error) {
	var (
		rs         match.Ruleset
		fieldsJSON []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT source_system, upper_threshold, lower_threshold, fields, is_active, priority
		FROM trapper.matching_rulesets
		WHERE source_system = $1 AND is_active
		ORDER BY priority DESC
		LIMIT 1
	`, sourceSystem).Scan(&rs.SourceSystem, &rs.UpperThreshold, &rs.LowerThreshold, &fieldsJSON, &rs.IsActive, &rs.Priority)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return match.DefaultRuleset(sourceSystem), nil
		}
		return match.Ruleset{}, fmt.Errorf("load ruleset: %w", err)
	}
	if err := json.Unmarshal(fieldsJSON, &rs.Fields); err != nil {
		return match.Ruleset{}, fmt.Errorf("decode ruleset fields: %w", err)
	}
	return rs, nil
}

func (s *Postgres) Save(ctx context.Context, rs match.Ruleset) error {
	if err := rs.Validate(); err != nil {
		return err
	}
	fieldsJSON, err := json.Marshal(rs.Fields)
	if err != nil {
		return fmt.Errorf("encode ruleset fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trapper.matching_rulesets (source_system, upper_threshold, lower_threshold, fields, is_active, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (source_system) DO UPDATE SET
			upper_threshold = EXCLUDED.upper_threshold,
			lower_threshold = EXCLUDED.lower_threshold,
			fields = EXCLUDED.fields,
			is_active = EXCLUDED.is_active,
			priority = EXCLUDED.priority
	`, rs.SourceSystem, rs.UpperThreshold, rs.LowerThreshold, fieldsJSON, rs.IsActive, rs.Priority)
	if err != nil {
		return fmt.Errorf("save ruleset: %w", err)
	}
	return nil
}
