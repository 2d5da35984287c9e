package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trapper/internal/entity"
	derrors "trapper/pkg/domainerrors"
)

// Postgres persists the entity arena in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed entity store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const entityColumns = `id, type, display_name, first_name, last_name, is_pseudo, address, address_norm, primary_place_id, merged_into_id, source_system, created_at, updated_at`

func (s *Postgres) Create(ctx context.Context, e *entity.Entity) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trapper.entities (`+entityColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Type, e.DisplayName, e.FirstName, e.LastName, e.IsPseudo,
		e.Address, e.AddressNorm, e.PrimaryPlaceID, e.MergedIntoID,
		e.SourceSystem, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create entity: %w", err)
	}
	return nil
}

func (s *Postgres) Update(ctx context.Context, e *entity.Entity) error {
	e.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE trapper.entities
		SET display_name = $2, first_name = $3, last_name = $4, is_pseudo = $5,
		    address = $6, address_norm = $7, primary_place_id = $8, updated_at = $9
		WHERE id = $1
	`, e.ID, e.DisplayName, e.FirstName, e.LastName, e.IsPseudo,
		e.Address, e.AddressNorm, e.PrimaryPlaceID, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update entity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id uuid.UUID) (*entity.Entity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM trapper.entities WHERE id = $1`, id)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return e, nil
}

func (s *Postgres) ResolveTerminal(ctx context.Context, id uuid.UUID) (*entity.Entity, error) {
	return s.resolveTerminal(ctx, s.db, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// resolveTerminal walks the merge chain server-side. Chains are re-pointed to
// one hop on merge; the recursion depth bound guards a corrupted forest.
func (s *Postgres) resolveTerminal(ctx context.Context, q querier, id uuid.UUID) (*entity.Entity, error) {
	row := q.QueryRowContext(ctx, `
		WITH RECURSIVE chain AS (
			SELECT `+entityColumns+`, 0 AS hops
			FROM trapper.entities WHERE id = $1
			UNION ALL
			SELECT e.id, e.type, e.display_name, e.first_name, e.last_name, e.is_pseudo,
			       e.address, e.address_norm, e.primary_place_id, e.merged_into_id,
			       e.source_system, e.created_at, e.updated_at,
			       chain.hops + 1
			FROM trapper.entities e
			JOIN chain ON e.id = chain.merged_into_id
			WHERE chain.hops < $2
		)
		SELECT `+entityColumns+` FROM chain WHERE merged_into_id IS NULL LIMIT 1
	`, id, maxChainHops)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the id is unknown or the chain never terminated.
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, derrors.Newf(derrors.CodeInternal, "merge chain from %s exceeds %d hops", id, maxChainHops)
		}
		return nil, fmt.Errorf("resolve terminal entity: %w", err)
	}
	return e, nil
}

func (s *Postgres) FindByIdentifier(ctx context.Context, idType entity.IdentifierType, valueNorm string) ([]*entity.Entity, error) {
	if valueNorm == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity_id FROM trapper.identifiers
		WHERE id_type = $1 AND value_norm = $2
	`, idType, valueNorm)
	if err != nil {
		return nil, fmt.Errorf("find by identifier: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan identifier owner: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identifier owners: %w", err)
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	var out []*entity.Entity
	for _, id := range ids {
		term, err := s.ResolveTerminal(ctx, id)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[term.ID]; dup {
			continue
		}
		seen[term.ID] = struct{}{}
		out = append(out, term)
	}
	return out, nil
}

func (s *Postgres) FindPlaceByAddress(ctx context.Context, addressNorm string) (*entity.Entity, error) {
	if addressNorm == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+entityColumns+` FROM trapper.entities
		WHERE type = 'place' AND address_norm = $1
		ORDER BY created_at
		LIMIT 1
	`, addressNorm)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find place by address: %w", err)
	}
	if !e.Terminal() {
		return s.ResolveTerminal(ctx, e.ID)
	}
	return e, nil
}

func (s *Postgres) AttachIdentifier(ctx context.Context, ident entity.Identifier) error {
	if ident.ValueNorm == "" {
		return derrors.New(derrors.CodeValidation, "identifier value_norm is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trapper.identifiers (entity_id, id_type, value_raw, value_norm, confidence, source_system)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (entity_id, id_type, value_norm) DO UPDATE SET
			confidence = GREATEST(trapper.identifiers.confidence, EXCLUDED.confidence)
	`, ident.EntityID, ident.Type, ident.ValueRaw, ident.ValueNorm, ident.Confidence, ident.SourceSystem)
	if err != nil {
		return fmt.Errorf("attach identifier: %w", err)
	}
	return nil
}

func (s *Postgres) Identifiers(ctx context.Context, entityID uuid.UUID) ([]entity.Identifier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, id_type, value_raw, value_norm, confidence, source_system
		FROM trapper.identifiers WHERE entity_id = $1
	`, entityID)
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}
	defer rows.Close()

	var out []entity.Identifier
	for rows.Next() {
		var ident entity.Identifier
		if err := rows.Scan(&ident.EntityID, &ident.Type, &ident.ValueRaw, &ident.ValueNorm, &ident.Confidence, &ident.SourceSystem); err != nil {
			return nil, fmt.Errorf("scan identifier: %w", err)
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (s *Postgres) Merge(ctx context.Context, loserID, winnerID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin merge tx: %w", err)
	}
	defer tx.Rollback()

	loser, err := s.resolveTerminal(ctx, tx, loserID)
	if err != nil {
		return err
	}
	winner, err := s.resolveTerminal(ctx, tx, winnerID)
	if err != nil {
		return err
	}
	if loser.ID == winner.ID {
		return derrors.Newf(derrors.CodeMergeCycle, "merging %s into %s would close a cycle", loserID, winnerID)
	}

	// Tombstone the loser and re-point every chain aimed at it, so no entity
	// is ever more than one hop from its terminal.
	if _, err := tx.ExecContext(ctx, `
		UPDATE trapper.entities SET merged_into_id = $1, updated_at = NOW()
		WHERE id = $2 OR merged_into_id = $2
	`, winner.ID, loser.ID); err != nil {
		return fmt.Errorf("tombstone loser: %w", err)
	}

	// Union the loser's identifiers onto the winner, keeping the highest
	// confidence per (type, value_norm).
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trapper.identifiers (entity_id, id_type, value_raw, value_norm, confidence, source_system)
		SELECT $1, id_type, value_raw, value_norm, confidence, source_system
		FROM trapper.identifiers WHERE entity_id = $2
		ON CONFLICT (entity_id, id_type, value_norm) DO UPDATE SET
			confidence = GREATEST(trapper.identifiers.confidence, EXCLUDED.confidence)
	`, winner.ID, loser.ID); err != nil {
		return fmt.Errorf("union identifiers: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *Postgres) UpsertHouseholdMember(ctx context.Context, m entity.HouseholdMember) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	// Manual overrides stick; inferred recomputation never downgrades them.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trapper.household_members (place_id, person_id, role, confidence, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (place_id, person_id) DO UPDATE SET
			role = EXCLUDED.role,
			confidence = EXCLUDED.confidence,
			source = EXCLUDED.source
		WHERE trapper.household_members.source != 'manual' OR EXCLUDED.source = 'manual'
	`, m.PlaceID, m.PersonID, m.Role, m.Confidence, m.Source, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert household member: %w", err)
	}
	return nil
}

func (s *Postgres) HouseholdMembers(ctx context.Context, placeID uuid.UUID) ([]entity.HouseholdMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT place_id, person_id, role, confidence, source, created_at
		FROM trapper.household_members WHERE place_id = $1
	`, placeID)
	if err != nil {
		return nil, fmt.Errorf("list household members: %w", err)
	}
	defer rows.Close()

	var out []entity.HouseholdMember
	for rows.Next() {
		var m entity.HouseholdMember
		if err := rows.Scan(&m.PlaceID, &m.PersonID, &m.Role, &m.Confidence, &m.Source, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan household member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*entity.Entity, error) {
	var e entity.Entity
	err := row.Scan(&e.ID, &e.Type, &e.DisplayName, &e.FirstName, &e.LastName, &e.IsPseudo,
		&e.Address, &e.AddressNorm, &e.PrimaryPlaceID, &e.MergedIntoID,
		&e.SourceSystem, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
