// Package store persists canonical entities, their identifiers, and
// household memberships. Two implementations exist: InMemory for tests and
// local runs, Postgres for production.
package store

import (
	"context"

	"github.com/google/uuid"

	"trapper/internal/entity"
	derrors "trapper/pkg/domainerrors"
)

// ErrNotFound is returned when an entity id does not exist.
var ErrNotFound = derrors.New(derrors.CodeNotFound, "entity not found")

// maxChainHops bounds terminal resolution. Merges re-point chains to one hop,
// so needing more than a handful means the forest invariant was violated.
const maxChainHops = 16

// Store is the entity arena consumed by the blocker, decision engine, and
// review workflow.
type Store interface {
	Create(ctx context.Context, e *entity.Entity) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Entity, error)

	// Update rewrites the mutable fields of an existing entity (display
	// name, name parts, primary place). Merge bookkeeping has its own path.
	Update(ctx context.Context, e *entity.Entity) error

	// ResolveTerminal follows the merge chain from id to its canonical
	// entity. Every read path goes through this helper; nothing dereferences
	// a tombstone directly.
	ResolveTerminal(ctx context.Context, id uuid.UUID) (*entity.Entity, error)

	// FindByIdentifier returns terminal entities holding the identifier.
	// Tombstones encountered via the index are resolved before returning.
	FindByIdentifier(ctx context.Context, idType entity.IdentifierType, valueNorm string) ([]*entity.Entity, error)

	// FindPlaceByAddress returns the terminal place entity keyed by the
	// normalized address, or ErrNotFound. Household inference deduplicates
	// places on this lookup.
	FindPlaceByAddress(ctx context.Context, addressNorm string) (*entity.Entity, error)

	// AttachIdentifier upserts on (entity_id, type, value_norm), keeping the
	// highest confidence on conflict. Safe to call twice with the same value.
	AttachIdentifier(ctx context.Context, ident entity.Identifier) error
	Identifiers(ctx context.Context, entityID uuid.UUID) ([]entity.Identifier, error)

	// Merge tombstones the loser into the winner: terminals are resolved
	// first, existing chains pointing at the loser are re-pointed to the
	// winner (chains never exceed one hop), and identifiers are unioned.
	// Fails with a merge_cycle error if both ids resolve to the same
	// terminal.
	Merge(ctx context.Context, loserID, winnerID uuid.UUID) error

	UpsertHouseholdMember(ctx context.Context, m entity.HouseholdMember) error
	HouseholdMembers(ctx context.Context, placeID uuid.UUID) ([]entity.HouseholdMember, error)
}
