// Package entity defines the canonical entities the resolution engine
// deduplicates into: people, cats, and places.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates canonical entity kinds.
type Type string

const (
	TypePerson Type = "person"
	TypeCat    Type = "cat"
	TypePlace  Type = "place"
)

// Entity is the source-of-truth record for one real-world person, cat, or
// place. A non-nil MergedIntoID marks a tombstone: every read path must
// resolve through to the terminal entity before using it.
type Entity struct {
	ID          uuid.UUID
	Type        Type
	DisplayName string
	FirstName   string
	LastName    string

	// IsPseudo marks a non-person account (organization, site, bare address)
	// kept for raw-data traceability without polluting the people set.
	IsPseudo bool

	// Address is the street address text the entity carries: a place's own
	// address, or the address a person reported on intake. AddressNorm is the
	// lookup key places are deduplicated on.
	Address     string
	AddressNorm string

	// PrimaryPlaceID links a person to the place their household hangs off.
	PrimaryPlaceID *uuid.UUID

	MergedIntoID *uuid.UUID
	SourceSystem string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the entity is canonical (not a tombstone).
func (e *Entity) Terminal() bool { return e.MergedIntoID == nil }

// IdentifierType enumerates durable identifier kinds used for blocking.
type IdentifierType string

const (
	IdentifierEmail IdentifierType = "email"
	IdentifierPhone IdentifierType = "phone"
)

// Identifier is one durable contact value attached to an entity. Uniqueness
// is on (entity_id, type, value_norm); re-attaching keeps the highest
// confidence seen.
type Identifier struct {
	EntityID     uuid.UUID
	Type         IdentifierType
	ValueRaw     string
	ValueNorm    string
	Confidence   float64
	SourceSystem string
}

// HouseholdMember links a person to a place with a role. Memberships are
// recomputed by the engine; manual review overrides are flagged by Source.
type HouseholdMember struct {
	PlaceID    uuid.UUID
	PersonID   uuid.UUID
	Role       string
	Confidence float64
	Source     string
	CreatedAt  time.Time
}

const (
	HouseholdSourceInferred = "inferred"
	HouseholdSourceManual   = "manual"
)
