package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapper/internal/entity"
	derrors "trapper/pkg/domainerrors"
)

func newPerson(t *testing.T, s *InMemory, name string) *entity.Entity {
	t.Helper()
	e := &entity.Entity{Type: entity.TypePerson, DisplayName: name}
	require.NoError(t, s.Create(context.Background(), e))
	return e
}

func TestResolveTerminalUnknownID(t *testing.T) {
	s := NewInMemory()
	_, err := s.ResolveTerminal(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMergeTombstonesAndRepoints(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newPerson(t, s, "A")
	b := newPerson(t, s, "B")
	c := newPerson(t, s, "C")

	// Merge A into B, then B into C. A's chain must be re-pointed so every
	// tombstone is exactly one hop from its terminal.
	require.NoError(t, s.Merge(ctx, a.ID, b.ID))
	require.NoError(t, s.Merge(ctx, b.ID, c.ID))

	for _, id := range []uuid.UUID{a.ID, b.ID} {
		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got.MergedIntoID)
		assert.Equal(t, c.ID, *got.MergedIntoID, "chain must collapse to one hop")

		term, err := s.ResolveTerminal(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, c.ID, term.ID)
	}

	term, err := s.ResolveTerminal(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, term.Terminal())
}

func TestMergeRejectsCycle(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newPerson(t, s, "A")
	b := newPerson(t, s, "B")

	require.NoError(t, s.Merge(ctx, a.ID, b.ID))

	// B's terminal is B, A's terminal is also B now: merging B into A would
	// close a cycle and must leave state untouched.
	err := s.Merge(ctx, b.ID, a.ID)
	require.Error(t, err)
	assert.Equal(t, derrors.CodeMergeCycle, derrors.CodeOf(err))

	got, err := s.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.Terminal(), "failed merge must not mutate the winner")
}

func TestMergeSelfRejected(t *testing.T) {
	s := NewInMemory()
	a := newPerson(t, s, "A")
	err := s.Merge(context.Background(), a.ID, a.ID)
	assert.Equal(t, derrors.CodeMergeCycle, derrors.CodeOf(err))
}

func TestMergeUnionsIdentifiers(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newPerson(t, s, "A")
	b := newPerson(t, s, "B")

	require.NoError(t, s.AttachIdentifier(ctx, entity.Identifier{
		EntityID: a.ID, Type: entity.IdentifierEmail, ValueNorm: "j.doe@example.com", Confidence: 0.9,
	}))
	require.NoError(t, s.AttachIdentifier(ctx, entity.Identifier{
		EntityID: b.ID, Type: entity.IdentifierEmail, ValueNorm: "j.doe@example.com", Confidence: 0.6,
	}))
	require.NoError(t, s.AttachIdentifier(ctx, entity.Identifier{
		EntityID: a.ID, Type: entity.IdentifierPhone, ValueNorm: "7075550142", Confidence: 1.0,
	}))

	require.NoError(t, s.Merge(ctx, a.ID, b.ID))

	idents, err := s.Identifiers(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, idents, 2, "identifiers dedup on (type, value_norm)")

	for _, ident := range idents {
		if ident.Type == entity.IdentifierEmail {
			assert.Equal(t, 0.9, ident.Confidence, "highest confidence wins on conflict")
		}
	}
}

func TestAttachIdentifierIdempotent(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newPerson(t, s, "A")

	ident := entity.Identifier{EntityID: a.ID, Type: entity.IdentifierEmail, ValueNorm: "j.doe@example.com", Confidence: 0.8}
	require.NoError(t, s.AttachIdentifier(ctx, ident))
	require.NoError(t, s.AttachIdentifier(ctx, ident))

	idents, err := s.Identifiers(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, idents, 1)
}

func TestFindByIdentifierReturnsTerminalsOnly(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a := newPerson(t, s, "A")
	b := newPerson(t, s, "B")

	require.NoError(t, s.AttachIdentifier(ctx, entity.Identifier{
		EntityID: a.ID, Type: entity.IdentifierPhone, ValueNorm: "7075550142", Confidence: 1.0,
	}))
	require.NoError(t, s.Merge(ctx, a.ID, b.ID))

	found, err := s.FindByIdentifier(ctx, entity.IdentifierPhone, "7075550142")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, b.ID, found[0].ID, "index hits on tombstones resolve to the terminal")
}

func TestFindByIdentifierEmptyValue(t *testing.T) {
	s := NewInMemory()
	found, err := s.FindByIdentifier(context.Background(), entity.IdentifierEmail, "")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestHouseholdManualOverrideSticks(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	place := &entity.Entity{Type: entity.TypePlace, DisplayName: "123 Sebastopol Rd"}
	require.NoError(t, s.Create(ctx, place))
	person := newPerson(t, s, "Maria")

	require.NoError(t, s.UpsertHouseholdMember(ctx, entity.HouseholdMember{
		PlaceID: place.ID, PersonID: person.ID, Role: "resident", Confidence: 0.9, Source: entity.HouseholdSourceManual,
	}))
	require.NoError(t, s.UpsertHouseholdMember(ctx, entity.HouseholdMember{
		PlaceID: place.ID, PersonID: person.ID, Role: "feeder", Confidence: 0.5, Source: entity.HouseholdSourceInferred,
	}))

	members, err := s.HouseholdMembers(ctx, place.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "resident", members[0].Role, "inferred recompute must not clobber manual membership")
}
