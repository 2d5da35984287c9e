package match

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapper/internal/entity"
	entitystore "trapper/internal/entity/store"
	"trapper/internal/extract"
)

func seedPerson(t *testing.T, s *entitystore.InMemory, name, email, phone string) *entity.Entity {
	t.Helper()
	ctx := context.Background()
	e := &entity.Entity{Type: entity.TypePerson, DisplayName: name}
	require.NoError(t, s.Create(ctx, e))
	if email != "" {
		require.NoError(t, s.AttachIdentifier(ctx, entity.Identifier{
			EntityID: e.ID, Type: entity.IdentifierEmail, ValueNorm: email, Confidence: 1,
		}))
	}
	if phone != "" {
		require.NoError(t, s.AttachIdentifier(ctx, entity.Identifier{
			EntityID: e.ID, Type: entity.IdentifierPhone, ValueNorm: phone, Confidence: 1,
		}))
	}
	return e
}

func TestBlockUnionsEmailAndPhone(t *testing.T) {
	s := entitystore.NewInMemory()
	ctx := context.Background()
	byEmail := seedPerson(t, s, "Jane Doe", "j.doe@example.com", "")
	byPhone := seedPerson(t, s, "J. Doe", "", "7075550142")
	seedPerson(t, s, "Unrelated", "other@example.com", "7075559999")

	views, err := NewBlocker(s).Block(ctx, extract.Candidate{
		OwnerName: "Jane Doe",
		EmailNorm: "j.doe@example.com",
		PhoneNorm: "7075550142",
	})
	require.NoError(t, err)
	require.Len(t, views, 2)

	got := map[string]bool{}
	for _, v := range views {
		got[v.Entity.DisplayName] = true
	}
	assert.True(t, got[byEmail.DisplayName])
	assert.True(t, got[byPhone.DisplayName])
}

func TestBlockDeduplicatesSharedSignals(t *testing.T) {
	s := entitystore.NewInMemory()
	seedPerson(t, s, "Jane Doe", "j.doe@example.com", "7075550142")

	views, err := NewBlocker(s).Block(context.Background(), extract.Candidate{
		EmailNorm: "j.doe@example.com",
		PhoneNorm: "7075550142",
	})
	require.NoError(t, err)
	assert.Len(t, views, 1, "entity hit via both indexes appears once")
}

func TestBlockNoSignalReturnsEmpty(t *testing.T) {
	s := entitystore.NewInMemory()
	seedPerson(t, s, "Jane Doe", "j.doe@example.com", "")

	views, err := NewBlocker(s).Block(context.Background(), extract.Candidate{OwnerName: "Jane Doe"})
	require.NoError(t, err)
	assert.Empty(t, views, "no discriminating signal means the scorer is never invoked")
}

func TestBlockViewCarriesAddress(t *testing.T) {
	s := entitystore.NewInMemory()
	ctx := context.Background()

	own := seedPerson(t, s, "Jane Doe", "j.doe@example.com", "")
	own.Address = "123 Maple St"
	require.NoError(t, s.Update(ctx, own))

	views, err := NewBlocker(s).Block(ctx, extract.Candidate{EmailNorm: "j.doe@example.com"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "123 Maple St", views[0].Address)
}

func TestBlockViewFallsBackToPrimaryPlaceAddress(t *testing.T) {
	s := entitystore.NewInMemory()
	ctx := context.Background()

	place := &entity.Entity{Type: entity.TypePlace, DisplayName: "99 Sebastopol Rd", Address: "99 Sebastopol Rd", AddressNorm: "99 sebastopol rd"}
	require.NoError(t, s.Create(ctx, place))

	person := seedPerson(t, s, "Jane Doe", "", "7075550142")
	person.PrimaryPlaceID = &place.ID
	require.NoError(t, s.Update(ctx, person))

	views, err := NewBlocker(s).Block(ctx, extract.Candidate{PhoneNorm: "7075550142"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "99 Sebastopol Rd", views[0].Address)
}

func TestBlockResolvesTombstones(t *testing.T) {
	s := entitystore.NewInMemory()
	ctx := context.Background()
	loser := seedPerson(t, s, "Jane Doe", "j.doe@example.com", "")
	winner := seedPerson(t, s, "Jane A. Doe", "", "7075550142")
	require.NoError(t, s.Merge(ctx, loser.ID, winner.ID))

	views, err := NewBlocker(s).Block(ctx, extract.Candidate{EmailNorm: "j.doe@example.com"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, winner.ID, views[0].Entity.ID)
	// Merged identifiers ride along on the view.
	assert.Contains(t, views[0].Emails, "j.doe@example.com")
	assert.Contains(t, views[0].Phones, "7075550142")
}
