package match

import (
	"context"

	"github.com/google/uuid"

	"trapper/internal/entity"
	entitystore "trapper/internal/entity/store"
	"trapper/internal/extract"
)

// Blocker narrows the comparison set with indexed lookups on normalized
// email and phone, avoiding a full scan of the entity arena. It never
// returns tombstones: the store resolves index hits to terminals.
type Blocker struct {
	entities entitystore.Store
}

// NewBlocker constructs a blocker over the entity store.
func NewBlocker(entities entitystore.Store) *Blocker {
	return &Blocker{entities: entities}
}

// Block returns the existing entities worth scoring against the candidate.
// With neither email nor phone present it returns nothing: the scorer is
// never invoked without at least one discriminating signal.
func (b *Blocker) Block(ctx context.Context, c extract.Candidate) ([]EntityView, error) {
	if !c.HasContactSignal() {
		return nil, nil
	}

	seen := make(map[uuid.UUID]struct{})
	var blocked []*entity.Entity

	lookups := []struct {
		idType entity.IdentifierType
		value  string
	}{
		{entity.IdentifierEmail, c.EmailNorm},
		{entity.IdentifierPhone, c.PhoneNorm},
	}
	for _, l := range lookups {
		if l.value == "" {
			continue
		}
		found, err := b.entities.FindByIdentifier(ctx, l.idType, l.value)
		if err != nil {
			return nil, err
		}
		for _, e := range found {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			blocked = append(blocked, e)
		}
	}

	views := make([]EntityView, 0, len(blocked))
	for _, e := range blocked {
		view, err := b.buildView(ctx, e)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func (b *Blocker) buildView(ctx context.Context, e *entity.Entity) (EntityView, error) {
	idents, err := b.entities.Identifiers(ctx, e.ID)
	if err != nil {
		return EntityView{}, err
	}
	view := EntityView{Entity: e, Address: e.Address}
	for _, ident := range idents {
		switch ident.Type {
		case entity.IdentifierEmail:
			view.Emails = append(view.Emails, ident.ValueNorm)
		case entity.IdentifierPhone:
			view.Phones = append(view.Phones, ident.ValueNorm)
		}
	}
	if view.Address == "" && e.PrimaryPlaceID != nil {
		place, err := b.entities.ResolveTerminal(ctx, *e.PrimaryPlaceID)
		if err != nil {
			return EntityView{}, err
		}
		view.Address = place.Address
		if view.Address == "" {
			view.Address = place.DisplayName
		}
	}
	return view, nil
}
