package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"trapper/internal/audit"
	"trapper/internal/decision"
	decisionstore "trapper/internal/decision/store"
	"trapper/internal/entity"
	entitystore "trapper/internal/entity/store"
	"trapper/internal/extract"
	"trapper/internal/ingest"
	derrors "trapper/pkg/domainerrors"
)

// Action enumerates reviewer verdicts.
type Action string

const (
	ActionMerge          Action = "merge"
	ActionKeepSeparate   Action = "keep_separate"
	ActionAddToHousehold Action = "add_to_household"
	ActionReject         Action = "reject"
)

// Resolution is a reviewer's verdict on one pending decision.
type Resolution struct {
	Action   Action
	Reviewer string

	// EntityID overrides the decision's best candidate as the target. It
	// must be one of the decision's scored candidates.
	EntityID *uuid.UUID

	// Role is the household role for add_to_household verdicts.
	Role string

	// Notes is the reviewer's free-text rationale, stored with the decision.
	Notes string
}

// Service applies reviewer verdicts.
type Service struct {
	decisions    decisionstore.Store
	records      ingest.RecordStore
	entities     entitystore.Store
	suppressions SuppressionStore
	auditor      *audit.Service
	logger       *slog.Logger
	clock        func() time.Time
}

// NewService wires the review workflow.
func NewService(
	decisions decisionstore.Store,
	records ingest.RecordStore,
	entities entitystore.Store,
	suppressions SuppressionStore,
	auditor *audit.Service,
	logger *slog.Logger,
) *Service {
	return &Service{
		decisions:    decisions,
		records:      records,
		entities:     entities,
		suppressions: suppressions,
		auditor:      auditor,
		logger:       logger,
		clock:        time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Resolve applies one verdict to a pending decision. The decision's review
// fields are written exactly once; a second submit fails with a conflict
// naming the reviewer who got there first.
func (s *Service) Resolve(ctx context.Context, decisionID uuid.UUID, res Resolution) (*decision.MatchDecision, error) {
	if res.Reviewer == "" {
		return nil, derrors.New(derrors.CodeValidation, "reviewer is required")
	}

	d, err := s.decisions.GetDecision(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if d.Resolved() {
		return nil, derrors.Newf(derrors.CodeAlreadyResolved,
			"decision already resolved by %s at %s", d.ReviewedBy, d.ReviewedAt.UTC().Format(time.RFC3339))
	}
	if d.Decision != decision.TypeReviewNeeded {
		return nil, derrors.Newf(derrors.CodeValidation,
			"decision is %s; only review_needed decisions take verdicts", d.Decision)
	}

	switch res.Action {
	case ActionMerge, ActionKeepSeparate, ActionAddToHousehold, ActionReject:
	default:
		return nil, derrors.Newf(derrors.CodeValidation, "unknown action %q", res.Action)
	}

	target, err := s.targetEntity(ctx, d, res)
	if err != nil {
		return nil, err
	}
	if res.Action == ActionAddToHousehold {
		if _, err := householdPlace(target); err != nil {
			return nil, err
		}
	}

	rec, err := s.records.Get(ctx, d.RawRecordID)
	if err != nil {
		return nil, err
	}
	cand := extract.Extract(*rec)

	// Claim the decision before applying side effects. The store enforces
	// set-once, so the loser of a concurrent double submit fails here with
	// already_resolved and creates nothing.
	if err := s.decisions.MarkReviewed(ctx, d.ID, res.Reviewer, s.clock(), string(res.Action), res.Notes); err != nil {
		return nil, err
	}

	switch res.Action {
	case ActionMerge:
		err = s.applyMerge(ctx, d, cand, target, res.Reviewer)
	case ActionKeepSeparate:
		err = s.applyKeepSeparate(ctx, d, cand, target, res.Reviewer)
	case ActionAddToHousehold:
		err = s.applyAddToHousehold(ctx, d, cand, target, res)
	case ActionReject:
		err = s.applyReject(ctx, d, res.Reviewer)
	}
	if err != nil {
		return nil, err
	}

	resolved, err := s.decisions.GetDecision(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "decision resolved",
		"decision_id", d.ID,
		"action", res.Action,
		"reviewer", res.Reviewer,
	)
	return resolved, nil
}

// targetEntity picks and validates the verdict's target, resolved to its
// terminal. Reject verdicts need no target.
func (s *Service) targetEntity(ctx context.Context, d *decision.MatchDecision, res Resolution) (*entity.Entity, error) {
	if res.Action == ActionReject {
		return nil, nil
	}

	targetID := d.EntityID
	if res.EntityID != nil {
		found := false
		for _, id := range d.CandidateIDs {
			if id == *res.EntityID {
				found = true
				break
			}
		}
		if !found {
			return nil, derrors.New(derrors.CodeValidation, "entity_id is not one of the decision's candidates")
		}
		targetID = res.EntityID
	}
	if targetID == nil {
		return nil, derrors.New(derrors.CodeValidation, "decision has no candidate entity")
	}
	return s.entities.ResolveTerminal(ctx, *targetID)
}

// applyMerge confirms the pending match: the record's identifiers land on the
// target entity, exactly as an automatic match would have done.
func (s *Service) applyMerge(ctx context.Context, d *decision.MatchDecision, cand extract.Candidate, target *entity.Entity, reviewer string) error {
	if err := s.attachIdentifiers(ctx, target.ID, cand, d.SourceSystem, reviewer); err != nil {
		return err
	}
	return s.auditor.Emit(ctx, audit.Event{
		EntityType: string(target.Type),
		EntityID:   target.ID.String(),
		Action:     audit.ActionMerge,
		NewValue:   fmt.Sprintf("record %s merged into entity", d.RawRecordID),
		Actor:      reviewer,
		Source:     d.SourceSystem,
	})
}

// applyKeepSeparate splits the pair permanently and gives the record its own
// entity. The suppression is written before the entity so a crash between the
// two never re-opens the pair for auto-matching.
func (s *Service) applyKeepSeparate(ctx context.Context, d *decision.MatchDecision, cand extract.Candidate, target *entity.Entity, reviewer string) error {
	if err := s.suppressions.Add(ctx, decision.CandidateKey(cand), target.ID); err != nil {
		return err
	}
	e, err := s.createPersonEntity(ctx, cand, d.SourceSystem, reviewer)
	if err != nil {
		return err
	}
	return s.auditor.Emit(ctx, audit.Event{
		EntityType: string(entity.TypePerson),
		EntityID:   e.ID.String(),
		Action:     audit.ActionKeepSeparate,
		NewValue:   fmt.Sprintf("kept separate from entity %s", target.ID),
		Actor:      reviewer,
		Source:     d.SourceSystem,
	})
}

// householdPlace picks the place a household verdict lands on: the target
// itself when it is a place, otherwise its primary place.
func householdPlace(target *entity.Entity) (*uuid.UUID, error) {
	if target.Type == entity.TypePlace {
		return &target.ID, nil
	}
	if target.PrimaryPlaceID == nil {
		return nil, derrors.New(derrors.CodeValidation, "target entity has no household place")
	}
	return target.PrimaryPlaceID, nil
}

// applyAddToHousehold records that the candidate is a different person at the
// same place: a new entity joined to the target's household.
func (s *Service) applyAddToHousehold(ctx context.Context, d *decision.MatchDecision, cand extract.Candidate, target *entity.Entity, res Resolution) error {
	placeID, err := householdPlace(target)
	if err != nil {
		return err
	}

	e, err := s.createPersonEntity(ctx, cand, d.SourceSystem, res.Reviewer)
	if err != nil {
		return err
	}
	role := res.Role
	if role == "" {
		role = "member"
	}
	if err := s.entities.UpsertHouseholdMember(ctx, entity.HouseholdMember{
		PlaceID:    *placeID,
		PersonID:   e.ID,
		Role:       role,
		Confidence: 1.0,
		Source:     entity.HouseholdSourceManual,
	}); err != nil {
		return err
	}
	return s.auditor.Emit(ctx, audit.Event{
		EntityType: string(entity.TypePerson),
		EntityID:   e.ID.String(),
		Action:     audit.ActionAddToHousehold,
		NewValue:   fmt.Sprintf("joined household at place %s as %s", placeID, role),
		Actor:      res.Reviewer,
		Source:     d.SourceSystem,
	})
}

// applyReject marks the record as noise. No entity is touched; the decision
// row and the audit event are the only traces.
func (s *Service) applyReject(ctx context.Context, d *decision.MatchDecision, reviewer string) error {
	return s.auditor.Emit(ctx, audit.Event{
		EntityType: "raw_record",
		EntityID:   d.RawRecordID.String(),
		Action:     audit.ActionReject,
		Actor:      reviewer,
		Source:     d.SourceSystem,
	})
}

// MergeEntities tombstones loser into winner directly, outside any pending
// decision. This is the dedupe tool for entities that grew independently
// before their duplication was noticed.
func (s *Service) MergeEntities(ctx context.Context, loserID, winnerID uuid.UUID, actor string) (*entity.Entity, error) {
	if actor == "" {
		return nil, derrors.New(derrors.CodeValidation, "actor is required")
	}
	if err := s.entities.Merge(ctx, loserID, winnerID); err != nil {
		return nil, err
	}
	winner, err := s.entities.ResolveTerminal(ctx, winnerID)
	if err != nil {
		return nil, err
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		EntityType: string(winner.Type),
		EntityID:   winner.ID.String(),
		Action:     audit.ActionMerge,
		OldValue:   loserID.String(),
		NewValue:   winner.ID.String(),
		Actor:      actor,
		Source:     winner.SourceSystem,
	}); err != nil {
		return nil, err
	}
	return winner, nil
}

func (s *Service) createPersonEntity(ctx context.Context, cand extract.Candidate, sourceSystem, actor string) (*entity.Entity, error) {
	e := &entity.Entity{
		ID:           uuid.New(),
		Type:         entity.TypePerson,
		DisplayName:  cand.DisplayName(),
		FirstName:    cand.FirstName,
		LastName:     cand.LastName,
		SourceSystem: sourceSystem,
	}
	if err := s.entities.Create(ctx, e); err != nil {
		return nil, err
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		EntityType: string(e.Type),
		EntityID:   e.ID.String(),
		Action:     audit.ActionEntityCreated,
		NewValue:   e.DisplayName,
		Actor:      actor,
		Source:     sourceSystem,
	}); err != nil {
		return nil, err
	}
	if err := s.attachIdentifiers(ctx, e.ID, cand, sourceSystem, actor); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) attachIdentifiers(ctx context.Context, entityID uuid.UUID, cand extract.Candidate, sourceSystem, actor string) error {
	attach := func(idType entity.IdentifierType, norm string) error {
		if norm == "" {
			return nil
		}
		if err := s.entities.AttachIdentifier(ctx, entity.Identifier{
			EntityID:     entityID,
			Type:         idType,
			ValueRaw:     norm,
			ValueNorm:    norm,
			Confidence:   1.0,
			SourceSystem: sourceSystem,
		}); err != nil {
			return err
		}
		return s.auditor.Emit(ctx, audit.Event{
			EntityType: string(entity.TypePerson),
			EntityID:   entityID.String(),
			Action:     audit.ActionIdentifierAttached,
			NewValue:   string(idType) + ":" + norm,
			Actor:      actor,
			Source:     sourceSystem,
		})
	}
	if err := attach(entity.IdentifierEmail, cand.EmailNorm); err != nil {
		return err
	}
	return attach(entity.IdentifierPhone, cand.PhoneNorm)
}
