package decision

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trapper/internal/audit"
	"trapper/internal/classify"
	"trapper/internal/decision/metrics"
	"trapper/internal/entity"
	entitystore "trapper/internal/entity/store"
	"trapper/internal/extract"
	"trapper/internal/ingest"
	"trapper/internal/match"
	matchstore "trapper/internal/match/store"
	"trapper/internal/normalize"
	derrors "trapper/pkg/domainerrors"
)

// identifierConfidence is assigned to identifiers attached by the pipeline.
// Review-sourced attachments carry 1.0; automated ones stay below that.
const identifierConfidence = 0.9

// householdConfidence is assigned to memberships inferred from a record's
// address. Manual review verdicts carry 1.0 and are never downgraded.
const householdConfidence = 0.8

// DecisionStore is the persistence surface the service writes decisions to.
type DecisionStore interface {
	CreateDecision(ctx context.Context, d *MatchDecision) error
	GetByRawRecord(ctx context.Context, rawRecordID uuid.UUID) (*MatchDecision, error)
	CreateBatchRun(ctx context.Context, run *BatchRun) error
	FinishBatchRun(ctx context.Context, run *BatchRun) error
}

// SuppressionChecker answers whether a reviewer kept a candidate and an
// entity separate. A nil checker suppresses nothing.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, candidateKey string, entityID uuid.UUID) (bool, error)
}

// CandidateKey identifies a candidate by its durable identifiers. Suppression
// pairs are keyed on this so a re-ingested record with the same contacts
// honors an earlier keep-separate verdict.
func CandidateKey(c extract.Candidate) string {
	return "e:" + c.EmailNorm + "|p:" + c.PhoneNorm
}

// Service runs the resolution pipeline: extract, classify, block, score, and
// persist one decision per raw record.
type Service struct {
	records      ingest.RecordStore
	entities     entitystore.Store
	rulesets     matchstore.Store
	decisions    DecisionStore
	blocker      *match.Blocker
	suppressions SuppressionChecker
	auditor      *audit.Service
	metrics      *metrics.Metrics
	logger       *slog.Logger
	tracer       trace.Tracer
	clock        func() time.Time
	workers      int
}

// NewService wires the pipeline. suppressions and metrics may be nil.
func NewService(
	records ingest.RecordStore,
	entities entitystore.Store,
	rulesets matchstore.Store,
	decisions DecisionStore,
	suppressions SuppressionChecker,
	auditor *audit.Service,
	m *metrics.Metrics,
	logger *slog.Logger,
	workers int,
) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		records:      records,
		entities:     entities,
		rulesets:     rulesets,
		decisions:    decisions,
		blocker:      match.NewBlocker(entities),
		suppressions: suppressions,
		auditor:      auditor,
		metrics:      m,
		logger:       logger,
		tracer:       otel.Tracer("trapper/decision"),
		clock:        time.Now,
		workers:      workers,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// batchCounters accumulates run totals across workers.
type batchCounters struct {
	processed, autoMatched, newEntities, reviewNeeded, rejected, skipped, errs atomic.Int64
}

// ProcessBatch drains up to limit unprocessed records for a source system
// (empty means all sources) through the pipeline. Per-record failures are
// counted and logged, not fatal: one malformed row must not stall the queue.
func (s *Service) ProcessBatch(ctx context.Context, sourceSystem string, limit int) (*BatchRun, error) {
	ctx, span := s.tracer.Start(ctx, "decision.ProcessBatch",
		trace.WithAttributes(attribute.String("source_system", sourceSystem)))
	defer span.End()
	start := s.clock()

	run := &BatchRun{SourceSystem: sourceSystem, StartedAt: start}
	if err := s.decisions.CreateBatchRun(ctx, run); err != nil {
		return nil, err
	}

	recs, err := s.records.ListUnprocessed(ctx, sourceSystem, limit)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("records", len(recs)))

	var counters batchCounters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, rec := range recs {
		rec := rec
		g.Go(func() error {
			s.processRecord(gctx, rec, run.ID, &counters)
			return nil
		})
	}
	_ = g.Wait()

	run.Processed = int(counters.processed.Load())
	run.AutoMatched = int(counters.autoMatched.Load())
	run.NewEntities = int(counters.newEntities.Load())
	run.ReviewNeeded = int(counters.reviewNeeded.Load())
	run.Rejected = int(counters.rejected.Load())
	run.Skipped = int(counters.skipped.Load())
	run.Errors = int(counters.errs.Load())
	if err := s.decisions.FinishBatchRun(ctx, run); err != nil {
		return nil, err
	}

	s.metrics.ObserveBatchDuration(s.clock().Sub(start))
	s.logger.InfoContext(ctx, "batch run finished",
		"run_id", run.ID,
		"source_system", sourceSystem,
		"processed", run.Processed,
		"auto_matched", run.AutoMatched,
		"new_entities", run.NewEntities,
		"review_needed", run.ReviewNeeded,
		"rejected", run.Rejected,
		"skipped", run.Skipped,
		"errors", run.Errors,
	)
	return run, nil
}

func (s *Service) processRecord(ctx context.Context, rec ingest.RawRecord, runID uuid.UUID, counters *batchCounters) {
	d, err := s.ProcessRecord(ctx, rec, runID)
	if err != nil {
		counters.errs.Add(1)
		s.metrics.IncrementError(rec.SourceSystem)
		s.logger.ErrorContext(ctx, "record processing failed",
			"raw_record_id", rec.ID,
			"source_system", rec.SourceSystem,
			"error", err,
		)
		return
	}
	if d == nil {
		counters.skipped.Add(1)
		return
	}
	counters.processed.Add(1)
	switch d.Decision {
	case TypeAutoMatch:
		counters.autoMatched.Add(1)
	case TypeNewEntity:
		counters.newEntities.Add(1)
	case TypeReviewNeeded:
		counters.reviewNeeded.Add(1)
	case TypeRejected:
		counters.rejected.Add(1)
	}
	s.metrics.IncrementOutcome(string(d.Decision), rec.SourceSystem)
}

// ProcessRecord resolves one raw record. Returns nil with no error when the
// record already has a decision, which makes batch reruns idempotent.
func (s *Service) ProcessRecord(ctx context.Context, rec ingest.RawRecord, runID uuid.UUID) (*MatchDecision, error) {
	if _, err := s.decisions.GetByRawRecord(ctx, rec.ID); err == nil {
		if err := s.records.MarkProcessed(ctx, rec.ID); err != nil {
			return nil, err
		}
		return nil, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	cand := extract.Extract(rec)
	cls := classify.Classify(cand)

	rs, err := s.rulesets.Snapshot(ctx, rec.SourceSystem)
	if err != nil {
		return nil, err
	}

	views, err := s.blocker.Block(ctx, cand)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCandidates(len(views))

	suppressed, err := s.suppressedSet(ctx, cand, views)
	if err != nil {
		return nil, err
	}

	outcome := Decide(cand, cls, views, rs, suppressed)

	d := &MatchDecision{
		ID:                  uuid.New(),
		RawRecordID:         rec.ID,
		SourceSystem:        rec.SourceSystem,
		Decision:            outcome.Decision,
		ExtractedName:       cand.DisplayName(),
		ExtractedEmail:      cand.EmailNorm,
		ExtractedPhone:      cand.PhoneNorm,
		Score:               outcome.Score,
		Breakdown:           outcome.Breakdown,
		CandidateIDs:        outcome.CandidateIDs,
		CandidatesEvaluated: len(views),
		Reason:              outcome.Reason,
		BatchRunID:          &runID,
		CreatedAt:           s.clock(),
	}

	switch outcome.Decision {
	case TypeAutoMatch:
		target, err := s.entities.ResolveTerminal(ctx, *outcome.BestEntityID)
		if err != nil {
			return nil, err
		}
		d.EntityID = &target.ID
		if err := s.attachIdentifiers(ctx, target.ID, cand, rec.SourceSystem); err != nil {
			return nil, err
		}
		if err := s.linkHousehold(ctx, target, cand, rec.SourceSystem); err != nil {
			return nil, err
		}
	case TypeNewEntity:
		e, err := s.createEntity(ctx, cand, cls, rec.SourceSystem, false)
		if err != nil {
			return nil, err
		}
		d.EntityID = &e.ID
		if err := s.linkHousehold(ctx, e, cand, rec.SourceSystem); err != nil {
			return nil, err
		}
	case TypeRejected:
		// Pseudo-profiles keep raw-data traceability for names that are
		// organizations, sites, addresses, or noise.
		e, err := s.createEntity(ctx, cand, cls, rec.SourceSystem, true)
		if err != nil {
			return nil, err
		}
		d.EntityID = &e.ID
	case TypeReviewNeeded:
		d.EntityID = outcome.BestEntityID
	}

	// A named cat on a matched or newly created owner gets its own entity so
	// trap and clinic history can hang off the animal, not the caretaker.
	if cand.CatName != "" && d.EntityID != nil &&
		(outcome.Decision == TypeAutoMatch || outcome.Decision == TypeNewEntity) {
		if err := s.createCatEntity(ctx, cand.CatName, *d.EntityID, rec.SourceSystem); err != nil {
			return nil, err
		}
	}

	if err := s.decisions.CreateDecision(ctx, d); err != nil {
		return nil, err
	}
	if err := s.records.MarkProcessed(ctx, rec.ID); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) suppressedSet(ctx context.Context, cand extract.Candidate, views []match.EntityView) (func(uuid.UUID) bool, error) {
	if s.suppressions == nil || len(views) == 0 {
		return nil, nil
	}
	key := CandidateKey(cand)
	blocked := make(map[uuid.UUID]struct{})
	for _, v := range views {
		hit, err := s.suppressions.IsSuppressed(ctx, key, v.Entity.ID)
		if err != nil {
			return nil, err
		}
		if hit {
			blocked[v.Entity.ID] = struct{}{}
		}
	}
	if len(blocked) == 0 {
		return nil, nil
	}
	return func(id uuid.UUID) bool {
		_, ok := blocked[id]
		return ok
	}, nil
}

func (s *Service) createEntity(ctx context.Context, cand extract.Candidate, cls classify.Result, sourceSystem string, pseudo bool) (*entity.Entity, error) {
	e := &entity.Entity{
		ID:           uuid.New(),
		Type:         entityTypeFor(cls, pseudo),
		DisplayName:  cand.DisplayName(),
		FirstName:    cand.FirstName,
		LastName:     cand.LastName,
		IsPseudo:     pseudo,
		Address:      cand.AddressRaw,
		AddressNorm:  normalize.Name(cand.AddressRaw),
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
		Actor:      "pipeline",
		Source:     sourceSystem,
	}); err != nil {
		return nil, err
	}
	if !pseudo {
		if err := s.attachIdentifiers(ctx, e.ID, cand, sourceSystem); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// linkHousehold infers household structure from the record's address: the
// address gets a place entity (deduplicated on its normalized form), the
// person joins it as an inferred member, and a person without a primary place
// adopts it. Manual review memberships are never overwritten.
func (s *Service) linkHousehold(ctx context.Context, person *entity.Entity, cand extract.Candidate, sourceSystem string) error {
	if cand.AddressRaw == "" || person.Type != entity.TypePerson {
		return nil
	}

	place, err := s.findOrCreatePlace(ctx, cand.AddressRaw, sourceSystem)
	if err != nil {
		return err
	}

	role := cand.RoleHint
	if role == "" {
		role = "member"
	}
	if err := s.entities.UpsertHouseholdMember(ctx, entity.HouseholdMember{
		PlaceID:    place.ID,
		PersonID:   person.ID,
		Role:       role,
		Confidence: householdConfidence,
		Source:     entity.HouseholdSourceInferred,
	}); err != nil {
		return err
	}

	if person.PrimaryPlaceID == nil {
		person.PrimaryPlaceID = &place.ID
		if err := s.entities.Update(ctx, person); err != nil {
			return err
		}
	}
	return s.auditor.Emit(ctx, audit.Event{
		EntityType: string(entity.TypePerson),
		EntityID:   person.ID.String(),
		Action:     audit.ActionAddToHousehold,
		NewValue:   "inferred member of place " + place.ID.String(),
		Actor:      "pipeline",
		Source:     sourceSystem,
	})
}

func (s *Service) findOrCreatePlace(ctx context.Context, addressRaw, sourceSystem string) (*entity.Entity, error) {
	norm := normalize.Name(addressRaw)
	place, err := s.entities.FindPlaceByAddress(ctx, norm)
	if err == nil {
		return place, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	place = &entity.Entity{
		ID:           uuid.New(),
		Type:         entity.TypePlace,
		DisplayName:  addressRaw,
		Address:      addressRaw,
		AddressNorm:  norm,
		SourceSystem: sourceSystem,
	}
	if err := s.entities.Create(ctx, place); err != nil {
		return nil, err
	}
	if err := s.auditor.Emit(ctx, audit.Event{
		EntityType: string(entity.TypePlace),
		EntityID:   place.ID.String(),
		Action:     audit.ActionEntityCreated,
		NewValue:   addressRaw,
		Actor:      "pipeline",
		Source:     sourceSystem,
	}); err != nil {
		return nil, err
	}
	return place, nil
}

func (s *Service) createCatEntity(ctx context.Context, catName string, ownerID uuid.UUID, sourceSystem string) error {
	cat := &entity.Entity{
		ID:           uuid.New(),
		Type:         entity.TypeCat,
		DisplayName:  catName,
		SourceSystem: sourceSystem,
	}
	if err := s.entities.Create(ctx, cat); err != nil {
		return err
	}
	return s.auditor.Emit(ctx, audit.Event{
		EntityType: string(entity.TypeCat),
		EntityID:   cat.ID.String(),
		Action:     audit.ActionEntityCreated,
		NewValue:   catName + " (caretaker " + ownerID.String() + ")",
		Actor:      "pipeline",
		Source:     sourceSystem,
	})
}

func entityTypeFor(cls classify.Result, pseudo bool) entity.Type {
	if pseudo && cls.Category == classify.CategoryAddress {
		return entity.TypePlace
	}
	return entity.TypePerson
}

func (s *Service) attachIdentifiers(ctx context.Context, entityID uuid.UUID, cand extract.Candidate, sourceSystem string) error {
	attach := func(idType entity.IdentifierType, raw, norm string) error {
		if norm == "" {
			return nil
		}
		if err := s.entities.AttachIdentifier(ctx, entity.Identifier{
			EntityID:     entityID,
			Type:         idType,
			ValueRaw:     raw,
			ValueNorm:    norm,
			Confidence:   identifierConfidence,
			SourceSystem: sourceSystem,
		}); err != nil {
			return err
		}
		return s.auditor.Emit(ctx, audit.Event{
			EntityType: string(entity.TypePerson),
			EntityID:   entityID.String(),
			Action:     audit.ActionIdentifierAttached,
			NewValue:   string(idType) + ":" + norm,
			Actor:      "pipeline",
			Source:     sourceSystem,
		})
	}
	if err := attach(entity.IdentifierEmail, cand.EmailNorm, cand.EmailNorm); err != nil {
		return err
	}
	return attach(entity.IdentifierPhone, cand.PhoneNorm, cand.PhoneNorm)
}

func isNotFound(err error) bool {
	return derrors.HasCode(err, derrors.CodeNotFound)
}
