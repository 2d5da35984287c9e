package decision_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapper/internal/audit"
	"trapper/internal/decision"
	decisionstore "trapper/internal/decision/store"
	"trapper/internal/entity"
	entitystore "trapper/internal/entity/store"
	"trapper/internal/extract"
	"trapper/internal/ingest"
	ingeststore "trapper/internal/ingest/store"
	matchstore "trapper/internal/match/store"
)

type pipeline struct {
	svc       *decision.Service
	records   *ingeststore.InMemory
	entities  *entitystore.InMemory
	decisions *decisionstore.InMemory
	audits    *audit.InMemory
	ingestor  *ingest.Service
}

type staticSuppression map[string]uuid.UUID

func (s staticSuppression) IsSuppressed(_ context.Context, key string, entityID uuid.UUID) (bool, error) {
	id, ok := s[key]
	return ok && id == entityID, nil
}

func newPipeline(t *testing.T, suppressions decision.SuppressionChecker) *pipeline {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := ingeststore.NewInMemory()
	entities := entitystore.NewInMemory()
	decisions := decisionstore.NewInMemory()
	audits := audit.NewInMemory()
	auditor := audit.NewService(audits, nil, logger)

	svc := decision.NewService(records, entities, matchstore.NewInMemory(), decisions,
		suppressions, auditor, nil, logger, 2)
	return &pipeline{
		svc:       svc,
		records:   records,
		entities:  entities,
		decisions: decisions,
		audits:    audits,
		ingestor:  ingest.NewService(records, logger),
	}
}

func (p *pipeline) stage(t *testing.T, source string, payload map[string]string) *ingest.RawRecord {
	t.Helper()
	rec, _, err := p.ingestor.Ingest(context.Background(), source, "", payload)
	require.NoError(t, err)
	return rec
}

func TestProcessBatchCreatesNewEntity(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()
	p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:  "Jane Doe",
		ingest.FieldEmail: "jane@example.com",
	})

	run, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.NewEntities)
	assert.Zero(t, run.Errors)

	found, err := p.entities.FindByIdentifier(ctx, entity.IdentifierEmail, "jane@example.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Jane Doe", found[0].DisplayName)
	assert.False(t, found[0].IsPseudo)

	trail, err := p.audits.ListByEntity(ctx, string(entity.TypePerson), found[0].ID.String())
	require.NoError(t, err)
	require.NotEmpty(t, trail)
	assert.Equal(t, audit.ActionEntityCreated, trail[0].Action)
}

func TestProcessBatchAutoMatchesOnSharedEmail(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:  "Jane Doe",
		ingest.FieldEmail: "Jane@Example.com",
	})
	first, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)
	require.Equal(t, 1, first.NewEntities)

	// Same person from another source: matching email plus a near-identical
	// name clears the upper threshold.
	p.stage(t, "airtable", map[string]string{
		ingest.FieldName:  "Jane  Doe",
		ingest.FieldEmail: "jane@example.com",
		ingest.FieldPhone: "(707) 555-0142",
	})
	second, err := p.svc.ProcessBatch(ctx, "airtable", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, second.AutoMatched)
	assert.Zero(t, second.NewEntities)

	// The match also attached the new phone to the existing entity.
	found, err := p.entities.FindByIdentifier(ctx, entity.IdentifierPhone, "7075550142")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Jane Doe", found[0].DisplayName)
}

func TestProcessBatchSendsAmbiguousMatchToReview(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:  "Robert Smith",
		ingest.FieldPhone: "707-555-0142",
	})
	_, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)

	// Shared household phone, different name: review band.
	p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:  "Maria Garcia",
		ingest.FieldPhone: "7075550142",
	})
	run, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, run.ReviewNeeded)

	pending, err := p.decisions.ListDecisions(ctx, []decision.Type{decision.TypeReviewNeeded}, 10, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.NotNil(t, pending[0].EntityID)
	assert.NotEmpty(t, pending[0].Breakdown)

	// The review queue shows the snapshot the engine compared, not a re-parse.
	assert.Equal(t, "Maria Garcia", pending[0].ExtractedName)
	assert.Equal(t, "7075550142", pending[0].ExtractedPhone)
	assert.Equal(t, 1, pending[0].CandidatesEvaluated)
}

func TestProcessBatchRejectsOrganizations(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:  "Sonoma Humane Society",
		ingest.FieldPhone: "707-555-0100",
	})
	run, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Rejected)

	rejected, err := p.decisions.ListDecisions(ctx, []decision.Type{decision.TypeRejected}, 10, 0)
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	require.NotNil(t, rejected[0].EntityID)

	pseudo, err := p.entities.Get(ctx, *rejected[0].EntityID)
	require.NoError(t, err)
	assert.True(t, pseudo.IsPseudo)

	// Pseudo-profiles never enter the blocking index.
	found, err := p.entities.FindByIdentifier(ctx, entity.IdentifierPhone, "7075550100")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestProcessBatchRerunIsIdempotent(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	rec := p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:  "Jane Doe",
		ingest.FieldEmail: "jane@example.com",
	})
	_, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)

	// Force the record back onto the queue to simulate a crashed run that
	// wrote the decision but not the processed stamp.
	fresh := *rec
	fresh.ID = rec.ID
	rerun, err := p.svc.ProcessRecord(ctx, fresh, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, rerun, "existing decision short-circuits reprocessing")

	found, err := p.entities.FindByIdentifier(ctx, entity.IdentifierEmail, "jane@example.com")
	require.NoError(t, err)
	assert.Len(t, found, 1, "no duplicate entity on rerun")
}

func TestProcessBatchInfersHouseholdFromAddress(t *testing.T) {
	p := newPipeline(t, nil)
	ctx := context.Background()

	p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:    "Jane Doe",
		ingest.FieldEmail:   "jane@example.com",
		ingest.FieldAddress: "123 Maple St",
	})
	_, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)

	found, err := p.entities.FindByIdentifier(ctx, entity.IdentifierEmail, "jane@example.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
	jane := found[0]
	require.NotNil(t, jane.PrimaryPlaceID, "person adopts the inferred place")

	place, err := p.entities.Get(ctx, *jane.PrimaryPlaceID)
	require.NoError(t, err)
	assert.Equal(t, entity.TypePlace, place.Type)
	assert.Equal(t, "123 Maple St", place.Address)

	members, err := p.entities.HouseholdMembers(ctx, place.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, jane.ID, members[0].PersonID)
	assert.Equal(t, entity.HouseholdSourceInferred, members[0].Source)

	// A second person at the same address joins the same place; the address
	// is deduplicated on its normalized form, not recreated.
	p.stage(t, "airtable", map[string]string{
		ingest.FieldName:    "Bob Roe",
		ingest.FieldEmail:   "bob@example.com",
		ingest.FieldAddress: "123  maple st",
	})
	_, err = p.svc.ProcessBatch(ctx, "airtable", 100)
	require.NoError(t, err)

	found, err = p.entities.FindByIdentifier(ctx, entity.IdentifierEmail, "bob@example.com")
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.NotNil(t, found[0].PrimaryPlaceID)
	assert.Equal(t, place.ID, *found[0].PrimaryPlaceID)

	members, err = p.entities.HouseholdMembers(ctx, place.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

type captureAudit struct {
	*audit.InMemory
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureAudit) Append(ctx context.Context, e audit.Event) error {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
	return c.InMemory.Append(ctx, e)
}

func TestProcessBatchCreatesCatEntityForNamedCat(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	records := ingeststore.NewInMemory()
	entities := entitystore.NewInMemory()
	capture := &captureAudit{InMemory: audit.NewInMemory()}
	auditor := audit.NewService(capture, nil, logger)
	svc := decision.NewService(records, entities, matchstore.NewInMemory(),
		decisionstore.NewInMemory(), nil, auditor, nil, logger, 1)
	ingestor := ingest.NewService(records, logger)

	ctx := context.Background()
	_, _, err := ingestor.Ingest(ctx, "clinichq", "", map[string]string{
		ingest.FieldName:  "Jane Doe 'Whiskers'",
		ingest.FieldEmail: "jane@example.com",
	})
	require.NoError(t, err)

	run, err := svc.ProcessBatch(ctx, "clinichq", 100)
	require.NoError(t, err)
	require.Equal(t, 1, run.NewEntities)

	var catID string
	for _, e := range capture.events {
		if e.EntityType == string(entity.TypeCat) && e.Action == audit.ActionEntityCreated {
			catID = e.EntityID
		}
	}
	require.NotEmpty(t, catID, "named cat gets its own entity")

	cat, err := entities.Get(ctx, uuid.MustParse(catID))
	require.NoError(t, err)
	assert.Equal(t, entity.TypeCat, cat.Type)
	assert.Equal(t, "Whiskers", cat.DisplayName)
}

func TestProcessBatchHonorsKeepSeparate(t *testing.T) {
	ctx := context.Background()
	suppressions := staticSuppression{}
	p := newPipeline(t, suppressions)

	p.stage(t, "petpoint", map[string]string{
		ingest.FieldName:  "Jane Doe",
		ingest.FieldEmail: "jane@example.com",
	})
	_, err := p.svc.ProcessBatch(ctx, "petpoint", 100)
	require.NoError(t, err)

	existing, err := p.entities.FindByIdentifier(ctx, entity.IdentifierEmail, "jane@example.com")
	require.NoError(t, err)
	require.Len(t, existing, 1)

	cand := extract.Candidate{EmailNorm: "jane@example.com"}
	suppressions[decision.CandidateKey(cand)] = existing[0].ID

	// Same email, but the pair was kept separate: a second entity appears
	// instead of an automatic merge.
	p.stage(t, "airtable", map[string]string{
		ingest.FieldName:  "Jane Doe",
		ingest.FieldEmail: "jane@example.com",
	})
	run, err := p.svc.ProcessBatch(ctx, "airtable", 100)
	require.NoError(t, err)
	assert.Equal(t, 1, run.NewEntities)
	assert.Zero(t, run.AutoMatched)
}
