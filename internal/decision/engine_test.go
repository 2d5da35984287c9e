package decision_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapper/internal/classify"
	"trapper/internal/decision"
	"trapper/internal/entity"
	"trapper/internal/extract"
	"trapper/internal/match"
)

func personCandidate() extract.Candidate {
	return extract.Candidate{
		OwnerName: "Jane Doe",
		EmailNorm: "jane@example.com",
		PhoneNorm: "7075550142",
	}
}

func personResult() classify.Result {
	return classify.Result{Category: classify.CategoryPerson, ShouldCreatePerson: true}
}

func view(name string, createdAt time.Time, emails, phones []string) match.EntityView {
	return match.EntityView{
		Entity: &entity.Entity{
			ID:          uuid.New(),
			Type:        entity.TypePerson,
			DisplayName: name,
			CreatedAt:   createdAt,
		},
		Emails: emails,
		Phones: phones,
	}
}

func TestDecideRejectsNonPersons(t *testing.T) {
	cls := classify.Result{
		Category:           classify.CategoryOrganization,
		ShouldCreatePerson: false,
		Reason:             "name classified as organization by rule organization",
	}
	out := decision.Decide(personCandidate(), cls, nil, match.DefaultRuleset("petpoint"), nil)

	assert.Equal(t, decision.TypeRejected, out.Decision)
	assert.Equal(t, cls.Reason, out.Reason)
	assert.Nil(t, out.BestEntityID)
}

func TestDecideNewEntityWithoutCandidates(t *testing.T) {
	out := decision.Decide(personCandidate(), personResult(), nil, match.DefaultRuleset("petpoint"), nil)

	assert.Equal(t, decision.TypeNewEntity, out.Decision)
	assert.Nil(t, out.BestEntityID)
	assert.Zero(t, out.Score)
}

func TestDecideAutoMatchAboveUpperThreshold(t *testing.T) {
	// Email and name both agree: log2(950) + log2(80), well past upper 10.
	v := view("Jane Doe", time.Now(), []string{"jane@example.com"}, nil)
	out := decision.Decide(personCandidate(), personResult(), []match.EntityView{v}, match.DefaultRuleset("petpoint"), nil)

	require.Equal(t, decision.TypeAutoMatch, out.Decision)
	require.NotNil(t, out.BestEntityID)
	assert.Equal(t, v.Entity.ID, *out.BestEntityID)
	assert.Greater(t, out.Score, 10.0)
}

func TestDecideReviewBetweenThresholds(t *testing.T) {
	// Phone agrees, name disagrees: log2(900) + log2(0.2/0.99) lands
	// between the default thresholds 2 and 10.
	v := view("Robert Smith", time.Now(), nil, []string{"7075550142"})
	out := decision.Decide(personCandidate(), personResult(), []match.EntityView{v}, match.DefaultRuleset("petpoint"), nil)

	require.Equal(t, decision.TypeReviewNeeded, out.Decision)
	require.NotNil(t, out.BestEntityID)
	assert.Equal(t, v.Entity.ID, *out.BestEntityID)
	assert.InDelta(t, 7.5, out.Score, 0.1)
}

func TestDecideNewEntityBelowLowerThreshold(t *testing.T) {
	// Everything disagrees; the blocked entity came in through a shared
	// identifier that has since been removed from the view.
	v := view("Robert Smith", time.Now(), []string{"bob@other.com"}, []string{"7075559999"})
	out := decision.Decide(personCandidate(), personResult(), []match.EntityView{v}, match.DefaultRuleset("petpoint"), nil)

	assert.Equal(t, decision.TypeNewEntity, out.Decision)
	assert.Nil(t, out.BestEntityID)
	assert.Negative(t, out.Score)
}

func TestDecideMissingFieldsContributeZero(t *testing.T) {
	cand := extract.Candidate{OwnerName: "Jane Doe", PhoneNorm: "7075550142"}
	v := view("", time.Now(), nil, []string{"7075550142"})

	out := decision.Decide(cand, personResult(), []match.EntityView{v}, match.DefaultRuleset("petpoint"), nil)

	var total float64
	for _, w := range out.Breakdown {
		if w.Outcome == match.OutcomeMissing {
			assert.Zero(t, w.Weight, "missing field %s must not move the score", w.Field)
		}
		total += w.Weight
	}
	assert.InDelta(t, total, out.Score, 1e-9)
}

func TestDecideTieBreaksOnEarliestEntity(t *testing.T) {
	older := view("Jane Doe", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), []string{"jane@example.com"}, nil)
	newer := view("Jane Doe", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), []string{"jane@example.com"}, nil)

	out := decision.Decide(personCandidate(), personResult(), []match.EntityView{newer, older}, match.DefaultRuleset("petpoint"), nil)

	require.NotNil(t, out.BestEntityID)
	assert.Equal(t, older.Entity.ID, *out.BestEntityID)
}

func TestDecideCapsCandidateList(t *testing.T) {
	views := make([]match.EntityView, 8)
	for i := range views {
		views[i] = view("Jane Doe", time.Now().Add(time.Duration(i)*time.Hour), []string{"jane@example.com"}, nil)
	}
	out := decision.Decide(personCandidate(), personResult(), views, match.DefaultRuleset("petpoint"), nil)

	assert.LessOrEqual(t, len(out.CandidateIDs), 5)
}

func TestDecideSuppressedPairNeverAutoMatches(t *testing.T) {
	v := view("Jane Doe", time.Now(), []string{"jane@example.com"}, nil)
	suppressed := func(id uuid.UUID) bool { return id == v.Entity.ID }

	out := decision.Decide(personCandidate(), personResult(), []match.EntityView{v}, match.DefaultRuleset("petpoint"), suppressed)

	assert.Equal(t, decision.TypeNewEntity, out.Decision)
	assert.Nil(t, out.BestEntityID)
	assert.Contains(t, out.Reason, "kept separate")
}

func TestDecideHigherThresholdDemotesAutoMatch(t *testing.T) {
	v := view("Jane Doe", time.Now(), []string{"jane@example.com"}, nil)
	rs := match.DefaultRuleset("petpoint")

	out := decision.Decide(personCandidate(), personResult(), []match.EntityView{v}, rs, nil)
	require.Equal(t, decision.TypeAutoMatch, out.Decision)

	rs.UpperThreshold = out.Score + 1
	demoted := decision.Decide(personCandidate(), personResult(), []match.EntityView{v}, rs, nil)
	assert.Equal(t, decision.TypeReviewNeeded, demoted.Decision)
}
