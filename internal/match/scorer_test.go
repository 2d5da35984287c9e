package match

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trapper/internal/entity"
	"trapper/internal/extract"
)

func testFields() []FieldParams {
	return []FieldParams{
		{Field: FieldEmail, M: 0.95, U: 0.001},
		{Field: FieldPhone, M: 0.9, U: 0.001},
		{Field: FieldName, M: 0.8, U: 0.01},
	}
}

func personView(name string, emails, phones []string) EntityView {
	return EntityView{
		Entity: &entity.Entity{Type: entity.TypePerson, DisplayName: name},
		Emails: emails,
		Phones: phones,
	}
}

func TestScoreEmailAgreement(t *testing.T) {
	c := extract.Candidate{OwnerName: "Jane Doe", EmailNorm: "j.doe@example.com"}
	view := personView("Jane Doe", []string{"j.doe@example.com"}, nil)

	score := ScorePair(c, view, testFields())

	wantEmail := math.Log2(0.95 / 0.001)
	wantName := math.Log2(0.8 / 0.01)
	assert.InDelta(t, wantEmail+wantName, score.Total, 1e-9)

	require.Len(t, score.Breakdown, 3)
	byField := map[string]FieldWeight{}
	for _, w := range score.Breakdown {
		byField[w.Field] = w
	}
	assert.Equal(t, OutcomeAgreement, byField[FieldEmail].Outcome)
	assert.Equal(t, OutcomeMissing, byField[FieldPhone].Outcome)
	assert.Equal(t, 0.0, byField[FieldPhone].Weight)
}

func TestScoreDisagreementPenalizes(t *testing.T) {
	c := extract.Candidate{OwnerName: "Jane Doe", EmailNorm: "j.doe@example.com"}
	view := personView("Jane Doe", []string{"other@example.com"}, nil)

	score := ScorePair(c, view, testFields())
	for _, w := range score.Breakdown {
		if w.Field == FieldEmail {
			assert.Equal(t, OutcomeDisagreement, w.Outcome)
			assert.InDelta(t, math.Log2((1-0.95)/(1-0.001)), w.Weight, 1e-9)
			assert.Negative(t, w.Weight)
		}
	}
}

func TestMissingFieldNeutrality(t *testing.T) {
	// Two candidates differing only in phone presence: totals must differ by
	// exactly the phone field's weight, nothing else.
	base := extract.Candidate{OwnerName: "Jane Doe", EmailNorm: "j.doe@example.com"}
	withPhone := base
	withPhone.PhoneNorm = "7075550142"

	view := personView("Jane Doe", []string{"j.doe@example.com"}, []string{"7075550142"})

	scoreBase := ScorePair(base, view, testFields())
	scoreWithPhone := ScorePair(withPhone, view, testFields())

	phoneWeight := math.Log2(0.9 / 0.001)
	assert.InDelta(t, phoneWeight, scoreWithPhone.Total-scoreBase.Total, 1e-9)

	// Blank on both sides contributes exactly zero.
	emptyView := personView("Jane Doe", []string{"j.doe@example.com"}, nil)
	a := ScorePair(base, emptyView, testFields())
	b := ScorePair(base, view, testFields())
	assert.InDelta(t, a.Total, b.Total, 1e-9, "phone blank on either side must contribute 0")
}

func TestScoreFuzzyName(t *testing.T) {
	fields := []FieldParams{{Field: FieldName, M: 0.8, U: 0.01}}

	agree := ScorePair(extract.Candidate{OwnerName: "Maria Alvarez"}, personView("Marie Alvarez", nil, nil), fields)
	assert.Positive(t, agree.Total, "one edit in thirteen characters clears the 0.7 threshold")

	disagree := ScorePair(extract.Candidate{OwnerName: "Maria Alvarez"}, personView("Robert Chen", nil, nil), fields)
	assert.Negative(t, disagree.Total)
}

func TestScoreAddressField(t *testing.T) {
	fields := []FieldParams{{Field: FieldAddress, M: 0.7, U: 0.05}}

	c := extract.Candidate{OwnerName: "Jane Doe", AddressRaw: "123 Maple Street"}
	view := personView("Jane Doe", nil, nil)
	view.Address = "123 Maple St"

	agree := ScorePair(c, view, fields)
	require.Len(t, agree.Breakdown, 1)
	assert.Equal(t, OutcomeAgreement, agree.Breakdown[0].Outcome)
	assert.InDelta(t, math.Log2(0.7/0.05), agree.Total, 1e-9)

	// A view with no address on either the entity or its primary place
	// contributes exactly zero, it is not a disagreement.
	missing := ScorePair(c, personView("Jane Doe", nil, nil), fields)
	assert.Equal(t, OutcomeMissing, missing.Breakdown[0].Outcome)
	assert.Zero(t, missing.Total)

	view.Address = "99 Sebastopol Rd"
	disagree := ScorePair(c, view, fields)
	assert.Negative(t, disagree.Total)
}

func TestUnknownFieldIsUninformative(t *testing.T) {
	fields := []FieldParams{{Field: "microchip", M: 0.9, U: 0.01}}
	score := ScorePair(extract.Candidate{OwnerName: "Jane"}, personView("Jane", nil, nil), fields)
	assert.Zero(t, score.Total)
}
