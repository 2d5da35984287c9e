package match

import (
	"math"

	"trapper/internal/entity"
	"trapper/internal/extract"
	"trapper/internal/normalize"
)

// nameAgreeThreshold is the Levenshtein ratio above which two names count as
// agreeing, mirroring the master list's historical fuzzy tier.
const nameAgreeThreshold = 0.7

// addressAgreeThreshold is looser: address strings vary more across sources.
const addressAgreeThreshold = 0.6

// EntityView is one existing canonical entity with the comparable signals the
// scorer needs, assembled by the blocker.
type EntityView struct {
	Entity *entity.Entity
	Emails []string
	Phones []string

	// Address is the entity's own address, falling back to its primary
	// place's when the entity carries none.
	Address string
}

// FieldOutcome tags how one field compared.
type FieldOutcome string

const (
	OutcomeAgreement    FieldOutcome = "agreement"
	OutcomeDisagreement FieldOutcome = "disagreement"
	OutcomeMissing      FieldOutcome = "missing"
)

// FieldWeight is one field's contribution, retained for the review UI.
type FieldWeight struct {
	Field   string       `json:"field"`
	Outcome FieldOutcome `json:"outcome"`
	Weight  float64      `json:"weight"`
}

// Score is the summed log-likelihood ratio plus its per-field breakdown.
type Score struct {
	Total     float64       `json:"total"`
	Breakdown []FieldWeight `json:"breakdown"`
}

// ScorePair compares a candidate against one existing entity under the given
// field parameters. A field missing on either side contributes exactly zero:
// missing data is uninformative, not penalized.
func ScorePair(c extract.Candidate, view EntityView, fields []FieldParams) Score {
	score := Score{Breakdown: make([]FieldWeight, 0, len(fields))}
	for _, f := range fields {
		outcome := compareField(f.Field, c, view)
		w := FieldWeight{Field: f.Field, Outcome: outcome}
		switch outcome {
		case OutcomeAgreement:
			w.Weight = math.Log2(f.M / f.U)
		case OutcomeDisagreement:
			w.Weight = math.Log2((1 - f.M) / (1 - f.U))
		}
		score.Total += w.Weight
		score.Breakdown = append(score.Breakdown, w)
	}
	return score
}

func compareField(field string, c extract.Candidate, view EntityView) FieldOutcome {
	switch field {
	case FieldEmail:
		if c.EmailNorm == "" || len(view.Emails) == 0 {
			return OutcomeMissing
		}
		return exactAny(c.EmailNorm, view.Emails)
	case FieldPhone:
		if c.PhoneNorm == "" || len(view.Phones) == 0 {
			return OutcomeMissing
		}
		return exactAny(c.PhoneNorm, view.Phones)
	case FieldName:
		name := c.DisplayName()
		if name == "" || view.Entity.DisplayName == "" {
			return OutcomeMissing
		}
		return similarity(name, view.Entity.DisplayName, nameAgreeThreshold)
	case FieldAddress:
		if c.AddressRaw == "" || view.Address == "" {
			return OutcomeMissing
		}
		return similarity(c.AddressRaw, view.Address, addressAgreeThreshold)
	default:
		// Unknown fields are rejected at configuration-write time; treat a
		// stale snapshot defensively as uninformative.
		return OutcomeMissing
	}
}

func exactAny(value string, values []string) FieldOutcome {
	for _, v := range values {
		if v == value {
			return OutcomeAgreement
		}
	}
	return OutcomeDisagreement
}

func similarity(a, b string, threshold float64) FieldOutcome {
	if normalize.NameSimilarity(a, b) >= threshold {
		return OutcomeAgreement
	}
	return OutcomeDisagreement
}
