// Package match implements candidate blocking and the Fellegi-Sunter
// record-linkage scorer. Probabilities and thresholds are configuration,
// validated at write time and injected into each batch as a read-only
// snapshot; nothing in this package mutates them.
package match

import (
	derrors "trapper/pkg/domainerrors"
)

// Comparison field names. Each names one field comparator the scorer knows.
const (
	FieldEmail   = "email"
	FieldPhone   = "phone"
	FieldName    = "name"
	FieldAddress = "address"
)

// FieldParams holds the calibrated match/non-match probabilities for one
// comparison field. M is the probability two records for the same real-world
// entity agree on the field; U is the probability two records for different
// entities agree by chance.
type FieldParams struct {
	Field string  `json:"field"`
	M     float64 `json:"m_probability"`
	U     float64 `json:"u_probability"`
}

// Ruleset is the per-source-system matching configuration: thresholds plus
// the field parameter table.
type Ruleset struct {
	SourceSystem   string        `json:"source_system"`
	UpperThreshold float64       `json:"upper_threshold"`
	LowerThreshold float64       `json:"lower_threshold"`
	Fields         []FieldParams `json:"fields"`
	IsActive       bool          `json:"is_active"`
	Priority       int           `json:"priority"`
}

// Validate enforces the invariants the scorer depends on. Invalid
// configuration is rejected here, at write time; the scorer never sees it.
func (r Ruleset) Validate() error {
	if r.UpperThreshold <= r.LowerThreshold {
		return derrors.Newf(derrors.CodeConfigInvalid,
			"upper_threshold %.2f must exceed lower_threshold %.2f", r.UpperThreshold, r.LowerThreshold)
	}
	if len(r.Fields) == 0 {
		return derrors.New(derrors.CodeConfigInvalid, "ruleset needs at least one comparison field")
	}
	seen := make(map[string]struct{}, len(r.Fields))
	for _, f := range r.Fields {
		if f.Field == "" {
			return derrors.New(derrors.CodeConfigInvalid, "field name is required")
		}
		if _, dup := seen[f.Field]; dup {
			return derrors.Newf(derrors.CodeConfigInvalid, "duplicate field %q", f.Field)
		}
		seen[f.Field] = struct{}{}
		// The log-likelihood weights are undefined outside (0,1).
		if f.M <= 0 || f.M >= 1 {
			return derrors.Newf(derrors.CodeConfigInvalid, "field %q m_probability %.4f outside (0,1)", f.Field, f.M)
		}
		if f.U <= 0 || f.U >= 1 {
			return derrors.Newf(derrors.CodeConfigInvalid, "field %q u_probability %.4f outside (0,1)", f.Field, f.U)
		}
	}
	return nil
}

// DefaultRuleset ships conservative parameters derived from the master list's
// historical tier confidences. Operators override per source system.
func DefaultRuleset(sourceSystem string) Ruleset {
	return Ruleset{
		SourceSystem:   sourceSystem,
		UpperThreshold: 10,
		LowerThreshold: 2,
		IsActive:       true,
		Fields: []FieldParams{
			{Field: FieldEmail, M: 0.95, U: 0.001},
			{Field: FieldPhone, M: 0.9, U: 0.001},
			{Field: FieldName, M: 0.8, U: 0.01},
			{Field: FieldAddress, M: 0.7, U: 0.05},
		},
	}
}
