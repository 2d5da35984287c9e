// Package decision turns extracted candidates into match decisions: the
// Fellegi-Sunter score against blocked entities is compared to per-source
// thresholds and exactly one decision row is written per raw record.
package decision

import (
	"time"

	"github.com/google/uuid"

	"trapper/internal/match"
)

// Type enumerates decision outcomes.
type Type string

const (
	TypeAutoMatch    Type = "auto_match"
	TypeNewEntity    Type = "new_entity"
	TypeReviewNeeded Type = "review_needed"
	TypeRejected     Type = "rejected"
)

// MatchDecision is the durable outcome for one raw record. The review fields
// (ReviewedBy, ReviewedAt, Resolution) start empty and are set exactly once;
// a second resolution attempt fails rather than overwriting.
type MatchDecision struct {
	ID           uuid.UUID `json:"id"`
	RawRecordID  uuid.UUID `json:"raw_record_id"`
	SourceSystem string    `json:"source_system"`
	Decision     Type      `json:"decision"`

	// Extracted snapshot, frozen at decision time so the review queue shows
	// what the engine actually compared even if parsing changes later.
	ExtractedName  string `json:"extracted_name,omitempty"`
	ExtractedEmail string `json:"extracted_email,omitempty"`
	ExtractedPhone string `json:"extracted_phone,omitempty"`

	EntityID            *uuid.UUID          `json:"entity_id,omitempty"`
	Score               float64             `json:"score"`
	Breakdown           []match.FieldWeight `json:"breakdown,omitempty"`
	CandidateIDs        []uuid.UUID         `json:"candidate_ids,omitempty"`
	CandidatesEvaluated int                 `json:"candidates_evaluated"`
	Reason              string              `json:"reason"`
	BatchRunID          *uuid.UUID          `json:"batch_run_id,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`

	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	Resolution  string     `json:"resolution,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
}

// Resolved reports whether a reviewer has already acted on this decision.
func (d *MatchDecision) Resolved() bool { return d.ReviewedAt != nil }

// BatchRun records one pipeline execution for operational visibility.
type BatchRun struct {
	ID           uuid.UUID  `json:"id"`
	SourceSystem string     `json:"source_system,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`

	Processed    int `json:"processed"`
	AutoMatched  int `json:"auto_matched"`
	NewEntities  int `json:"new_entities"`
	ReviewNeeded int `json:"review_needed"`
	Rejected     int `json:"rejected"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}
