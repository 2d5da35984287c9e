package decision

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"trapper/internal/classify"
	"trapper/internal/extract"
	"trapper/internal/match"
)

// maxCandidates caps how many blocked entities a single record is scored
// against. Hot identifiers (a shelter's shared phone line) can block dozens of
// entities; past the first few the extra comparisons only add noise.
const maxCandidates = 5

// Outcome is the engine's verdict for one candidate, before persistence.
type Outcome struct {
	Decision     Type
	BestEntityID *uuid.UUID
	Score        float64
	Breakdown    []match.FieldWeight
	CandidateIDs []uuid.UUID
	Reason       string
}

// scored pairs a view with its score for ranking.
type scored struct {
	view  match.EntityView
	score match.Score
}

// Decide maps one candidate to a decision. Pure: same inputs, same outcome.
//
//   - Non-person or identifier-less candidates are rejected outright.
//   - No blocked entities means a fresh entity.
//   - Otherwise the best-scoring entity is compared to the ruleset thresholds:
//     at or above upper is an automatic match, at or below lower a fresh
//     entity, and the band between lands in human review.
//
// suppressed filters entities a reviewer has already kept separate from this
// candidate; they are never scored. Ties on score break toward the earliest
// created entity so reruns pick the same winner.
func Decide(c extract.Candidate, cls classify.Result, views []match.EntityView, rs match.Ruleset, suppressed func(uuid.UUID) bool) Outcome {
	if !cls.ShouldCreatePerson {
		return Outcome{
			Decision: TypeRejected,
			Reason:   cls.Reason,
		}
	}

	eligible := make([]match.EntityView, 0, len(views))
	suppressedCount := 0
	for _, v := range views {
		if suppressed != nil && suppressed(v.Entity.ID) {
			suppressedCount++
			continue
		}
		eligible = append(eligible, v)
	}

	if len(eligible) == 0 {
		reason := "no existing entity shares an identifier"
		if suppressedCount > 0 {
			reason = fmt.Sprintf("all %d blocked entities kept separate by review", suppressedCount)
		}
		return Outcome{Decision: TypeNewEntity, Reason: reason}
	}

	ranked := make([]scored, 0, len(eligible))
	for _, v := range eligible {
		ranked = append(ranked, scored{view: v, score: match.ScorePair(c, v, rs.Fields)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score.Total != ranked[j].score.Total {
			return ranked[i].score.Total > ranked[j].score.Total
		}
		return ranked[i].view.Entity.CreatedAt.Before(ranked[j].view.Entity.CreatedAt)
	})
	if len(ranked) > maxCandidates {
		ranked = ranked[:maxCandidates]
	}

	candidateIDs := make([]uuid.UUID, len(ranked))
	for i, r := range ranked {
		candidateIDs[i] = r.view.Entity.ID
	}

	best := ranked[0]
	bestID := best.view.Entity.ID
	out := Outcome{
		BestEntityID: &bestID,
		Score:        best.score.Total,
		Breakdown:    best.score.Breakdown,
		CandidateIDs: candidateIDs,
	}

	switch {
	case best.score.Total >= rs.UpperThreshold:
		out.Decision = TypeAutoMatch
		out.Reason = fmt.Sprintf("score %.2f at or above upper threshold %.2f", best.score.Total, rs.UpperThreshold)
	case best.score.Total <= rs.LowerThreshold:
		out.Decision = TypeNewEntity
		out.Reason = fmt.Sprintf("best score %.2f at or below lower threshold %.2f", best.score.Total, rs.LowerThreshold)
		out.BestEntityID = nil
	default:
		out.Decision = TypeReviewNeeded
		out.Reason = fmt.Sprintf("score %.2f between thresholds [%.2f, %.2f]", best.score.Total, rs.LowerThreshold, rs.UpperThreshold)
	}
	return out
}
