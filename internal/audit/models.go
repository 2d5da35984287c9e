// Package audit records every mutation of canonical state. The trail is
// append-only: it is the one piece of history a later merge never rewrites.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is one immutable audit row.
type Event struct {
	ID         uuid.UUID `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Action     string    `json:"action"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Actor      string    `json:"actor"`
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
}

// Known audit actions.
const (
	ActionEntityCreated      = "entity_created"
	ActionIdentifierAttached = "identifier_attached"
	ActionMerge              = "merge"
	ActionKeepSeparate       = "keep_separate"
	ActionAddToHousehold     = "add_to_household"
	ActionReject             = "reject"
)
