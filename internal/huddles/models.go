package huddles

import (
	"time"

	"call-platform/internal/session"
)

// DefaultMaxParticipants caps huddle size.
const DefaultMaxParticipants = 50

// HuddleSession is a channel-scoped, capacity-bounded group session.
//
// Invariants:
// - At most one active huddle exists per channel; the channel -> huddle
//   pointer in the live cache is claimed atomically at creation.
// - Joins beyond MaxParticipants are rejected without touching state.
// - Status is ended iff a HuddleLog row exists with a non-negative duration.
type HuddleSession struct {
	ID          string `json:"id" db:"id"`
	ChannelID   string `json:"channel_id" db:"channel_id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	InitiatorID string `json:"initiator_id" db:"initiator_id"`

	Status session.Status `json:"status" db:"status"`

	MaxParticipants int `json:"max_participants" db:"max_participants"`

	// Participants are ordered by join time.
	Participants []session.Participant `json:"participants"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`
}

// HuddleLog is the immutable record written exactly once when a huddle ends.
type HuddleLog struct {
	HuddleID    string `json:"huddle_id" db:"huddle_id"`
	ChannelID   string `json:"channel_id" db:"channel_id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	InitiatorID string `json:"initiator_id" db:"initiator_id"`

	Participants []session.Participant `json:"participants"`

	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	EndedAt         time.Time `json:"ended_at" db:"ended_at"`
}
