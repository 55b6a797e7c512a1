package calls

import (
	"time"

	"call-platform/internal/session"
)

// Kind distinguishes audio-first from video-first calls. It is fixed at
// creation; clients toggle media per participant, not per call.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool { return k == KindAudio || k == KindVideo }

// CallSession is a channel-scoped multi-party call.
//
// Invariants:
// - Mutated only through the Coordinator; the coordinator serializes all
//   mutations per call id.
// - A user belongs to at most one active call at a time (the user -> call
//   pointer in the live cache is overwritten, never merged).
// - Status is ended iff a CallLog row exists with a non-negative duration.
type CallSession struct {
	ID          string `json:"id" db:"id"`
	Kind        Kind   `json:"kind" db:"kind"`
	ChannelID   string `json:"channel_id" db:"channel_id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	InitiatorID string `json:"initiator_id" db:"initiator_id"`

	Status session.Status `json:"status" db:"status"`

	// Participants are ordered by join time.
	Participants []session.Participant `json:"participants"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is computed at termination; zero while active.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`
}

// CallLog is the immutable record written exactly once when a call ends.
// It is the durable audit trail, distinct from the live CallSession.
type CallLog struct {
	CallID      string `json:"call_id" db:"call_id"`
	Kind        Kind   `json:"kind" db:"kind"`
	ChannelID   string `json:"channel_id" db:"channel_id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	InitiatorID string `json:"initiator_id" db:"initiator_id"`

	// Participants is the final roster as of termination.
	Participants []session.Participant `json:"participants"`

	DurationSeconds int       `json:"duration_seconds" db:"duration_seconds"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	EndedAt         time.Time `json:"ended_at" db:"ended_at"`
}
