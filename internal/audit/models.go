package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - workspace_id is required for tenancy isolation.
// - Audit logging is best-effort; do not block the recovery paths it records.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
type Event struct {
	ID          string `json:"id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated admin causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// TargetUserID is the user whose session state was acted on.
	TargetUserID string `json:"target_user_id,omitempty" db:"target_user_id"`
	// SessionID is the call or huddle affected, when known.
	SessionID string `json:"session_id,omitempty" db:"session_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	// EventTypeForceLeave records the administrative force-leave escape hatch
	// used to detach a stuck client from all sessions.
	EventTypeForceLeave EventType = "session_force_leave"
)
