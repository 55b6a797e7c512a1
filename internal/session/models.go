package session

import "time"

// Status is the lifecycle state of a call or huddle session.
//
// Sessions are created active and transition to ended exactly once.
// An ended session is immutable history; coordinators treat it as not found
// for any further mutation.
type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Participant is a user's membership record within a single session.
//
// Participants are owned by their session: they are removed on leave and are
// never shared across sessions.
type Participant struct {
	UserID        string    `json:"user_id"`
	JoinedAt      time.Time `json:"joined_at"`
	AudioEnabled  bool      `json:"audio_enabled"`
	VideoEnabled  bool      `json:"video_enabled"`
	ScreenSharing bool      `json:"screen_sharing"`
}

// StateUpdate patches a participant's media flags. Nil fields are left untouched.
type StateUpdate struct {
	AudioEnabled  *bool `json:"audio_enabled,omitempty"`
	VideoEnabled  *bool `json:"video_enabled,omitempty"`
	ScreenSharing *bool `json:"screen_sharing,omitempty"`
}

// Apply patches p with the non-nil fields of u.
func (u StateUpdate) Apply(p *Participant) {
	if u.AudioEnabled != nil {
		p.AudioEnabled = *u.AudioEnabled
	}
	if u.VideoEnabled != nil {
		p.VideoEnabled = *u.VideoEnabled
	}
	if u.ScreenSharing != nil {
		p.ScreenSharing = *u.ScreenSharing
	}
}

// IsEmpty reports whether the update patches nothing.
func (u StateUpdate) IsEmpty() bool {
	return u.AudioEnabled == nil && u.VideoEnabled == nil && u.ScreenSharing == nil
}

// FindParticipant returns the index of userID in roster, or -1.
func FindParticipant(roster []Participant, userID string) int {
	for i := range roster {
		if roster[i].UserID == userID {
			return i
		}
	}
	return -1
}

// RemoveParticipant returns roster without userID, preserving join order,
// and whether the user was present.
func RemoveParticipant(roster []Participant, userID string) ([]Participant, bool) {
	i := FindParticipant(roster, userID)
	if i < 0 {
		return roster, false
	}
	out := make([]Participant, 0, len(roster)-1)
	out = append(out, roster[:i]...)
	out = append(out, roster[i+1:]...)
	return out, true
}
