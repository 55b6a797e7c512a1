package huddles

import (
	"context"
	"sync"

	"call-platform/internal/session"
)

// MemoryRepo is an in-memory Repository for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]HuddleSession
	logs     []HuddleLog
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]HuddleSession)}
}

func cloneSession(hs HuddleSession) HuddleSession {
	out := hs
	out.Participants = make([]session.Participant, len(hs.Participants))
	copy(out.Participants, hs.Participants)
	if hs.EndedAt != nil {
		t := *hs.EndedAt
		out.EndedAt = &t
	}
	return out
}

func (r *MemoryRepo) Create(_ context.Context, hs HuddleSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[hs.ID] = cloneSession(hs)
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, huddleID string) (HuddleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.sessions[huddleID]
	if !ok {
		return HuddleSession{}, ErrNotFound
	}
	return cloneSession(hs), nil
}

func (r *MemoryRepo) GetActiveByChannel(_ context.Context, channelID string) (HuddleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, hs := range r.sessions {
		if hs.ChannelID == channelID && hs.Status == session.StatusActive {
			return cloneSession(hs), nil
		}
	}
	return HuddleSession{}, ErrNotFound
}

func (r *MemoryRepo) Update(_ context.Context, hs HuddleSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[hs.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = hs.Status
	cur.EndedAt = hs.EndedAt
	cur.DurationSeconds = hs.DurationSeconds
	r.sessions[hs.ID] = cur
	return nil
}

func (r *MemoryRepo) AddParticipant(_ context.Context, huddleID string, p session.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.sessions[huddleID]
	if !ok {
		return ErrNotFound
	}
	if i := session.FindParticipant(hs.Participants, p.UserID); i >= 0 {
		hs.Participants[i] = p
	} else {
		hs.Participants = append(hs.Participants, p)
	}
	r.sessions[huddleID] = hs
	return nil
}

func (r *MemoryRepo) RemoveParticipant(_ context.Context, huddleID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.sessions[huddleID]
	if !ok {
		return ErrNotFound
	}
	hs.Participants, _ = session.RemoveParticipant(hs.Participants, userID)
	r.sessions[huddleID] = hs
	return nil
}

func (r *MemoryRepo) UpdateParticipant(_ context.Context, huddleID string, p session.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.sessions[huddleID]
	if !ok {
		return ErrNotFound
	}
	i := session.FindParticipant(hs.Participants, p.UserID)
	if i < 0 {
		return ErrNotFound
	}
	hs.Participants[i] = p
	r.sessions[huddleID] = hs
	return nil
}

func (r *MemoryRepo) SaveLog(_ context.Context, log HuddleLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

func (r *MemoryRepo) ListActiveByParticipant(_ context.Context, userID string) ([]HuddleSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []HuddleSession
	for _, hs := range r.sessions {
		if hs.Status != session.StatusActive {
			continue
		}
		if session.FindParticipant(hs.Participants, userID) >= 0 {
			out = append(out, cloneSession(hs))
		}
	}
	return out, nil
}

// Logs returns a snapshot of saved huddle logs.
func (r *MemoryRepo) Logs() []HuddleLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]HuddleLog, len(r.logs))
	copy(out, r.logs)
	return out
}
