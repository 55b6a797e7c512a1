package calls

import (
	"context"
	"sync"

	"call-platform/internal/session"
)

// MemoryRepo is an in-memory Repository for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu       sync.Mutex
	sessions map[string]CallSession
	logs     []CallLog
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{sessions: make(map[string]CallSession)}
}

func cloneSession(cs CallSession) CallSession {
	out := cs
	out.Participants = make([]session.Participant, len(cs.Participants))
	copy(out.Participants, cs.Participants)
	if cs.EndedAt != nil {
		t := *cs.EndedAt
		out.EndedAt = &t
	}
	return out
}

func (r *MemoryRepo) Create(_ context.Context, cs CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[cs.ID] = cloneSession(cs)
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, callID string) (CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.sessions[callID]
	if !ok {
		return CallSession{}, ErrNotFound
	}
	return cloneSession(cs), nil
}

func (r *MemoryRepo) Update(_ context.Context, cs CallSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sessions[cs.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Status = cs.Status
	cur.EndedAt = cs.EndedAt
	cur.DurationSeconds = cs.DurationSeconds
	r.sessions[cs.ID] = cur
	return nil
}

func (r *MemoryRepo) AddParticipant(_ context.Context, callID string, p session.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	if i := session.FindParticipant(cs.Participants, p.UserID); i >= 0 {
		cs.Participants[i] = p
	} else {
		cs.Participants = append(cs.Participants, p)
	}
	r.sessions[callID] = cs
	return nil
}

func (r *MemoryRepo) RemoveParticipant(_ context.Context, callID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	cs.Participants, _ = session.RemoveParticipant(cs.Participants, userID)
	r.sessions[callID] = cs
	return nil
}

func (r *MemoryRepo) UpdateParticipant(_ context.Context, callID string, p session.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cs, ok := r.sessions[callID]
	if !ok {
		return ErrNotFound
	}
	i := session.FindParticipant(cs.Participants, p.UserID)
	if i < 0 {
		return ErrNotFound
	}
	cs.Participants[i] = p
	r.sessions[callID] = cs
	return nil
}

func (r *MemoryRepo) ListActiveByParticipant(_ context.Context, userID string) ([]CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallSession
	for _, cs := range r.sessions {
		if cs.Status != session.StatusActive {
			continue
		}
		if session.FindParticipant(cs.Participants, userID) >= 0 {
			out = append(out, cloneSession(cs))
		}
	}
	return out, nil
}

func (r *MemoryRepo) SaveLog(_ context.Context, log CallLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, log)
	return nil
}

// Logs returns a snapshot of saved call logs.
func (r *MemoryRepo) Logs() []CallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, len(r.logs))
	copy(out, r.logs)
	return out
}
