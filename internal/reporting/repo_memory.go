package reporting

import (
	"context"
	"time"

	"call-platform/internal/calls"
	"call-platform/internal/huddles"
)

// MemoryRepo is a simple in-memory repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	CallLogs   []calls.CallLog
	HuddleLogs []huddles.HuddleLog
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func inRange(endedAt time.Time, from, to time.Time) bool {
	return !endedAt.Before(from) && endedAt.Before(to)
}

func (r *MemoryRepo) ListCallLogs(_ context.Context, workspaceID string, from, to time.Time) ([]calls.CallLog, error) {
	var out []calls.CallLog
	for _, l := range r.CallLogs {
		if l.WorkspaceID == workspaceID && inRange(l.EndedAt, from, to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *MemoryRepo) ListHuddleLogs(_ context.Context, workspaceID string, from, to time.Time) ([]huddles.HuddleLog, error) {
	var out []huddles.HuddleLog
	for _, l := range r.HuddleLogs {
		if l.WorkspaceID == workspaceID && inRange(l.EndedAt, from, to) {
			out = append(out, l)
		}
	}
	return out, nil
}
