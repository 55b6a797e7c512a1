package reporting

import (
	"context"
	"errors"
	"time"

	"call-platform/internal/calls"
	"call-platform/internal/huddles"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce workspace filtering.
// - Implementations query the immutable log tables, never the live session
//   tables, so reports cannot observe half-finished mutations.

type Repository interface {
	ListCallLogs(ctx context.Context, workspaceID string, from, to time.Time) ([]calls.CallLog, error)
	ListHuddleLogs(ctx context.Context, workspaceID string, from, to time.Time) ([]huddles.HuddleLog, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

// UsageSummary aggregates ended calls and huddles for a workspace over a
// time range. The range filters on session end time.
func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if req.WorkspaceID == "" || !req.Range.Valid() {
		return UsageSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return UsageSummary{}, errors.New("reporting: repository not configured")
	}

	callLogs, err := s.repo.ListCallLogs(ctx, req.WorkspaceID, req.Range.From, req.Range.To)
	if err != nil {
		return UsageSummary{}, err
	}
	huddleLogs, err := s.repo.ListHuddleLogs(ctx, req.WorkspaceID, req.Range.From, req.Range.To)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{WorkspaceID: req.WorkspaceID, Range: req.Range}
	seen := make(map[string]struct{})

	for _, l := range callLogs {
		out.Calls.Total++
		out.Calls.TotalDurationSeconds += l.DurationSeconds
		switch l.Kind {
		case calls.KindAudio:
			out.Calls.AudioCalls++
		case calls.KindVideo:
			out.Calls.VideoCalls++
		}
		if n := len(l.Participants); n > out.Calls.LargestRoster {
			out.Calls.LargestRoster = n
		}
		for _, p := range l.Participants {
			seen[p.UserID] = struct{}{}
		}
	}
	if out.Calls.Total > 0 {
		out.Calls.AverageDurationSeconds = out.Calls.TotalDurationSeconds / out.Calls.Total
	}

	for _, l := range huddleLogs {
		out.Huddles.Total++
		out.Huddles.TotalDurationSeconds += l.DurationSeconds
		if n := len(l.Participants); n > out.Huddles.LargestRoster {
			out.Huddles.LargestRoster = n
		}
		for _, p := range l.Participants {
			seen[p.UserID] = struct{}{}
		}
	}
	if out.Huddles.Total > 0 {
		out.Huddles.AverageDurationSeconds = out.Huddles.TotalDurationSeconds / out.Huddles.Total
	}

	out.UniqueParticipants = len(seen)
	return out, nil
}
