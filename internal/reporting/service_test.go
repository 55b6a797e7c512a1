package reporting

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-platform/internal/calls"
	"call-platform/internal/huddles"
	"call-platform/internal/session"
)

func roster(users ...string) []session.Participant {
	out := make([]session.Participant, 0, len(users))
	for _, u := range users {
		out = append(out, session.Participant{UserID: u})
	}
	return out
}

func TestUsageSummaryWorkspaceIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.CallLogs = []calls.CallLog{
		{CallID: "c1", WorkspaceID: "w1", Kind: calls.KindAudio, DurationSeconds: 30, Participants: roster("a"), EndedAt: now},
		{CallID: "c2", WorkspaceID: "w2", Kind: calls.KindAudio, DurationSeconds: 50, Participants: roster("b"), EndedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		WorkspaceID: "w1",
		Range:       TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Calls.Total != 1 {
		t.Fatalf("expected 1 call, got %d", out.Calls.Total)
	}
}

func TestUsageSummaryAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.CallLogs = []calls.CallLog{
		{CallID: "c1", WorkspaceID: "w", Kind: calls.KindAudio, DurationSeconds: 60, Participants: roster("a", "b"), EndedAt: now},
		{CallID: "c2", WorkspaceID: "w", Kind: calls.KindVideo, DurationSeconds: 120, Participants: roster("a", "c", "d"), EndedAt: now},
	}
	repo.HuddleLogs = []huddles.HuddleLog{
		{HuddleID: "h1", WorkspaceID: "w", DurationSeconds: 300, Participants: roster("b", "e"), EndedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		WorkspaceID: "w",
		Range:       TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Calls.Total != 2 || out.Calls.AudioCalls != 1 || out.Calls.VideoCalls != 1 {
		t.Fatalf("unexpected call counts: %+v", out.Calls)
	}
	if out.Calls.TotalDurationSeconds != 180 || out.Calls.AverageDurationSeconds != 90 {
		t.Fatalf("unexpected call durations: %+v", out.Calls)
	}
	if out.Calls.LargestRoster != 3 {
		t.Fatalf("expected largest call roster 3, got %d", out.Calls.LargestRoster)
	}
	if out.Huddles.Total != 1 || out.Huddles.TotalDurationSeconds != 300 {
		t.Fatalf("unexpected huddle usage: %+v", out.Huddles)
	}
	// a, b, c, d, e across both kinds
	if out.UniqueParticipants != 5 {
		t.Fatalf("expected 5 unique participants, got %d", out.UniqueParticipants)
	}
}

func TestUsageSummaryRangeFilter(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.CallLogs = []calls.CallLog{
		{CallID: "old", WorkspaceID: "w", Kind: calls.KindAudio, EndedAt: now.Add(-2 * time.Hour)},
		{CallID: "new", WorkspaceID: "w", Kind: calls.KindAudio, EndedAt: now},
	}
	svc := NewService(repo)

	out, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{
		WorkspaceID: "w",
		Range:       TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.Calls.Total != 1 {
		t.Fatalf("expected only the in-range call, got %d", out.Calls.Total)
	}
}

func TestUsageSummaryInvalidRequest(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	now := time.Unix(1700000000, 0).UTC()

	cases := []UsageSummaryRequest{
		{Range: TimeRange{From: now, To: now.Add(time.Hour)}},
		{WorkspaceID: "w"},
		{WorkspaceID: "w", Range: TimeRange{From: now.Add(time.Hour), To: now}},
	}
	for _, req := range cases {
		if _, err := svc.UsageSummary(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("UsageSummary(%+v) err = %v, want ErrInvalidRequest", req, err)
		}
	}
}
