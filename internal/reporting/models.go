package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) Valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// UsageSummaryRequest requests aggregated session metrics.
// Workspace isolation: WorkspaceID is required.

type UsageSummaryRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`
}

type CallUsage struct {
	Total      int `json:"total"`
	AudioCalls int `json:"audio_calls"`
	VideoCalls int `json:"video_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	// LargestRoster is the biggest final roster seen in the range.
	LargestRoster int `json:"largest_roster"`
}

type HuddleUsage struct {
	Total int `json:"total"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	LargestRoster int `json:"largest_roster"`
}

// UsageSummary aggregates ended sessions only; live sessions have no log row
// yet and are intentionally excluded.
type UsageSummary struct {
	WorkspaceID string    `json:"workspace_id"`
	Range       TimeRange `json:"range"`

	Calls   CallUsage   `json:"calls"`
	Huddles HuddleUsage `json:"huddles"`

	// UniqueParticipants counts distinct users across both session kinds.
	UniqueParticipants int `json:"unique_participants"`
}
