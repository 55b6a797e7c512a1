package reporting

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"call-platform/internal/calls"
	"call-platform/internal/huddles"
)

// SQLRepo reads the write-once log tables on Postgres via database/sql.
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) ListCallLogs(ctx context.Context, workspaceID string, from, to time.Time) ([]calls.CallLog, error) {
	const q = `
SELECT call_id, kind, channel_id, workspace_id, initiator_id, participants, duration_seconds, created_at, ended_at
FROM call_logs
WHERE workspace_id = $1 AND ended_at >= $2 AND ended_at < $3
ORDER BY ended_at
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("reporting: list call logs: %w", err)
	}
	defer rows.Close()

	var out []calls.CallLog
	for rows.Next() {
		var l calls.CallLog
		var roster []byte
		if err := rows.Scan(
			&l.CallID, &l.Kind, &l.ChannelID, &l.WorkspaceID, &l.InitiatorID,
			&roster, &l.DurationSeconds, &l.CreatedAt, &l.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("reporting: scan call log: %w", err)
		}
		if err := json.Unmarshal(roster, &l.Participants); err != nil {
			return nil, fmt.Errorf("reporting: decode call roster %s: %w", l.CallID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *SQLRepo) ListHuddleLogs(ctx context.Context, workspaceID string, from, to time.Time) ([]huddles.HuddleLog, error) {
	const q = `
SELECT huddle_id, channel_id, workspace_id, initiator_id, participants, duration_seconds, created_at, ended_at
FROM huddle_logs
WHERE workspace_id = $1 AND ended_at >= $2 AND ended_at < $3
ORDER BY ended_at
`
	rows, err := r.db.QueryContext(ctx, q, workspaceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("reporting: list huddle logs: %w", err)
	}
	defer rows.Close()

	var out []huddles.HuddleLog
	for rows.Next() {
		var l huddles.HuddleLog
		var roster []byte
		if err := rows.Scan(
			&l.HuddleID, &l.ChannelID, &l.WorkspaceID, &l.InitiatorID,
			&roster, &l.DurationSeconds, &l.CreatedAt, &l.EndedAt,
		); err != nil {
			return nil, fmt.Errorf("reporting: scan huddle log: %w", err)
		}
		if err := json.Unmarshal(roster, &l.Participants); err != nil {
			return nil, fmt.Errorf("reporting: decode huddle roster %s: %w", l.HuddleID, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
