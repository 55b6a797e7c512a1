package calls

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"call-platform/internal/session"
	"call-platform/pkg/utils"
)

// Repository is the durable-store contract for calls.
//
// The coordinator holds the per-session lock across every method call, so
// implementations do not need cross-statement atomicity beyond what each
// method itself requires.
//
// NOTE: The SQL implementation assumes these tables exist:
// - call_sessions (id PK, kind, channel_id, workspace_id, initiator_id,
//   status, created_at, ended_at NULL, duration_seconds)
// - call_participants (call_id, user_id, joined_at, audio_enabled,
//   video_enabled, screen_sharing, PRIMARY KEY (call_id, user_id))
// - call_logs (call_id PK, kind, channel_id, workspace_id, initiator_id,
//   participants JSONB, duration_seconds, created_at, ended_at)
type Repository interface {
	Create(ctx context.Context, cs CallSession) error
	Get(ctx context.Context, callID string) (CallSession, error)
	Update(ctx context.Context, cs CallSession) error
	AddParticipant(ctx context.Context, callID string, p session.Participant) error
	RemoveParticipant(ctx context.Context, callID, userID string) error
	UpdateParticipant(ctx context.Context, callID string, p session.Participant) error
	SaveLog(ctx context.Context, log CallLog) error
	// ListActiveByParticipant backs the administrative force-leave path,
	// which must not depend on the cache's user -> call pointer surviving.
	ListActiveByParticipant(ctx context.Context, userID string) ([]CallSession, error)
}

// SQLRepo implements Repository on Postgres via database/sql (pgx stdlib).
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

// Create inserts the session row and the initial roster in one transaction,
// so a partially created call can never be observed.
func (r *SQLRepo) Create(ctx context.Context, cs CallSession) error {
	const sessionQ = `
INSERT INTO call_sessions (id, kind, channel_id, workspace_id, initiator_id, status, created_at, ended_at, duration_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, 0)
`
	const participantQ = `
INSERT INTO call_participants (call_id, user_id, joined_at, audio_enabled, video_enabled, screen_sharing)
VALUES ($1, $2, $3, $4, $5, $6)
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sessionQ,
			cs.ID, string(cs.Kind), cs.ChannelID, cs.WorkspaceID, cs.InitiatorID, string(cs.Status), cs.CreatedAt,
		); err != nil {
			return fmt.Errorf("calls: insert session: %w", err)
		}
		for _, p := range cs.Participants {
			if _, err := tx.ExecContext(ctx, participantQ,
				cs.ID, p.UserID, p.JoinedAt, p.AudioEnabled, p.VideoEnabled, p.ScreenSharing,
			); err != nil {
				return fmt.Errorf("calls: insert initial participant: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLRepo) Get(ctx context.Context, callID string) (CallSession, error) {
	const q = `
SELECT id, kind, channel_id, workspace_id, initiator_id, status, created_at, ended_at, duration_seconds
FROM call_sessions
WHERE id = $1
`
	var cs CallSession
	var endedAt sql.NullTime
	if err := r.db.QueryRowContext(ctx, q, callID).Scan(
		&cs.ID,
		&cs.Kind,
		&cs.ChannelID,
		&cs.WorkspaceID,
		&cs.InitiatorID,
		&cs.Status,
		&cs.CreatedAt,
		&endedAt,
		&cs.DurationSeconds,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallSession{}, ErrNotFound
		}
		return CallSession{}, fmt.Errorf("calls: get session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		cs.EndedAt = &t
	}

	roster, err := r.participants(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}
	cs.Participants = roster
	return cs, nil
}

func (r *SQLRepo) participants(ctx context.Context, callID string) ([]session.Participant, error) {
	const q = `
SELECT user_id, joined_at, audio_enabled, video_enabled, screen_sharing
FROM call_participants
WHERE call_id = $1
ORDER BY joined_at, user_id
`
	rows, err := r.db.QueryContext(ctx, q, callID)
	if err != nil {
		return nil, fmt.Errorf("calls: list participants: %w", err)
	}
	defer rows.Close()

	var out []session.Participant
	for rows.Next() {
		var p session.Participant
		if err := rows.Scan(&p.UserID, &p.JoinedAt, &p.AudioEnabled, &p.VideoEnabled, &p.ScreenSharing); err != nil {
			return nil, fmt.Errorf("calls: scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *SQLRepo) Update(ctx context.Context, cs CallSession) error {
	const q = `
UPDATE call_sessions
SET status = $2, ended_at = $3, duration_seconds = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, cs.ID, string(cs.Status), cs.EndedAt, cs.DurationSeconds)
	if err != nil {
		return fmt.Errorf("calls: update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepo) AddParticipant(ctx context.Context, callID string, p session.Participant) error {
	const q = `
INSERT INTO call_participants (call_id, user_id, joined_at, audio_enabled, video_enabled, screen_sharing)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (call_id, user_id) DO UPDATE
SET audio_enabled = EXCLUDED.audio_enabled,
    video_enabled = EXCLUDED.video_enabled,
    screen_sharing = EXCLUDED.screen_sharing
`
	if _, err := r.db.ExecContext(ctx, q, callID, p.UserID, p.JoinedAt, p.AudioEnabled, p.VideoEnabled, p.ScreenSharing); err != nil {
		return fmt.Errorf("calls: add participant: %w", err)
	}
	return nil
}

func (r *SQLRepo) RemoveParticipant(ctx context.Context, callID, userID string) error {
	const q = `DELETE FROM call_participants WHERE call_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, q, callID, userID); err != nil {
		return fmt.Errorf("calls: remove participant: %w", err)
	}
	return nil
}

func (r *SQLRepo) UpdateParticipant(ctx context.Context, callID string, p session.Participant) error {
	const q = `
UPDATE call_participants
SET audio_enabled = $3, video_enabled = $4, screen_sharing = $5
WHERE call_id = $1 AND user_id = $2
`
	res, err := r.db.ExecContext(ctx, q, callID, p.UserID, p.AudioEnabled, p.VideoEnabled, p.ScreenSharing)
	if err != nil {
		return fmt.Errorf("calls: update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepo) ListActiveByParticipant(ctx context.Context, userID string) ([]CallSession, error) {
	const q = `
SELECT s.id
FROM call_sessions s
JOIN call_participants p ON p.call_id = s.id
WHERE p.user_id = $1 AND s.status = 'active'
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("calls: list by participant: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("calls: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]CallSession, 0, len(ids))
	for _, id := range ids {
		cs, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, cs)
	}
	return out, nil
}

func (r *SQLRepo) SaveLog(ctx context.Context, log CallLog) error {
	roster, err := json.Marshal(log.Participants)
	if err != nil {
		return fmt.Errorf("calls: marshal log roster: %w", err)
	}
	// Logs are write-once; a conflicting insert indicates a termination-path
	// bug upstream, so surface it instead of overwriting.
	const q = `
INSERT INTO call_logs (call_id, kind, channel_id, workspace_id, initiator_id, participants, duration_seconds, created_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	if _, err := r.db.ExecContext(ctx, q,
		log.CallID, string(log.Kind), log.ChannelID, log.WorkspaceID, log.InitiatorID,
		roster, log.DurationSeconds, log.CreatedAt, log.EndedAt,
	); err != nil {
		return fmt.Errorf("calls: insert log: %w", err)
	}
	return nil
}
