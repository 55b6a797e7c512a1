package huddles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"call-platform/internal/session"
	"call-platform/pkg/utils"
)

// Repository is the durable-store contract for huddles.
//
// NOTE: The SQL implementation assumes these tables exist:
// - huddle_sessions (id PK, channel_id, workspace_id, initiator_id, status,
//   max_participants, created_at, ended_at NULL, duration_seconds)
// - huddle_participants (huddle_id, user_id, joined_at, audio_enabled,
//   video_enabled, screen_sharing, PRIMARY KEY (huddle_id, user_id))
// - huddle_logs (huddle_id PK, channel_id, workspace_id, initiator_id,
//   participants JSONB, duration_seconds, created_at, ended_at)
type Repository interface {
	Create(ctx context.Context, hs HuddleSession) error
	Get(ctx context.Context, huddleID string) (HuddleSession, error)
	GetActiveByChannel(ctx context.Context, channelID string) (HuddleSession, error)
	Update(ctx context.Context, hs HuddleSession) error
	AddParticipant(ctx context.Context, huddleID string, p session.Participant) error
	RemoveParticipant(ctx context.Context, huddleID, userID string) error
	UpdateParticipant(ctx context.Context, huddleID string, p session.Participant) error
	SaveLog(ctx context.Context, log HuddleLog) error
	// ListActiveByParticipant backs the administrative force-leave path;
	// huddles have no user -> huddle pointer to consult.
	ListActiveByParticipant(ctx context.Context, userID string) ([]HuddleSession, error)
}

// SQLRepo implements Repository on Postgres via database/sql (pgx stdlib).
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

// Create inserts the session row and the initial roster in one transaction,
// so a partially created huddle can never be observed.
func (r *SQLRepo) Create(ctx context.Context, hs HuddleSession) error {
	const sessionQ = `
INSERT INTO huddle_sessions (id, channel_id, workspace_id, initiator_id, status, max_participants, created_at, ended_at, duration_seconds)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, 0)
`
	const participantQ = `
INSERT INTO huddle_participants (huddle_id, user_id, joined_at, audio_enabled, video_enabled, screen_sharing)
VALUES ($1, $2, $3, $4, $5, $6)
`
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, sessionQ,
			hs.ID, hs.ChannelID, hs.WorkspaceID, hs.InitiatorID, string(hs.Status), hs.MaxParticipants, hs.CreatedAt,
		); err != nil {
			return fmt.Errorf("huddles: insert session: %w", err)
		}
		for _, p := range hs.Participants {
			if _, err := tx.ExecContext(ctx, participantQ,
				hs.ID, p.UserID, p.JoinedAt, p.AudioEnabled, p.VideoEnabled, p.ScreenSharing,
			); err != nil {
				return fmt.Errorf("huddles: insert initial participant: %w", err)
			}
		}
		return nil
	})
}

const sessionColumns = `id, channel_id, workspace_id, initiator_id, status, max_participants, created_at, ended_at, duration_seconds`

func (r *SQLRepo) scanSession(row *sql.Row) (HuddleSession, error) {
	var hs HuddleSession
	var endedAt sql.NullTime
	if err := row.Scan(
		&hs.ID,
		&hs.ChannelID,
		&hs.WorkspaceID,
		&hs.InitiatorID,
		&hs.Status,
		&hs.MaxParticipants,
		&hs.CreatedAt,
		&endedAt,
		&hs.DurationSeconds,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return HuddleSession{}, ErrNotFound
		}
		return HuddleSession{}, fmt.Errorf("huddles: scan session: %w", err)
	}
	if endedAt.Valid {
		t := endedAt.Time
		hs.EndedAt = &t
	}
	return hs, nil
}

func (r *SQLRepo) Get(ctx context.Context, huddleID string) (HuddleSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM huddle_sessions WHERE id = $1`
	hs, err := r.scanSession(r.db.QueryRowContext(ctx, q, huddleID))
	if err != nil {
		return HuddleSession{}, err
	}
	return r.withParticipants(ctx, hs)
}

func (r *SQLRepo) GetActiveByChannel(ctx context.Context, channelID string) (HuddleSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM huddle_sessions WHERE channel_id = $1 AND status = 'active' ORDER BY created_at DESC LIMIT 1`
	hs, err := r.scanSession(r.db.QueryRowContext(ctx, q, channelID))
	if err != nil {
		return HuddleSession{}, err
	}
	return r.withParticipants(ctx, hs)
}

func (r *SQLRepo) withParticipants(ctx context.Context, hs HuddleSession) (HuddleSession, error) {
	const q = `
SELECT user_id, joined_at, audio_enabled, video_enabled, screen_sharing
FROM huddle_participants
WHERE huddle_id = $1
ORDER BY joined_at, user_id
`
	rows, err := r.db.QueryContext(ctx, q, hs.ID)
	if err != nil {
		return HuddleSession{}, fmt.Errorf("huddles: list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p session.Participant
		if err := rows.Scan(&p.UserID, &p.JoinedAt, &p.AudioEnabled, &p.VideoEnabled, &p.ScreenSharing); err != nil {
			return HuddleSession{}, fmt.Errorf("huddles: scan participant: %w", err)
		}
		hs.Participants = append(hs.Participants, p)
	}
	return hs, rows.Err()
}

func (r *SQLRepo) Update(ctx context.Context, hs HuddleSession) error {
	const q = `
UPDATE huddle_sessions
SET status = $2, ended_at = $3, duration_seconds = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, hs.ID, string(hs.Status), hs.EndedAt, hs.DurationSeconds)
	if err != nil {
		return fmt.Errorf("huddles: update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepo) AddParticipant(ctx context.Context, huddleID string, p session.Participant) error {
	const q = `
INSERT INTO huddle_participants (huddle_id, user_id, joined_at, audio_enabled, video_enabled, screen_sharing)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (huddle_id, user_id) DO UPDATE
SET audio_enabled = EXCLUDED.audio_enabled,
    video_enabled = EXCLUDED.video_enabled,
    screen_sharing = EXCLUDED.screen_sharing
`
	if _, err := r.db.ExecContext(ctx, q, huddleID, p.UserID, p.JoinedAt, p.AudioEnabled, p.VideoEnabled, p.ScreenSharing); err != nil {
		return fmt.Errorf("huddles: add participant: %w", err)
	}
	return nil
}

func (r *SQLRepo) RemoveParticipant(ctx context.Context, huddleID, userID string) error {
	const q = `DELETE FROM huddle_participants WHERE huddle_id = $1 AND user_id = $2`
	if _, err := r.db.ExecContext(ctx, q, huddleID, userID); err != nil {
		return fmt.Errorf("huddles: remove participant: %w", err)
	}
	return nil
}

func (r *SQLRepo) UpdateParticipant(ctx context.Context, huddleID string, p session.Participant) error {
	const q = `
UPDATE huddle_participants
SET audio_enabled = $3, video_enabled = $4, screen_sharing = $5
WHERE huddle_id = $1 AND user_id = $2
`
	res, err := r.db.ExecContext(ctx, q, huddleID, p.UserID, p.AudioEnabled, p.VideoEnabled, p.ScreenSharing)
	if err != nil {
		return fmt.Errorf("huddles: update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLRepo) SaveLog(ctx context.Context, log HuddleLog) error {
	roster, err := json.Marshal(log.Participants)
	if err != nil {
		return fmt.Errorf("huddles: marshal log roster: %w", err)
	}
	const q = `
INSERT INTO huddle_logs (huddle_id, channel_id, workspace_id, initiator_id, participants, duration_seconds, created_at, ended_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	if _, err := r.db.ExecContext(ctx, q,
		log.HuddleID, log.ChannelID, log.WorkspaceID, log.InitiatorID,
		roster, log.DurationSeconds, log.CreatedAt, log.EndedAt,
	); err != nil {
		return fmt.Errorf("huddles: insert log: %w", err)
	}
	return nil
}

func (r *SQLRepo) ListActiveByParticipant(ctx context.Context, userID string) ([]HuddleSession, error) {
	const q = `
SELECT s.id
FROM huddle_sessions s
JOIN huddle_participants p ON p.huddle_id = s.id
WHERE p.user_id = $1 AND s.status = 'active'
`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("huddles: list by participant: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("huddles: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]HuddleSession, 0, len(ids))
	for _, id := range ids {
		hs, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, hs)
	}
	return out, nil
}
