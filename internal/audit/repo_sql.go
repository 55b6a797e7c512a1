package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// SQLRepo appends audit events to Postgres.
//
// NOTE: assumes an INSERT-only audit_events table:
// (id PK, workspace_id, type, actor_user_id, actor_role, target_user_id,
//  session_id, message, created_at)
type SQLRepo struct {
	db *sql.DB
}

func NewSQLRepo(db *sql.DB) *SQLRepo { return &SQLRepo{db: db} }

func (r *SQLRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, workspace_id, type, actor_user_id, actor_role, target_user_id, session_id, message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	if _, err := r.db.ExecContext(ctx, q,
		e.ID, e.WorkspaceID, string(e.Type), e.ActorUserID, e.ActorRole, e.TargetUserID, e.SessionID, e.Message, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}
