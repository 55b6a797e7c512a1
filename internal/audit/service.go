package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only; there are no update or delete methods.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// Audit is internal-only; do not expose these records to workspace users by
// default. Callers treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogForceLeave records an administrative force-leave of a user's sessions.
func (s *Service) LogForceLeave(ctx context.Context, workspaceID, actorUserID, actorRole, targetUserID string) error {
	return s.Append(ctx, Event{
		WorkspaceID:  workspaceID,
		Type:         EventTypeForceLeave,
		ActorUserID:  actorUserID,
		ActorRole:    actorRole,
		TargetUserID: targetUserID,
		Message:      "force-leave all sessions",
	})
}
