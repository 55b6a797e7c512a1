package huddles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"call-platform/internal/broadcast"
	"call-platform/internal/livecache"
	"call-platform/internal/session"
	"call-platform/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("huddle not found")
	ErrPermissionDenied = errors.New("only the initiator can end this huddle")
	ErrCapacityExceeded = errors.New("huddle is full")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Coordinator owns the lifecycle of HuddleSession objects.
//
// Mutation pattern mirrors the call coordinator, with two extra rules: a
// participant cap, and at most one active huddle per channel. The channel
// pointer is claimed with an atomic set-if-absent so two instances racing to
// start a channel's huddle resolve to exactly one id.
//
// Huddles carry no user -> huddle pointer; membership is implied by channel
// scoping, and administrative force-leave consults the durable store instead.
type Coordinator struct {
	repo  Repository
	cache livecache.Cache
	sink  broadcast.Sink
	locks *utils.KeyedMutex
	log   *slog.Logger

	// clock is injectable for deterministic tests.
	clock   func() time.Time
	blobTTL time.Duration
	maxSize int
}

func NewCoordinator(repo Repository, cache livecache.Cache, sink broadcast.Sink, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		repo:    repo,
		cache:   cache,
		sink:    sink,
		locks:   utils.NewKeyedMutex(),
		log:     log,
		clock:   time.Now,
		blobTTL: livecache.ActiveSessionTTL,
		maxSize: DefaultMaxParticipants,
	}
}

// SetActiveTTL overrides the cached-blob TTL. Zero keeps the default.
func (c *Coordinator) SetActiveTTL(d time.Duration) {
	if d > 0 {
		c.blobTTL = d
	}
}

// SetMaxParticipants overrides the per-huddle cap. Zero keeps the default.
func (c *Coordinator) SetMaxParticipants(n int) {
	if n > 0 {
		c.maxSize = n
	}
}

type participantPayload struct {
	HuddleID    string              `json:"huddle_id"`
	ChannelID   string              `json:"channel_id"`
	Participant session.Participant `json:"participant"`
}

type endedPayload struct {
	HuddleID        string `json:"huddle_id"`
	ChannelID       string `json:"channel_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

// channel-scope lock keys are prefixed to keep them apart from huddle ids.
func channelLockKey(channelID string) string { return "channel:" + channelID }

// StartOrGetChannelHuddle returns the channel's active huddle, creating one
// if none exists. This is the race-free "join or start" entry point: two
// simultaneous first-starters resolve to one huddle id, locally via the
// channel lock and across instances via the atomic pointer claim.
func (c *Coordinator) StartOrGetChannelHuddle(ctx context.Context, channelID, workspaceID, userID string) (HuddleSession, error) {
	if channelID == "" || workspaceID == "" || userID == "" {
		return HuddleSession{}, ErrInvalidArgument
	}

	unlock := c.locks.Lock(channelLockKey(channelID))
	defer unlock()

	if hs, err := c.GetChannelHuddle(ctx, channelID); err == nil {
		return hs, nil
	} else if !errors.Is(err, ErrNotFound) {
		return HuddleSession{}, err
	}
	return c.createLocked(ctx, channelID, workspaceID, userID)
}

func (c *Coordinator) createLocked(ctx context.Context, channelID, workspaceID, initiatorID string) (HuddleSession, error) {
	now := c.clock().UTC()
	hs := HuddleSession{
		ID:              uuid.NewString(),
		ChannelID:       channelID,
		WorkspaceID:     workspaceID,
		InitiatorID:     initiatorID,
		Status:          session.StatusActive,
		MaxParticipants: c.maxSize,
		CreatedAt:       now,
		Participants: []session.Participant{{
			UserID:       initiatorID,
			JoinedAt:     now,
			AudioEnabled: true,
		}},
	}

	// Claim the channel before writing anything else. Losing the claim means
	// another instance created the huddle between our read and now.
	won, err := c.cache.SetPointerIfAbsent(ctx, livecache.ChannelHuddleKey(channelID), hs.ID)
	if err != nil {
		return HuddleSession{}, err
	}
	if !won {
		return c.GetChannelHuddle(ctx, channelID)
	}

	if err := c.repo.Create(ctx, hs); err != nil {
		// Release the claim so the channel is not wedged on a durable failure.
		if cerr := c.cache.ClearPointer(ctx, livecache.ChannelHuddleKey(channelID)); cerr != nil {
			c.log.Warn("channel pointer rollback failed", "channel_id", channelID, "err", cerr)
		}
		return HuddleSession{}, err
	}
	if err := c.writeBlob(ctx, hs); err != nil {
		return HuddleSession{}, err
	}
	if err := c.cache.AddMember(ctx, livecache.HuddleMembersKey(hs.ID), initiatorID); err != nil {
		return HuddleSession{}, err
	}

	c.publish(ctx, channelID, broadcast.EventHuddleStarted, hs)
	return hs, nil
}

// JoinHuddle adds userID unless the huddle is at capacity, in which case the
// roster, membership set, and cardinality are left untouched.
func (c *Coordinator) JoinHuddle(ctx context.Context, huddleID, userID string, opts session.StateUpdate) (HuddleSession, error) {
	if huddleID == "" || userID == "" {
		return HuddleSession{}, ErrInvalidArgument
	}

	unlock := c.locks.Lock(huddleID)
	defer unlock()

	hs, err := c.getActive(ctx, huddleID)
	if err != nil {
		return HuddleSession{}, err
	}

	if i := session.FindParticipant(hs.Participants, userID); i >= 0 {
		if err := c.writeBlob(ctx, hs); err != nil {
			return HuddleSession{}, err
		}
		return hs, nil
	}

	if len(hs.Participants) >= hs.MaxParticipants {
		return HuddleSession{}, ErrCapacityExceeded
	}

	p := session.Participant{
		UserID:       userID,
		JoinedAt:     c.clock().UTC(),
		AudioEnabled: true,
	}
	opts.Apply(&p)

	if err := c.repo.AddParticipant(ctx, huddleID, p); err != nil {
		return HuddleSession{}, err
	}
	hs.Participants = append(hs.Participants, p)

	if err := c.writeBlob(ctx, hs); err != nil {
		return HuddleSession{}, err
	}
	if err := c.cache.AddMember(ctx, livecache.HuddleMembersKey(huddleID), userID); err != nil {
		return HuddleSession{}, err
	}

	c.publish(ctx, hs.ChannelID, broadcast.EventParticipantJoined, participantPayload{
		HuddleID:    huddleID,
		ChannelID:   hs.ChannelID,
		Participant: p,
	})
	return hs, nil
}

// LeaveHuddle removes userID. A huddle whose last participant leaves is
// ended and its channel pointer cleared.
func (c *Coordinator) LeaveHuddle(ctx context.Context, huddleID, userID string) error {
	if huddleID == "" || userID == "" {
		return ErrInvalidArgument
	}

	unlock := c.locks.Lock(huddleID)
	defer unlock()

	hs, err := c.getActive(ctx, huddleID)
	if err != nil {
		return err
	}

	i := session.FindParticipant(hs.Participants, userID)
	if i < 0 {
		return ErrNotFound
	}
	leaving := hs.Participants[i]
	finalRoster := hs.Participants

	if err := c.repo.RemoveParticipant(ctx, huddleID, userID); err != nil {
		return err
	}
	hs.Participants, _ = session.RemoveParticipant(hs.Participants, userID)

	if err := c.cache.RemoveMember(ctx, livecache.HuddleMembersKey(huddleID), userID); err != nil {
		return err
	}

	c.publish(ctx, hs.ChannelID, broadcast.EventParticipantLeft, participantPayload{
		HuddleID:    huddleID,
		ChannelID:   hs.ChannelID,
		Participant: leaving,
	})

	if len(hs.Participants) == 0 {
		return c.terminateLocked(ctx, hs, finalRoster)
	}
	return c.writeBlob(ctx, hs)
}

// EndHuddle force-ends the huddle. While other participants remain, only the
// initiator may do this.
func (c *Coordinator) EndHuddle(ctx context.Context, huddleID, userID string) error {
	if huddleID == "" || userID == "" {
		return ErrInvalidArgument
	}

	unlock := c.locks.Lock(huddleID)
	defer unlock()

	hs, err := c.getActive(ctx, huddleID)
	if err != nil {
		return err
	}

	if userID != hs.InitiatorID {
		for _, p := range hs.Participants {
			if p.UserID != userID {
				return ErrPermissionDenied
			}
		}
	}
	return c.terminateLocked(ctx, hs, hs.Participants)
}

// UpdateParticipantState patches a participant's media flags.
func (c *Coordinator) UpdateParticipantState(ctx context.Context, huddleID, userID string, upd session.StateUpdate) error {
	if huddleID == "" || userID == "" || upd.IsEmpty() {
		return ErrInvalidArgument
	}

	unlock := c.locks.Lock(huddleID)
	defer unlock()

	hs, err := c.getActive(ctx, huddleID)
	if err != nil {
		return err
	}
	i := session.FindParticipant(hs.Participants, userID)
	if i < 0 {
		return ErrNotFound
	}

	upd.Apply(&hs.Participants[i])
	if err := c.repo.UpdateParticipant(ctx, huddleID, hs.Participants[i]); err != nil {
		return err
	}
	if err := c.writeBlob(ctx, hs); err != nil {
		return err
	}

	c.publish(ctx, hs.ChannelID, broadcast.EventParticipantUpdated, participantPayload{
		HuddleID:    huddleID,
		ChannelID:   hs.ChannelID,
		Participant: hs.Participants[i],
	})
	return nil
}

// GetHuddle reads the live view, repairing the cache from the durable store
// on a miss. Ended huddles are not found.
func (c *Coordinator) GetHuddle(ctx context.Context, huddleID string) (HuddleSession, error) {
	if huddleID == "" {
		return HuddleSession{}, ErrInvalidArgument
	}

	if blob, ok, err := c.cache.GetActiveBlob(ctx, livecache.ActiveHuddleKey(huddleID)); err == nil && ok {
		var hs HuddleSession
		if err := json.Unmarshal(blob, &hs); err == nil {
			return hs, nil
		}
		c.log.Warn("corrupt huddle blob, repairing from store", "huddle_id", huddleID)
	} else if err != nil {
		c.log.Warn("huddle blob read failed, falling back to store", "huddle_id", huddleID, "err", err)
	}

	hs, err := c.getActive(ctx, huddleID)
	if err != nil {
		return HuddleSession{}, err
	}
	if err := c.writeBlob(ctx, hs); err != nil {
		c.log.Warn("huddle cache repair failed", "huddle_id", huddleID, "err", err)
	}
	return hs, nil
}

// GetChannelHuddle resolves the channel's active huddle. A pointer whose
// session no longer exists is stale (e.g. a crash between claim and create)
// and is cleared here so the channel does not stay wedged.
func (c *Coordinator) GetChannelHuddle(ctx context.Context, channelID string) (HuddleSession, error) {
	if channelID == "" {
		return HuddleSession{}, ErrInvalidArgument
	}

	ptr, ok, err := c.cache.GetPointer(ctx, livecache.ChannelHuddleKey(channelID))
	if err != nil {
		return HuddleSession{}, err
	}
	if ok {
		hs, err := c.GetHuddle(ctx, ptr)
		if err == nil {
			return hs, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return HuddleSession{}, err
		}
		if cerr := c.cache.ClearPointer(ctx, livecache.ChannelHuddleKey(channelID)); cerr != nil {
			c.log.Warn("stale channel pointer clear failed", "channel_id", channelID, "err", cerr)
		}
	}

	hs, err := c.repo.GetActiveByChannel(ctx, channelID)
	if err != nil {
		return HuddleSession{}, err
	}
	// Read repair: re-prime both the pointer and the blob.
	if _, err := c.cache.SetPointerIfAbsent(ctx, livecache.ChannelHuddleKey(channelID), hs.ID); err != nil {
		c.log.Warn("channel pointer repair failed", "channel_id", channelID, "err", err)
	}
	if err := c.writeBlob(ctx, hs); err != nil {
		c.log.Warn("huddle cache repair failed", "huddle_id", hs.ID, "err", err)
	}
	return hs, nil
}

// ForceLeaveAll detaches userID from every active huddle it participates in.
func (c *Coordinator) ForceLeaveAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidArgument
	}

	list, err := c.repo.ListActiveByParticipant(ctx, userID)
	if err != nil {
		return err
	}
	for _, hs := range list {
		if err := c.LeaveHuddle(ctx, hs.ID, userID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// terminateLocked is the single termination path shared by explicit end and
// auto-end on empty. Callers hold the per-huddle lock.
func (c *Coordinator) terminateLocked(ctx context.Context, hs HuddleSession, finalRoster []session.Participant) error {
	now := c.clock().UTC()
	dur := int(now.Sub(hs.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}

	hs.Status = session.StatusEnded
	hs.EndedAt = &now
	hs.DurationSeconds = dur

	if err := c.repo.Update(ctx, hs); err != nil {
		return err
	}
	if err := c.repo.SaveLog(ctx, HuddleLog{
		HuddleID:        hs.ID,
		ChannelID:       hs.ChannelID,
		WorkspaceID:     hs.WorkspaceID,
		InitiatorID:     hs.InitiatorID,
		Participants:    finalRoster,
		DurationSeconds: dur,
		CreatedAt:       hs.CreatedAt,
		EndedAt:         now,
	}); err != nil {
		return err
	}

	if err := c.cache.DeleteActiveBlob(ctx, livecache.ActiveHuddleKey(hs.ID)); err != nil {
		c.log.Warn("huddle blob delete failed", "huddle_id", hs.ID, "err", err)
	}
	if err := c.cache.ClearMembers(ctx, livecache.HuddleMembersKey(hs.ID)); err != nil {
		c.log.Warn("huddle member set delete failed", "huddle_id", hs.ID, "err", err)
	}
	if err := c.cache.ClearPointer(ctx, livecache.ChannelHuddleKey(hs.ChannelID)); err != nil {
		c.log.Warn("channel pointer clear failed", "channel_id", hs.ChannelID, "err", err)
	}

	c.publish(ctx, hs.ChannelID, broadcast.EventHuddleEnded, endedPayload{
		HuddleID:        hs.ID,
		ChannelID:       hs.ChannelID,
		DurationSeconds: dur,
	})
	return nil
}

func (c *Coordinator) getActive(ctx context.Context, huddleID string) (HuddleSession, error) {
	hs, err := c.repo.Get(ctx, huddleID)
	if err != nil {
		return HuddleSession{}, err
	}
	if hs.Status != session.StatusActive {
		return HuddleSession{}, ErrNotFound
	}
	return hs, nil
}

// writeBlob rewrites the whole-session blob with a fresh TTL. Every mutating
// operation must go through here so the live view cannot expire under an
// active huddle.
func (c *Coordinator) writeBlob(ctx context.Context, hs HuddleSession) error {
	blob, err := json.Marshal(hs)
	if err != nil {
		return fmt.Errorf("huddles: marshal session %s: %w", hs.ID, err)
	}
	return c.cache.SetActiveBlob(ctx, livecache.ActiveHuddleKey(hs.ID), blob, c.blobTTL)
}

func (c *Coordinator) publish(ctx context.Context, channelID, name string, payload any) {
	if err := c.sink.Publish(ctx, broadcast.HuddleTopic(channelID), broadcast.Event{Name: name, Payload: payload}); err != nil {
		c.log.Warn("broadcast failed", "event", name, "channel_id", channelID, "err", err)
	}
}
