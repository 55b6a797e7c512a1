package calls

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
	ErrNotFound         = errors.New("call not found")
	ErrPermissionDenied = errors.New("only the initiator can end this call")
	ErrInvalidArgument  = errors.New("invalid argument")
)

// Coordinator owns the lifecycle of CallSession objects.
//
// All mutations for a given call id run under a per-id lock, so interleaved
// requests cannot produce lost updates or double termination within this
// process. Across processes the live cache is the only shared mutable state,
// and every invariant-critical cache mutation is a single atomic primitive.
//
// Dual-write order is durable store first, then cache, then broadcast. The
// durable record is authoritative; reads repair a missing cache entry.
type Coordinator struct {
	repo  Repository
	cache livecache.Cache
	sink  broadcast.Sink
	locks *utils.KeyedMutex
	log   *slog.Logger

	// clock is injectable for deterministic tests.
	clock   func() time.Time
	blobTTL time.Duration
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
	}
}

// SetActiveTTL overrides the cached-blob TTL. Zero keeps the default.
func (c *Coordinator) SetActiveTTL(d time.Duration) {
	if d > 0 {
		c.blobTTL = d
	}
}

type CreateRequest struct {
	Kind        Kind   `json:"kind"`
	ChannelID   string `json:"channel_id"`
	WorkspaceID string `json:"workspace_id"`
	InitiatorID string `json:"initiator_id"`
}

type JoinOptions struct {
	AudioEnabled bool `json:"audio_enabled"`
	VideoEnabled bool `json:"video_enabled"`
}

type participantPayload struct {
	CallID      string              `json:"call_id"`
	ChannelID   string              `json:"channel_id"`
	Participant session.Participant `json:"participant"`
}

type endedPayload struct {
	CallID          string `json:"call_id"`
	ChannelID       string `json:"channel_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

// CreateCall starts a new call. There is no uniqueness constraint on calls
// per channel; creation always succeeds for valid input. The initiator joins
// as the first participant.
func (c *Coordinator) CreateCall(ctx context.Context, req CreateRequest) (CallSession, error) {
	if !req.Kind.Valid() || req.ChannelID == "" || req.WorkspaceID == "" || req.InitiatorID == "" {
		return CallSession{}, ErrInvalidArgument
	}

	// Single-membership: if the initiator is still in another call, leave it
	// before creating the new one.
	if err := c.leaveCurrent(ctx, req.InitiatorID, ""); err != nil {
		return CallSession{}, err
	}

	now := c.clock().UTC()
	cs := CallSession{
		ID:          uuid.NewString(),
		Kind:        req.Kind,
		ChannelID:   req.ChannelID,
		WorkspaceID: req.WorkspaceID,
		InitiatorID: req.InitiatorID,
		Status:      session.StatusActive,
		CreatedAt:   now,
		Participants: []session.Participant{{
			UserID:       req.InitiatorID,
			JoinedAt:     now,
			AudioEnabled: true,
			VideoEnabled: req.Kind == KindVideo,
		}},
	}

	if err := c.repo.Create(ctx, cs); err != nil {
		return CallSession{}, err
	}
	if err := c.writeBlob(ctx, cs); err != nil {
		return CallSession{}, err
	}
	if err := c.cache.AddMember(ctx, livecache.CallMembersKey(cs.ID), req.InitiatorID); err != nil {
		return CallSession{}, err
	}
	if err := c.cache.SetPointer(ctx, livecache.UserActiveCallKey(req.InitiatorID), cs.ID); err != nil {
		return CallSession{}, err
	}

	c.publish(ctx, cs.ChannelID, broadcast.EventCallStarted, cs)
	return cs, nil
}

// JoinCall adds userID to the call. If the user is already in a different
// call, that call is left first, so the user -> call index never holds two
// entries for one user.
func (c *Coordinator) JoinCall(ctx context.Context, callID, userID string, opts JoinOptions) (CallSession, error) {
	if callID == "" || userID == "" {
		return CallSession{}, ErrInvalidArgument
	}

	// Leave the previous call before taking the target lock; holding both
	// locks at once could deadlock two users cross-joining each other's calls.
	if err := c.leaveCurrent(ctx, userID, callID); err != nil {
		return CallSession{}, err
	}

	unlock := c.locks.Lock(callID)
	defer unlock()

	cs, err := c.getActive(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}

	if i := session.FindParticipant(cs.Participants, userID); i >= 0 {
		// Rejoin: the roster is unchanged, but the live view and the index
		// are refreshed for the reconnecting client.
		if err := c.writeBlob(ctx, cs); err != nil {
			return CallSession{}, err
		}
		if err := c.cache.SetPointer(ctx, livecache.UserActiveCallKey(userID), callID); err != nil {
			return CallSession{}, err
		}
		return cs, nil
	}

	p := session.Participant{
		UserID:       userID,
		JoinedAt:     c.clock().UTC(),
		AudioEnabled: opts.AudioEnabled,
		VideoEnabled: opts.VideoEnabled,
	}
	if err := c.repo.AddParticipant(ctx, callID, p); err != nil {
		return CallSession{}, err
	}
	cs.Participants = append(cs.Participants, p)

	if err := c.writeBlob(ctx, cs); err != nil {
		return CallSession{}, err
	}
	if err := c.cache.AddMember(ctx, livecache.CallMembersKey(callID), userID); err != nil {
		return CallSession{}, err
	}
	if err := c.cache.SetPointer(ctx, livecache.UserActiveCallKey(userID), callID); err != nil {
		return CallSession{}, err
	}

	c.publish(ctx, cs.ChannelID, broadcast.EventParticipantJoined, participantPayload{
		CallID:      callID,
		ChannelID:   cs.ChannelID,
		Participant: p,
	})
	return cs, nil
}

// LeaveCall removes userID from the call. A call whose last participant
// leaves is ended rather than left dangling.
func (c *Coordinator) LeaveCall(ctx context.Context, callID, userID string) error {
	if callID == "" || userID == "" {
		return ErrInvalidArgument
	}

	unlock := c.locks.Lock(callID)
	defer unlock()
	return c.leaveLocked(ctx, callID, userID)
}

func (c *Coordinator) leaveLocked(ctx context.Context, callID, userID string) error {
	cs, err := c.getActive(ctx, callID)
	if err != nil {
		return err
	}

	i := session.FindParticipant(cs.Participants, userID)
	if i < 0 {
		return ErrNotFound
	}
	leaving := cs.Participants[i]
	finalRoster := cs.Participants

	if err := c.repo.RemoveParticipant(ctx, callID, userID); err != nil {
		return err
	}
	cs.Participants, _ = session.RemoveParticipant(cs.Participants, userID)

	if err := c.cache.RemoveMember(ctx, livecache.CallMembersKey(callID), userID); err != nil {
		return err
	}
	if err := c.cache.ClearPointer(ctx, livecache.UserActiveCallKey(userID)); err != nil {
		return err
	}

	c.publish(ctx, cs.ChannelID, broadcast.EventParticipantLeft, participantPayload{
		CallID:      callID,
		ChannelID:   cs.ChannelID,
		Participant: leaving,
	})

	if len(cs.Participants) == 0 {
		return c.terminateLocked(ctx, cs, finalRoster)
	}
	return c.writeBlob(ctx, cs)
}

// EndCall force-ends the call. While other participants remain, only the
// initiator may do this.
func (c *Coordinator) EndCall(ctx context.Context, callID, userID string) error {
	if callID == "" || userID == "" {
		return ErrInvalidArgument
	}

	unlock := c.locks.Lock(callID)
	defer unlock()

	cs, err := c.getActive(ctx, callID)
	if err != nil {
		return err
	}

	if userID != cs.InitiatorID {
		for _, p := range cs.Participants {
			if p.UserID != userID {
				return ErrPermissionDenied
			}
		}
	}
	return c.terminateLocked(ctx, cs, cs.Participants)
}

// UpdateParticipantState patches a participant's media flags. Callers treat
// it as fire-and-forget; the error is for logging and 404 mapping only.
func (c *Coordinator) UpdateParticipantState(ctx context.Context, callID, userID string, upd session.StateUpdate) error {
	if callID == "" || userID == "" || upd.IsEmpty() {
		return ErrInvalidArgument
	}

	unlock := c.locks.Lock(callID)
	defer unlock()

	cs, err := c.getActive(ctx, callID)
	if err != nil {
		return err
	}
	i := session.FindParticipant(cs.Participants, userID)
	if i < 0 {
		return ErrNotFound
	}

	upd.Apply(&cs.Participants[i])
	if err := c.repo.UpdateParticipant(ctx, callID, cs.Participants[i]); err != nil {
		return err
	}
	if err := c.writeBlob(ctx, cs); err != nil {
		return err
	}

	c.publish(ctx, cs.ChannelID, broadcast.EventParticipantUpdated, participantPayload{
		CallID:      callID,
		ChannelID:   cs.ChannelID,
		Participant: cs.Participants[i],
	})
	return nil
}

// GetCall reads the live view, falling back to the durable store and
// re-priming the cache on a miss. Ended calls are not found.
func (c *Coordinator) GetCall(ctx context.Context, callID string) (CallSession, error) {
	if callID == "" {
		return CallSession{}, ErrInvalidArgument
	}

	if blob, ok, err := c.cache.GetActiveBlob(ctx, livecache.ActiveCallKey(callID)); err == nil && ok {
		var cs CallSession
		if err := json.Unmarshal(blob, &cs); err == nil {
			return cs, nil
		}
		c.log.Warn("corrupt call blob, repairing from store", "call_id", callID)
	} else if err != nil {
		c.log.Warn("call blob read failed, falling back to store", "call_id", callID, "err", err)
	}

	cs, err := c.getActive(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}
	// Read repair: the store is authoritative, the cache converges here.
	if err := c.writeBlob(ctx, cs); err != nil {
		c.log.Warn("call cache repair failed", "call_id", callID, "err", err)
	}
	return cs, nil
}

// ForceLeaveAll unconditionally detaches userID from every active call the
// durable store records for it and clears the user's call index entry. This
// is the administrative escape hatch for clients stuck believing they hold an
// active session; it consults the store rather than the cache pointer so a
// lost pointer cannot hide a stuck membership.
func (c *Coordinator) ForceLeaveAll(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidArgument
	}

	list, err := c.repo.ListActiveByParticipant(ctx, userID)
	if err != nil {
		return err
	}
	for _, cs := range list {
		if err := c.LeaveCall(ctx, cs.ID, userID); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	// The pointer may be stale (session already gone) or orphaned; clear it
	// regardless.
	return c.cache.ClearPointer(ctx, livecache.UserActiveCallKey(userID))
}

// terminateLocked is the single termination path shared by explicit end and
// auto-end on empty. Callers hold the per-call lock; combined with the
// active-status check in getActive this makes termination exactly-once.
func (c *Coordinator) terminateLocked(ctx context.Context, cs CallSession, finalRoster []session.Participant) error {
	now := c.clock().UTC()
	dur := int(now.Sub(cs.CreatedAt).Seconds())
	if dur < 0 {
		dur = 0
	}

	cs.Status = session.StatusEnded
	cs.EndedAt = &now
	cs.DurationSeconds = dur

	if err := c.repo.Update(ctx, cs); err != nil {
		return err
	}
	if err := c.repo.SaveLog(ctx, CallLog{
		CallID:          cs.ID,
		Kind:            cs.Kind,
		ChannelID:       cs.ChannelID,
		WorkspaceID:     cs.WorkspaceID,
		InitiatorID:     cs.InitiatorID,
		Participants:    finalRoster,
		DurationSeconds: dur,
		CreatedAt:       cs.CreatedAt,
		EndedAt:         now,
	}); err != nil {
		return err
	}

	// Cache teardown. The durable record is already terminal; a failed delete
	// here only delays convergence until the blob TTL fires.
	if err := c.cache.DeleteActiveBlob(ctx, livecache.ActiveCallKey(cs.ID)); err != nil {
		c.log.Warn("call blob delete failed", "call_id", cs.ID, "err", err)
	}
	if err := c.cache.ClearMembers(ctx, livecache.CallMembersKey(cs.ID)); err != nil {
		c.log.Warn("call member set delete failed", "call_id", cs.ID, "err", err)
	}
	for _, p := range cs.Participants {
		if err := c.cache.ClearPointer(ctx, livecache.UserActiveCallKey(p.UserID)); err != nil {
			c.log.Warn("call pointer clear failed", "call_id", cs.ID, "user_id", p.UserID, "err", err)
		}
	}

	c.publish(ctx, cs.ChannelID, broadcast.EventCallEnded, endedPayload{
		CallID:          cs.ID,
		ChannelID:       cs.ChannelID,
		DurationSeconds: dur,
	})
	return nil
}

// leaveCurrent detaches userID from its currently indexed call, if that call
// differs from except. Used to keep single-membership across join/create.
func (c *Coordinator) leaveCurrent(ctx context.Context, userID, except string) error {
	ptr, ok, err := c.cache.GetPointer(ctx, livecache.UserActiveCallKey(userID))
	if err != nil {
		return err
	}
	if !ok || ptr == except {
		return nil
	}
	if err := c.LeaveCall(ctx, ptr, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (c *Coordinator) getActive(ctx context.Context, callID string) (CallSession, error) {
	cs, err := c.repo.Get(ctx, callID)
	if err != nil {
		return CallSession{}, err
	}
	if cs.Status != session.StatusActive {
		return CallSession{}, ErrNotFound
	}
	return cs, nil
}

// writeBlob rewrites the whole-session blob with a fresh TTL. Every mutating
// operation must go through here; a mutation that skips the renewal lets the
// live view expire under an active call.
func (c *Coordinator) writeBlob(ctx context.Context, cs CallSession) error {
	blob, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("calls: marshal session %s: %w", cs.ID, err)
	}
	return c.cache.SetActiveBlob(ctx, livecache.ActiveCallKey(cs.ID), blob, c.blobTTL)
}

func (c *Coordinator) publish(ctx context.Context, channelID, name string, payload any) {
	if err := c.sink.Publish(ctx, broadcast.CallTopic(channelID), broadcast.Event{Name: name, Payload: payload}); err != nil {
		c.log.Warn("broadcast failed", "event", name, "channel_id", channelID, "err", err)
	}
}
