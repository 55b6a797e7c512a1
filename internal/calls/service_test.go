package calls

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-platform/internal/broadcast"
	"call-platform/internal/livecache"
	"call-platform/internal/session"
)

type testEnv struct {
	coord *Coordinator
	repo  *MemoryRepo
	cache *livecache.Memory
	sink  *broadcast.MemorySink
	now   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:  NewMemoryRepo(),
		cache: livecache.NewMemory(),
		sink:  broadcast.NewMemorySink(),
		now:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	env.coord = NewCoordinator(env.repo, env.cache, env.sink, nil)
	env.coord.clock = func() time.Time { return env.now }
	return env
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func (e *testEnv) create(t *testing.T, kind Kind, channel, initiator string) CallSession {
	t.Helper()
	cs, err := e.coord.CreateCall(context.Background(), CreateRequest{
		Kind:        kind,
		ChannelID:   channel,
		WorkspaceID: "ws-1",
		InitiatorID: initiator,
	})
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	return cs
}

func TestCreateCallInitiatorIsFirstParticipant(t *testing.T) {
	env := newTestEnv(t)
	cs := env.create(t, KindVideo, "ch-1", "alice")

	if cs.Status != session.StatusActive {
		t.Fatalf("status = %s, want active", cs.Status)
	}
	if len(cs.Participants) != 1 || cs.Participants[0].UserID != "alice" {
		t.Fatalf("roster = %+v, want [alice]", cs.Participants)
	}
	if !cs.Participants[0].VideoEnabled {
		t.Error("video call initiator should start with video enabled")
	}
	if ptr, ok := env.cache.Pointer(livecache.UserActiveCallKey("alice")); !ok || ptr != cs.ID {
		t.Errorf("user pointer = %q, %v; want %q", ptr, ok, cs.ID)
	}
	if got := env.sink.Names(broadcast.CallTopic("ch-1")); len(got) != 1 || got[0] != broadcast.EventCallStarted {
		t.Errorf("events = %v, want [call_started]", got)
	}
}

func TestCreateCallInvalidInput(t *testing.T) {
	env := newTestEnv(t)
	cases := []CreateRequest{
		{Kind: "screen", ChannelID: "ch", WorkspaceID: "ws", InitiatorID: "u"},
		{Kind: KindAudio, WorkspaceID: "ws", InitiatorID: "u"},
		{Kind: KindAudio, ChannelID: "ch", InitiatorID: "u"},
		{Kind: KindAudio, ChannelID: "ch", WorkspaceID: "ws"},
	}
	for _, req := range cases {
		if _, err := env.coord.CreateCall(context.Background(), req); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("CreateCall(%+v) err = %v, want ErrInvalidArgument", req, err)
		}
	}
}

func TestCallLifecycleEventOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")

	if _, err := env.coord.JoinCall(ctx, cs.ID, "bob", JoinOptions{AudioEnabled: true}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	env.advance(90 * time.Second)
	if err := env.coord.LeaveCall(ctx, cs.ID, "bob"); err != nil {
		t.Fatalf("LeaveCall(bob): %v", err)
	}
	if err := env.coord.LeaveCall(ctx, cs.ID, "alice"); err != nil {
		t.Fatalf("LeaveCall(alice): %v", err)
	}

	want := []string{
		broadcast.EventCallStarted,
		broadcast.EventParticipantJoined,
		broadcast.EventParticipantLeft,
		broadcast.EventParticipantLeft,
		broadcast.EventCallEnded,
	}
	got := env.sink.Names(broadcast.CallTopic("ch-1"))
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	logs := env.repo.Logs()
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if logs[0].DurationSeconds != 90 {
		t.Errorf("duration = %d, want 90", logs[0].DurationSeconds)
	}
}

func TestAutoTerminateRosterIncludesLastLeaver(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")

	if err := env.coord.LeaveCall(ctx, cs.ID, "alice"); err != nil {
		t.Fatalf("LeaveCall: %v", err)
	}

	logs := env.repo.Logs()
	if len(logs) != 1 {
		t.Fatalf("logs = %d, want 1", len(logs))
	}
	if len(logs[0].Participants) != 1 || logs[0].Participants[0].UserID != "alice" {
		t.Errorf("final roster = %+v, want [alice]", logs[0].Participants)
	}
	if _, ok := env.cache.Pointer(livecache.UserActiveCallKey("alice")); ok {
		t.Error("alice's pointer should be cleared after auto-terminate")
	}
}

func TestJoinCallAutoLeavesPreviousCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.create(t, KindAudio, "ch-1", "alice")
	if _, err := env.coord.JoinCall(ctx, first.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall(first): %v", err)
	}
	second := env.create(t, KindAudio, "ch-2", "carol")

	if _, err := env.coord.JoinCall(ctx, second.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall(second): %v", err)
	}

	if ptr, ok := env.cache.Pointer(livecache.UserActiveCallKey("bob")); !ok || ptr != second.ID {
		t.Errorf("bob's pointer = %q, %v; want %q", ptr, ok, second.ID)
	}
	got, err := env.repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get(first): %v", err)
	}
	if got.Status != session.StatusActive {
		t.Errorf("first call status = %s, want active (alice is still in it)", got.Status)
	}
	if session.FindParticipant(got.Participants, "bob") >= 0 {
		t.Error("bob should have left the first call")
	}
	if n := env.sink.Count(broadcast.CallTopic("ch-1"), broadcast.EventParticipantLeft); n != 1 {
		t.Errorf("participant_left on ch-1 = %d, want 1", n)
	}
}

func TestJoinCallAutoLeaveTerminatesEmptiedCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.create(t, KindAudio, "ch-1", "alice")
	second := env.create(t, KindAudio, "ch-2", "bob")

	if _, err := env.coord.JoinCall(ctx, second.ID, "alice", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}

	got, err := env.repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get(first): %v", err)
	}
	if got.Status != session.StatusEnded {
		t.Errorf("first call status = %s, want ended", got.Status)
	}
	if n := env.sink.Count(broadcast.CallTopic("ch-1"), broadcast.EventCallEnded); n != 1 {
		t.Errorf("call_ended on ch-1 = %d, want 1", n)
	}
}

func TestJoinCallRejoinKeepsRoster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")

	before := env.cache.TTLRenewals(livecache.ActiveCallKey(cs.ID))
	got, err := env.coord.JoinCall(ctx, cs.ID, "alice", JoinOptions{})
	if err != nil {
		t.Fatalf("JoinCall(rejoin): %v", err)
	}
	if len(got.Participants) != 1 {
		t.Fatalf("roster = %+v, want single entry", got.Participants)
	}
	if after := env.cache.TTLRenewals(livecache.ActiveCallKey(cs.ID)); after != before+1 {
		t.Errorf("ttl renewals = %d, want %d (rejoin must refresh the blob)", after, before+1)
	}
	if n := env.sink.Count(broadcast.CallTopic("ch-1"), broadcast.EventParticipantJoined); n != 0 {
		t.Errorf("participant_joined = %d, want 0 on rejoin", n)
	}
}

func TestEndCallInitiatorOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")
	if _, err := env.coord.JoinCall(ctx, cs.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}

	if err := env.coord.EndCall(ctx, cs.ID, "bob"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("EndCall(bob) err = %v, want ErrPermissionDenied", err)
	}
	if err := env.coord.EndCall(ctx, cs.ID, "alice"); err != nil {
		t.Fatalf("EndCall(alice): %v", err)
	}
}

func TestEndCallSoleRemainingParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")
	if _, err := env.coord.JoinCall(ctx, cs.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	if err := env.coord.LeaveCall(ctx, cs.ID, "alice"); err != nil {
		t.Fatalf("LeaveCall(alice): %v", err)
	}

	// bob is alone now; ending must not require initiator status.
	if err := env.coord.EndCall(ctx, cs.ID, "bob"); err != nil {
		t.Fatalf("EndCall(bob alone): %v", err)
	}
}

func TestEndCallIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")
	env.advance(30 * time.Second)

	if err := env.coord.EndCall(ctx, cs.ID, "alice"); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if err := env.coord.EndCall(ctx, cs.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second EndCall err = %v, want ErrNotFound", err)
	}

	if logs := env.repo.Logs(); len(logs) != 1 {
		t.Errorf("logs = %d, want exactly 1", len(logs))
	}
	if n := env.sink.Count(broadcast.CallTopic("ch-1"), broadcast.EventCallEnded); n != 1 {
		t.Errorf("call_ended = %d, want exactly 1", n)
	}
	if _, ok, _ := env.cache.GetActiveBlob(ctx, livecache.ActiveCallKey(cs.ID)); ok {
		t.Error("active blob should be deleted after termination")
	}
}

func TestUpdateParticipantState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindVideo, "ch-1", "alice")

	on := true
	off := false
	if err := env.coord.UpdateParticipantState(ctx, cs.ID, "alice", session.StateUpdate{
		VideoEnabled:  &off,
		ScreenSharing: &on,
	}); err != nil {
		t.Fatalf("UpdateParticipantState: %v", err)
	}

	got, err := env.coord.GetCall(ctx, cs.ID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	p := got.Participants[0]
	if p.VideoEnabled || !p.ScreenSharing || !p.AudioEnabled {
		t.Errorf("participant = %+v, want video off, screen on, audio untouched", p)
	}
	if n := env.sink.Count(broadcast.CallTopic("ch-1"), broadcast.EventParticipantUpdated); n != 1 {
		t.Errorf("participant_updated = %d, want 1", n)
	}

	if err := env.coord.UpdateParticipantState(ctx, cs.ID, "alice", session.StateUpdate{}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("empty update err = %v, want ErrInvalidArgument", err)
	}
	if err := env.coord.UpdateParticipantState(ctx, cs.ID, "ghost", session.StateUpdate{ScreenSharing: &on}); !errors.Is(err, ErrNotFound) {
		t.Errorf("non-participant update err = %v, want ErrNotFound", err)
	}
}

func TestMutationsRenewBlobTTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")
	key := livecache.ActiveCallKey(cs.ID)

	base := env.cache.TTLRenewals(key)
	if base == 0 {
		t.Fatal("create should write the blob with a TTL")
	}
	if _, err := env.coord.JoinCall(ctx, cs.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	on := true
	if err := env.coord.UpdateParticipantState(ctx, cs.ID, "bob", session.StateUpdate{AudioEnabled: &on}); err != nil {
		t.Fatalf("UpdateParticipantState: %v", err)
	}
	if err := env.coord.LeaveCall(ctx, cs.ID, "bob"); err != nil {
		t.Fatalf("LeaveCall: %v", err)
	}

	if got := env.cache.TTLRenewals(key); got != base+3 {
		t.Errorf("ttl renewals = %d, want %d (every mutation must refresh)", got, base+3)
	}
}

func TestGetCallRepairsMissingCacheEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")

	if err := env.cache.DeleteActiveBlob(ctx, livecache.ActiveCallKey(cs.ID)); err != nil {
		t.Fatalf("DeleteActiveBlob: %v", err)
	}

	got, err := env.coord.GetCall(ctx, cs.ID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.ID != cs.ID || len(got.Participants) != 1 {
		t.Fatalf("GetCall = %+v, want repaired copy of %s", got, cs.ID)
	}
	if _, ok, _ := env.cache.GetActiveBlob(ctx, livecache.ActiveCallKey(cs.ID)); !ok {
		t.Error("cache should be re-primed after a read miss")
	}
}

func TestGetCallEndedIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")
	if err := env.coord.EndCall(ctx, cs.ID, "alice"); err != nil {
		t.Fatalf("EndCall: %v", err)
	}
	if _, err := env.coord.GetCall(ctx, cs.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCall(ended) err = %v, want ErrNotFound", err)
	}
}

func TestLeaveCallNotAParticipant(t *testing.T) {
	env := newTestEnv(t)
	cs := env.create(t, KindAudio, "ch-1", "alice")
	if err := env.coord.LeaveCall(context.Background(), cs.ID, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("LeaveCall(ghost) err = %v, want ErrNotFound", err)
	}
}

func TestForceLeaveAll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")
	if _, err := env.coord.JoinCall(ctx, cs.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}

	if err := env.coord.ForceLeaveAll(ctx, "bob"); err != nil {
		t.Fatalf("ForceLeaveAll: %v", err)
	}
	if _, ok := env.cache.Pointer(livecache.UserActiveCallKey("bob")); ok {
		t.Error("bob's pointer should be cleared")
	}
	got, err := env.repo.Get(ctx, cs.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.FindParticipant(got.Participants, "bob") >= 0 {
		t.Error("bob should be removed from the call")
	}
}

func TestForceLeaveAllSurvivesLostPointer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cs := env.create(t, KindAudio, "ch-1", "alice")
	if _, err := env.coord.JoinCall(ctx, cs.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}

	// Simulate a cache flush: bob is still on the durable roster but his
	// user -> call pointer is gone.
	if err := env.cache.ClearPointer(ctx, livecache.UserActiveCallKey("bob")); err != nil {
		t.Fatalf("ClearPointer: %v", err)
	}

	if err := env.coord.ForceLeaveAll(ctx, "bob"); err != nil {
		t.Fatalf("ForceLeaveAll: %v", err)
	}
	got, err := env.repo.Get(ctx, cs.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if session.FindParticipant(got.Participants, "bob") >= 0 {
		t.Error("bob should be removed despite the missing pointer")
	}
}

func TestForceLeaveAllClearsStalePointer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Pointer refers to a call that no longer exists.
	if err := env.cache.SetPointer(ctx, livecache.UserActiveCallKey("alice"), "gone"); err != nil {
		t.Fatalf("SetPointer: %v", err)
	}
	if err := env.coord.ForceLeaveAll(ctx, "alice"); err != nil {
		t.Fatalf("ForceLeaveAll: %v", err)
	}
	if _, ok := env.cache.Pointer(livecache.UserActiveCallKey("alice")); ok {
		t.Error("stale pointer should be cleared")
	}
}

func TestCreateCallLeavesPreviousCall(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.create(t, KindAudio, "ch-1", "alice")
	if _, err := env.coord.JoinCall(ctx, first.ID, "bob", JoinOptions{}); err != nil {
		t.Fatalf("JoinCall: %v", err)
	}
	second := env.create(t, KindVideo, "ch-2", "bob")

	if ptr, ok := env.cache.Pointer(livecache.UserActiveCallKey("bob")); !ok || ptr != second.ID {
		t.Errorf("bob's pointer = %q, %v; want %q", ptr, ok, second.ID)
	}
	got, err := env.repo.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get(first): %v", err)
	}
	if session.FindParticipant(got.Participants, "bob") >= 0 {
		t.Error("bob should have left the first call before starting a new one")
	}
}
