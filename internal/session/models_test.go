package session

import "testing"

func TestStateUpdateApplyPatchesOnlySetFields(t *testing.T) {
	p := Participant{UserID: "u", AudioEnabled: true}

	off := false
	on := true
	StateUpdate{AudioEnabled: &off, ScreenSharing: &on}.Apply(&p)

	if p.AudioEnabled {
		t.Error("audio should be patched off")
	}
	if !p.ScreenSharing {
		t.Error("screen sharing should be patched on")
	}
	if p.VideoEnabled {
		t.Error("video was not in the update and must stay untouched")
	}
}

func TestStateUpdateIsEmpty(t *testing.T) {
	if !(StateUpdate{}).IsEmpty() {
		t.Error("zero update should be empty")
	}
	v := true
	if (StateUpdate{VideoEnabled: &v}).IsEmpty() {
		t.Error("update with a set field should not be empty")
	}
}

func TestRemoveParticipantPreservesOrder(t *testing.T) {
	roster := []Participant{{UserID: "a"}, {UserID: "b"}, {UserID: "c"}}

	out, removed := RemoveParticipant(roster, "b")
	if !removed {
		t.Fatal("b should be removed")
	}
	if len(out) != 2 || out[0].UserID != "a" || out[1].UserID != "c" {
		t.Fatalf("roster = %+v, want [a c]", out)
	}

	out, removed = RemoveParticipant(out, "ghost")
	if removed || len(out) != 2 {
		t.Fatalf("removing a non-member changed the roster: %+v", out)
	}
}

func TestFindParticipant(t *testing.T) {
	roster := []Participant{{UserID: "a"}, {UserID: "b"}}
	if i := FindParticipant(roster, "b"); i != 1 {
		t.Errorf("FindParticipant(b) = %d, want 1", i)
	}
	if i := FindParticipant(roster, "z"); i != -1 {
		t.Errorf("FindParticipant(z) = %d, want -1", i)
	}
}
