package goSession

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/permission"
)

func recv(t *testing.T, sub *Subscription) AuthState {
	t.Helper()
	select {
	case s, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription closed")
		}
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}
	return AuthState{}
}

func TestSubscribePrimesWithCurrentState(t *testing.T) {
	r := newRig(t, nil)
	r.login(t, permission.RoleTeacher)

	sub := r.m.Subscribe(4)
	s := recv(t, sub)
	if !s.IsAuthenticated() || s.User.UserID != 41 {
		t.Fatalf("initial snapshot is not the current state: %+v", s)
	}
}

func TestSubscribeDeliversLatestToSlowSubscriber(t *testing.T) {
	r := newRig(t, nil)
	sub := r.m.Subscribe(1)

	r.login(t, permission.RoleTeacher)
	for _, id := range []int64{10, 30} {
		if e := r.m.SwitchBranch(context.Background(), Branch{BranchID: id}); e != nil {
			t.Fatalf("SwitchBranch failed: %v", e)
		}
	}

	s := recv(t, sub)
	if s.CurrentBranch == nil || s.CurrentBranch.BranchID != 30 {
		t.Fatalf("slow subscriber should see the latest state, got %+v", s.CurrentBranch)
	}
	select {
	case extra := <-sub.C():
		t.Fatalf("unexpected extra snapshot: %+v", extra)
	default:
	}
	if r.m.SnapshotsCoalesced() == 0 {
		t.Fatal("coalesced snapshots not counted")
	}
}

func TestSnapshotsAreIndependentCopies(t *testing.T) {
	r := newRig(t, nil)
	r.login(t, permission.RoleTeacher)

	s := r.m.Snapshot()
	s.User.Role = "HACKED"
	s.Branches[0].BranchName = "HACKED"
	*s.Branches[1].IsDefault = false

	again := r.m.Snapshot()
	if again.User.Role == "HACKED" || again.Branches[0].BranchName == "HACKED" || !again.Branches[1].Default() {
		t.Fatal("snapshot aliases manager state")
	}
}

func TestUnsubscribeAndCloseCloseChannels(t *testing.T) {
	r := newRig(t, nil)

	a := r.m.Subscribe(1)
	b := r.m.Subscribe(1)
	recv(t, a)
	recv(t, b)

	r.m.Unsubscribe(a)
	if _, ok := <-a.C(); ok {
		t.Fatal("unsubscribed channel still open")
	}

	r.m.Close()
	if _, ok := <-b.C(); ok {
		t.Fatal("channel still open after Close")
	}

	late := r.m.Subscribe(1)
	if _, ok := <-late.C(); ok {
		t.Fatal("subscription after Close should be closed")
	}
}
