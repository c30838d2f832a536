package goSession

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/store"
)

type fakeFetcher struct {
	failures int
	calls    int
	user     User
	branches []Branch
}

func (f *fakeFetcher) FetchProfile(_ context.Context, token string) (User, []Branch, error) {
	f.calls++
	if f.calls <= f.failures {
		return User{}, nil, errors.New("profile service unavailable")
	}
	return f.user, f.branches, nil
}

// gatedFetcher parks FetchProfile until release is closed, then returns
// user or err.
type gatedFetcher struct {
	entered chan struct{}
	release chan struct{}
	user    User
	err     error
}

func newGatedFetcher(user User, err error) *gatedFetcher {
	return &gatedFetcher{entered: make(chan struct{}, 1), release: make(chan struct{}), user: user, err: err}
}

func (f *gatedFetcher) FetchProfile(_ context.Context, _ string) (User, []Branch, error) {
	f.entered <- struct{}{}
	<-f.release
	if f.err != nil {
		return User{}, nil, f.err
	}
	return f.user, testBranches(), nil
}

// recoverDuring runs a Recover of at most max attempts in the background,
// calls during once the fetch is in flight, then releases the fetch.
func recoverDuring(t *testing.T, r *testRig, fetcher *gatedFetcher, max int, during func()) error {
	t.Helper()
	rec := NewProfileRecovery(r.m, fetcher)
	rec.max = max

	done := make(chan error, 1)
	go func() { done <- rec.Recover(context.Background()) }()

	select {
	case <-fetcher.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}
	during()
	close(fetcher.release)

	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Recover did not return")
	}
	return nil
}

func pendingRig(t *testing.T) *testRig {
	t.Helper()
	clock := newFakeClock()
	profile, session := newFlakyBackend(), newFlakyBackend()
	seedSession(t, session, "access-1", clock.Millis(time.Hour))

	cfg := DefaultConfig()
	cfg.Recovery.Interval = 0
	r := newRigWithStores(t, clock, profile, session, func(b *Builder) { b.WithConfig(cfg) })
	if !r.m.Snapshot().PendingProfile {
		t.Fatal("expected a pending profile")
	}
	return r
}

func TestProfileRecoveryInstallsUser(t *testing.T) {
	r := pendingRig(t)
	fetcher := &fakeFetcher{
		failures: 2,
		user:     User{UserID: 41, Role: "TEACHER"},
		branches: testBranches(),
	}

	if err := NewProfileRecovery(r.m, fetcher).Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if fetcher.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", fetcher.calls)
	}

	s := r.m.Snapshot()
	if s.PendingProfile || !s.IsAuthenticated() {
		t.Fatalf("expected authenticated session, pending=%v", s.PendingProfile)
	}
	if s.CurrentBranch == nil || s.CurrentBranch.BranchID != 20 {
		t.Fatalf("expected default branch, got %+v", s.CurrentBranch)
	}
	if _, ok := r.profile.raw(t, store.KeyProfile); !ok {
		t.Fatal("recovered profile not persisted")
	}
}

func TestProfileRecoveryExhaustedLogsOut(t *testing.T) {
	r := pendingRig(t)
	fetcher := &fakeFetcher{failures: 10}

	err := NewProfileRecovery(r.m, fetcher).Recover(context.Background())
	if !IsRecoveryExhausted(err) {
		t.Fatalf("expected exhaustion, got %v", err)
	}
	if fetcher.calls != DefaultConfig().Recovery.MaxAttempts {
		t.Fatalf("expected %d attempts, got %d", DefaultConfig().Recovery.MaxAttempts, fetcher.calls)
	}

	s := r.m.Snapshot()
	if s.Token.Token != "" || s.PendingProfile {
		t.Fatalf("exhausted recovery must log out: %+v", s)
	}
	if r.session.Len() != 0 {
		t.Fatal("session scope not cleared")
	}
}

func TestProfileRecoveryNoopWithoutPendingProfile(t *testing.T) {
	r := newRig(t, nil)
	fetcher := &fakeFetcher{}
	if err := NewProfileRecovery(r.m, fetcher).Recover(context.Background()); err != nil {
		t.Fatalf("Recover failed: %v", err)
	}
	if fetcher.calls != 0 {
		t.Fatal("fetcher called without a pending profile")
	}
}

func TestProfileRecoveryStopsOnCancel(t *testing.T) {
	r := pendingRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewProfileRecovery(r.m, &fakeFetcher{failures: 10}).Recover(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if !r.m.Snapshot().PendingProfile {
		t.Fatal("cancelled recovery must not log out")
	}
}

func TestProfileRecoveryDiscardsFetchAfterLogin(t *testing.T) {
	r := pendingRig(t)
	fetcher := newGatedFetcher(User{UserID: 99, Role: permission.RoleAdmin}, nil)

	err := recoverDuring(t, r, fetcher, 1, func() {
		in := r.loginInput(permission.RoleTeacher)
		in.Token = "access-B"
		if e := r.m.Login(context.Background(), in); e != nil {
			t.Fatalf("Login failed: %v", e)
		}
	})
	if !errors.Is(err, ErrRecoverySuperseded) {
		t.Fatalf("expected ErrRecoverySuperseded, got %v", err)
	}

	s := r.m.Snapshot()
	assertInvariants(t, s)
	if s.User == nil || s.User.UserID != 41 || s.User.Role != permission.RoleTeacher {
		t.Fatalf("fetched profile replaced the new login: %+v", s.User)
	}
	if s.Token.Token != "access-B" {
		t.Fatalf("token changed: %q", s.Token.Token)
	}
	if r.m.IsAdmin() {
		t.Fatal("stale admin profile leaked into the new session")
	}
	raw, _ := r.profile.raw(t, store.KeyProfile)
	if strings.Contains(raw, `"user_id":99`) {
		t.Fatalf("stale profile persisted: %s", raw)
	}
}

func TestProfileRecoveryDiscardsFetchAfterLogout(t *testing.T) {
	r := pendingRig(t)
	fetcher := newGatedFetcher(User{UserID: 99, Role: permission.RoleAdmin}, nil)

	err := recoverDuring(t, r, fetcher, 1, func() { r.m.Logout(context.Background()) })
	if !errors.Is(err, ErrRecoverySuperseded) {
		t.Fatalf("expected ErrRecoverySuperseded, got %v", err)
	}

	s := r.m.Snapshot()
	if s.User != nil || s.Token.Token != "" || s.PendingProfile {
		t.Fatalf("logout must stick: %+v", s)
	}
	if _, ok := r.profile.raw(t, store.KeyProfile); ok {
		t.Fatal("stale profile written after logout")
	}
}

func TestProfileRecoveryExhaustionSparesNewLogin(t *testing.T) {
	r := pendingRig(t)
	fetcher := newGatedFetcher(User{}, errors.New("profile service unavailable"))

	err := recoverDuring(t, r, fetcher, 1, func() { r.login(t, permission.RoleTeacher) })
	if !errors.Is(err, ErrRecoverySuperseded) || IsRecoveryExhausted(err) {
		t.Fatalf("expected ErrRecoverySuperseded, got %v", err)
	}
	if !r.m.IsAuthenticated() || r.m.Snapshot().User.UserID != 41 {
		t.Fatal("exhausted recovery logged out the new session")
	}
}
