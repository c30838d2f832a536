package goSession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/store"
	"github.com/alicebob/miniredis/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

var errInjected = errors.New("injected store failure")

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Millis(d time.Duration) int64 {
	return c.Now().Add(d).UnixMilli()
}

// flakyBackend is a MemoryBackend whose writes can be made to fail.
type flakyBackend struct {
	*store.MemoryBackend
	failSet atomic.Bool
}

func newFlakyBackend() *flakyBackend {
	return &flakyBackend{MemoryBackend: store.NewMemoryBackend()}
}

func (f *flakyBackend) Set(ctx context.Context, key, value string) error {
	if f.failSet.Load() {
		return errInjected
	}
	return f.MemoryBackend.Set(ctx, key, value)
}

func (f *flakyBackend) raw(t *testing.T, key string) (string, bool) {
	t.Helper()
	v, ok, err := f.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	return v, ok
}

type testRig struct {
	m       *Manager
	clock   *fakeClock
	profile *flakyBackend
	session *flakyBackend
}

// newRig builds a Manager over flaky in-memory stores. configure may adjust
// the builder before Build.
func newRig(t *testing.T, configure func(*Builder)) *testRig {
	t.Helper()
	return newRigWithStores(t, newFakeClock(), newFlakyBackend(), newFlakyBackend(), configure)
}

func newRigWithStores(t *testing.T, clock *fakeClock, profile, session *flakyBackend, configure func(*Builder)) *testRig {
	t.Helper()

	b := New().
		WithStores(profile, session).
		WithClock(clock.Now)
	if configure != nil {
		configure(b)
	}
	m, err := b.Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(m.Close)
	return &testRig{m: m, clock: clock, profile: profile, session: session}
}

// reload builds a second Manager over the same stores, as after a restart.
func (r *testRig) reload(t *testing.T, configure func(*Builder)) *testRig {
	t.Helper()
	return newRigWithStores(t, r.clock, r.profile, r.session, configure)
}

func boolPtr(v bool) *bool { return &v }

func int64Ptr(v int64) *int64 { return &v }

func testBranches() []Branch {
	return []Branch{
		{BranchID: 10, BranchName: "City School", BranchType: BranchSchool},
		{BranchID: 20, BranchName: "Hill College", BranchType: BranchCollege, IsDefault: boolPtr(true)},
		{BranchID: 30, BranchName: "Lake School", BranchType: BranchSchool},
	}
}

func testYears() []AcademicYear {
	return []AcademicYear{
		{AcademicYearID: 1, YearName: "2025-26", StartDate: "2025-06-01", EndDate: "2026-03-31", IsActive: true},
		{AcademicYearID: 2, YearName: "2026-27", StartDate: "2026-06-01", EndDate: "2027-03-31"},
	}
}

func (r *testRig) loginInput(role string) LoginInput {
	return LoginInput{
		User:          User{UserID: 41, FullName: "Ravi Menon", Email: "ravi@example.edu", Role: role, InstituteID: 7},
		Branches:      testBranches(),
		AcademicYears: testYears(),
		Token:         "access-1",
		RefreshToken:  "refresh-1",
		TokenExpireAt: r.clock.Millis(time.Hour),
	}
}

func (r *testRig) login(t *testing.T, role string) {
	t.Helper()
	if e := r.m.Login(context.Background(), r.loginInput(role)); e != nil {
		t.Fatalf("Login failed: %v", e)
	}
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	claims := gojwt.RegisteredClaims{Subject: "41", ExpiresAt: gojwt.NewNumericDate(exp)}
	s, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func assertInvariants(t *testing.T, s AuthState) {
	t.Helper()
	if err := invariantErr(s); err != nil {
		t.Fatal(err)
	}
}

// invariantErr is the goroutine-safe form of assertInvariants.
func invariantErr(s AuthState) error {
	if s.IsAuthenticated() && (s.User == nil || !s.Token.Valid(s.Now)) {
		return fmt.Errorf("authenticated without user or live token: %+v", s)
	}
	if s.CurrentBranch != nil && findBranch(s.Branches, s.CurrentBranch.BranchID) == nil {
		return fmt.Errorf("current branch %d not in branch list", s.CurrentBranch.BranchID)
	}
	return nil
}

func counter(m *Manager, id MetricID) uint64 {
	return m.MetricsSnapshot().Counters[id]
}
