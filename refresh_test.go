package goSession

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/store"
)

func refreshRig(t *testing.T, fn TokenRefresherFunc) *testRig {
	t.Helper()
	r := newRig(t, func(b *Builder) { b.WithTokenRefresher(fn) })
	r.login(t, permission.RoleTeacher)
	return r
}

func TestRefreshTokenSuccess(t *testing.T) {
	var r *testRig
	var seen string
	r = refreshRig(t, func(_ context.Context, rt string) (TokenPair, error) {
		seen = rt
		if !r.m.Snapshot().IsTokenRefreshing() {
			t.Error("expected refresh to hold the slot while in flight")
		}
		return TokenPair{Token: "access-2", RefreshToken: "refresh-2", TokenExpireAt: r.clock.Millis(2 * time.Hour)}, nil
	})

	if !r.m.RefreshTokenAsync(context.Background()) {
		t.Fatalf("refresh failed: %+v", r.m.Snapshot().Error)
	}
	if seen != "refresh-1" {
		t.Fatalf("refresher got %q", seen)
	}

	s := r.m.Snapshot()
	if s.Token.Token != "access-2" || s.Token.RefreshToken != "refresh-2" || s.Token.TokenExpireAt != r.clock.Millis(2*time.Hour) {
		t.Fatalf("unexpected token state: %+v", s.Token)
	}
	if s.Pending != TransitionIdle {
		t.Fatalf("slot not released: %s", s.Pending)
	}
	if v, _ := r.session.raw(t, store.KeyAccessToken); v != "access-2" {
		t.Fatalf("session scope: got %q", v)
	}
	if v, _ := r.session.raw(t, store.KeyRefreshToken); v != "refresh-2" {
		t.Fatalf("session refresh token: got %q", v)
	}
	if got := counter(r.m, MetricRefreshSuccess); got != 1 {
		t.Fatalf("refresh success counter: got %d", got)
	}
}

func TestRefreshTokenKeepsRefreshTokenAndDerivesExpiry(t *testing.T) {
	var token string
	r := refreshRig(t, func(context.Context, string) (TokenPair, error) {
		return TokenPair{Token: token}, nil
	})
	exp := r.clock.Now().Add(20 * time.Minute)
	token = signedToken(t, exp)

	if !r.m.RefreshTokenAsync(context.Background()) {
		t.Fatalf("refresh failed: %+v", r.m.Snapshot().Error)
	}
	s := r.m.Snapshot()
	if s.Token.RefreshToken != "refresh-1" {
		t.Fatalf("refresh token should be kept, got %q", s.Token.RefreshToken)
	}
	if s.Token.TokenExpireAt != exp.UnixMilli() {
		t.Fatalf("expected derived expiry %d, got %d", exp.UnixMilli(), s.Token.TokenExpireAt)
	}
}

func TestRefreshTokenFailures(t *testing.T) {
	tests := []struct {
		name string
		pair TokenPair
		err  error
		want ErrorCode
	}{
		{"invalid", TokenPair{}, fmt.Errorf("%w: revoked", ErrRefreshTokenInvalid), CodeRefreshTokenInvalid},
		{"unavailable", TokenPair{}, errors.New("503"), CodeTokenRefreshFailed},
		{"no expiry", TokenPair{Token: "opaque"}, nil, CodeTokenRefreshFailed},
		{"already expired", TokenPair{Token: "access-2", TokenExpireAt: 1}, nil, CodeTokenRefreshFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := refreshRig(t, func(context.Context, string) (TokenPair, error) {
				return tt.pair, tt.err
			})

			if r.m.RefreshTokenAsync(context.Background()) {
				t.Fatal("expected refresh to fail")
			}
			s := r.m.Snapshot()
			if s.Error == nil || s.Error.Code != tt.want {
				t.Fatalf("expected %s, got %+v", tt.want, s.Error)
			}
			if s.User == nil || s.Token.Token != "access-1" {
				t.Fatal("a failed refresh must not log out or touch the token")
			}
			if s.Pending != TransitionIdle {
				t.Fatalf("slot not released: %s", s.Pending)
			}
			if got := counter(r.m, MetricRefreshFailure); got != 1 {
				t.Fatalf("refresh failure counter: got %d", got)
			}
		})
	}
}

func TestRefreshTokenWithoutRefreshToken(t *testing.T) {
	var calls atomic.Int32
	r := newRig(t, func(b *Builder) {
		b.WithTokenRefresher(TokenRefresherFunc(func(context.Context, string) (TokenPair, error) {
			calls.Add(1)
			return TokenPair{}, nil
		}))
	})
	in := r.loginInput(permission.RoleTeacher)
	in.RefreshToken = ""
	if e := r.m.Login(context.Background(), in); e != nil {
		t.Fatalf("Login failed: %v", e)
	}

	if r.m.RefreshTokenAsync(context.Background()) {
		t.Fatal("refresh must not start without a refresh token")
	}
	if calls.Load() != 0 {
		t.Fatal("refresher was called")
	}
	if r.m.Snapshot().Error != nil {
		t.Fatal("a refresh that never started must not record an error")
	}
}

func TestRefreshTokenDiscardedAfterLogout(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var r *testRig
	r = refreshRig(t, func(context.Context, string) (TokenPair, error) {
		close(entered)
		<-release
		return TokenPair{Token: "access-2", RefreshToken: "refresh-2", TokenExpireAt: r.clock.Millis(time.Hour)}, nil
	})

	done := make(chan bool, 1)
	go func() { done <- r.m.RefreshTokenAsync(context.Background()) }()
	<-entered

	r.m.Logout(context.Background())
	close(release)

	if <-done {
		t.Fatal("stale refresh reported success")
	}
	s := r.m.Snapshot()
	if s.Token.Token != "" || s.User != nil {
		t.Fatalf("stale refresh resurrected the session: %+v", s)
	}
	if r.session.Len() != 0 {
		t.Fatal("stale refresh wrote the session scope")
	}
	if got := counter(r.m, MetricRefreshStale); got != 1 {
		t.Fatalf("stale counter: got %d", got)
	}
}

func TestRefreshTokenBlocksSwitches(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var r *testRig
	r = refreshRig(t, func(context.Context, string) (TokenPair, error) {
		close(entered)
		<-release
		return TokenPair{Token: "access-2", TokenExpireAt: r.clock.Millis(time.Hour)}, nil
	})
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() { done <- r.m.RefreshTokenAsync(ctx) }()
	<-entered

	if r.m.RefreshTokenAsync(ctx) {
		t.Fatal("second refresh started while one was in flight")
	}
	if e := r.m.SwitchBranch(ctx, Branch{BranchID: 10}); e == nil || e.Code != CodeTokenRefreshInProgress {
		t.Fatalf("branch switch: expected %s, got %v", CodeTokenRefreshInProgress, e)
	}
	if e := r.m.SwitchAcademicYear(ctx, AcademicYear{AcademicYearID: 2}); e == nil || e.Code != CodeTokenRefreshInProgress {
		t.Fatalf("year switch: expected %s, got %v", CodeTokenRefreshInProgress, e)
	}

	close(release)
	if !<-done {
		t.Fatalf("refresh failed: %+v", r.m.Snapshot().Error)
	}
	if got := counter(r.m, MetricRefreshRejected); got != 1 {
		t.Fatalf("rejected counter: got %d", got)
	}
}
