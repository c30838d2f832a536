package goSession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/permission"
)

// overlapTracker records how many collaborator calls were in flight at once.
type overlapTracker struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (p *overlapTracker) enter() {
	n := p.inFlight.Add(1)
	for {
		cur := p.maxSeen.Load()
		if n <= cur || p.maxSeen.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (p *overlapTracker) exit() { p.inFlight.Add(-1) }

func TestConcurrentTransitionsNeverOverlap(t *testing.T) {
	tracker := &overlapTracker{}
	var calls atomic.Int64
	var r *testRig
	r = newRig(t, func(b *Builder) {
		b.WithBranchConfirmer(BranchConfirmerFunc(func(_ context.Context, id int64) error {
			tracker.enter()
			defer tracker.exit()
			time.Sleep(200 * time.Microsecond)
			if calls.Add(1)%3 == 0 {
				return errors.New("flaky confirm")
			}
			return nil
		}))
		b.WithTokenRefresher(TokenRefresherFunc(func(context.Context, string) (TokenPair, error) {
			tracker.enter()
			defer tracker.exit()
			time.Sleep(200 * time.Microsecond)
			return TokenPair{Token: "access-n", TokenExpireAt: r.clock.Millis(time.Hour)}, nil
		}))
	})
	r.login(t, permission.RoleAccountant)
	ctx := context.Background()

	const workers = 16
	const iterations = 50
	branchIDs := []int64{10, 20, 30}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				switch (w + i) % 4 {
				case 0:
					_ = r.m.SwitchBranch(ctx, Branch{BranchID: branchIDs[(w+i)%len(branchIDs)]})
				case 1:
					_ = r.m.SwitchAcademicYear(ctx, AcademicYear{AcademicYearID: int64(1 + (w+i)%2)})
				case 2:
					_ = r.m.RefreshTokenAsync(ctx)
				default:
					if err := invariantErr(r.m.Snapshot()); err != nil {
						t.Error(err)
					}
				}
			}
		}(w)
	}
	wg.Wait()

	if got := tracker.maxSeen.Load(); got > 1 {
		t.Fatalf("collaborator calls overlapped: max in flight %d", got)
	}
	s := r.m.Snapshot()
	assertInvariants(t, s)
	if s.Pending != TransitionIdle {
		t.Fatalf("slot leaked: %s", s.Pending)
	}
	if !s.IsAuthenticated() {
		t.Fatal("session lost during concurrent transitions")
	}
	if s.User.CurrentBranchID == nil || *s.User.CurrentBranchID != s.CurrentBranch.BranchID {
		t.Fatalf("user current branch %v out of sync with %d", s.User.CurrentBranchID, s.CurrentBranch.BranchID)
	}
}

func TestConcurrentLoginLogoutWithSubscribers(t *testing.T) {
	r := newRig(t, nil)
	ctx := context.Background()

	sub := r.m.Subscribe(2)
	stop := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case s, ok := <-sub.C():
				if !ok {
					return
				}
				if err := invariantErr(s); err != nil {
					t.Error(err)
				}
			case <-stop:
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 40; i++ {
				if (w+i)%2 == 0 {
					_ = r.m.Login(ctx, r.loginInput(permission.RoleTeacher))
				} else {
					r.m.Logout(ctx)
				}
				_ = r.m.CheckSession(ctx)
			}
		}(w)
	}
	wg.Wait()
	close(stop)
	readers.Wait()

	s := r.m.Snapshot()
	if s.Generation != counter(r.m, MetricLogin)+counter(r.m, MetricLogout) {
		t.Fatalf("generation %d does not match logins+logouts", s.Generation)
	}
}
