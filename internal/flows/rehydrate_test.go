package flows

import "testing"

const testNow = int64(1_700_000_000_000)

func TestRunRehydrateCases(t *testing.T) {
	cases := []struct {
		name      string
		in        RehydrateInput
		deps      RehydrateDeps
		wantCase  RehydrateCase
		wantAuth  bool
		clearProf bool
		clearID   bool
		clearSess bool
	}{
		{
			name:     "clean",
			in:       RehydrateInput{Now: testNow},
			wantCase: RehydrateLoggedOut,
		},
		{
			name:     "live token and user",
			in:       RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow + 60_000, HasExpireAt: true, HasUser: true},
			wantCase: RehydrateAuthenticated,
			wantAuth: true,
		},
		{
			name:      "expired token and user",
			in:        RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow - 1, HasExpireAt: true, HasUser: true},
			wantCase:  RehydrateExpired,
			clearProf: true,
			clearSess: true,
		},
		{
			name:      "expiry equal to now is expired",
			in:        RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow, HasExpireAt: true, HasUser: true},
			wantCase:  RehydrateExpired,
			clearProf: true,
			clearSess: true,
		},
		{
			name:     "user without token",
			in:       RehydrateInput{Now: testNow, HasUser: true},
			wantCase: RehydrateProfileWithoutToken,
			clearID:  true,
		},
		{
			name:      "user with undateable token",
			in:        RehydrateInput{Now: testNow, Token: "t", HasUser: true},
			wantCase:  RehydrateProfileWithoutToken,
			clearID:   true,
			clearSess: true,
		},
		{
			name:     "token without user",
			in:       RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow + 60_000, HasExpireAt: true},
			wantCase: RehydrateTokenWithoutUser,
		},
		{
			name:      "expired token without user",
			in:        RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow - 60_000, HasExpireAt: true},
			wantCase:  RehydrateLoggedOut,
			clearSess: true,
		},
		{
			name:      "orphan expiry",
			in:        RehydrateInput{Now: testNow, ExpireAt: testNow + 60_000, HasExpireAt: true},
			wantCase:  RehydrateLoggedOut,
			clearSess: true,
		},
		{
			name: "expiry derived from token",
			in:   RehydrateInput{Now: testNow, Token: "t", HasUser: true},
			deps: RehydrateDeps{DeriveExpiry: func(string) (int64, bool) {
				return testNow + 1_000, true
			}},
			wantCase: RehydrateAuthenticated,
			wantAuth: true,
		},
		{
			name: "user recovered by reparse",
			in:   RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow + 60_000, HasExpireAt: true},
			deps: RehydrateDeps{ReparseProfile: func() bool { return true }},
			wantCase: RehydrateAuthenticated,
			wantAuth: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := RunRehydrate(tc.in, tc.deps)
			if res.Case != tc.wantCase {
				t.Fatalf("case: got %s want %s", res.Case, tc.wantCase)
			}
			if res.Authenticated != tc.wantAuth {
				t.Fatalf("authenticated: got %v want %v", res.Authenticated, tc.wantAuth)
			}
			if res.ClearProfile != tc.clearProf || res.ClearIdentity != tc.clearID || res.ClearSession != tc.clearSess {
				t.Fatalf("clear flags: got profile=%v identity=%v session=%v", res.ClearProfile, res.ClearIdentity, res.ClearSession)
			}
			if res.Authenticated && (res.Token == "" || res.ExpireAt <= tc.in.Now) {
				t.Fatalf("authenticated result without live token: %+v", res)
			}
		})
	}
}

func TestRunRehydrateReparseOnlyWhenTokenPresent(t *testing.T) {
	calls := 0
	deps := RehydrateDeps{ReparseProfile: func() bool {
		calls++
		return true
	}}

	RunRehydrate(RehydrateInput{Now: testNow}, deps)
	if calls != 0 {
		t.Fatalf("reparse called without token: %d", calls)
	}

	res := RunRehydrate(RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow + 1, HasExpireAt: true}, deps)
	if calls != 1 || !res.UserRecovered {
		t.Fatalf("expected one reparse recovering user, calls=%d res=%+v", calls, res)
	}
}

func TestRunRehydrateCorruptFlagsRecovery(t *testing.T) {
	res := RunRehydrate(RehydrateInput{Now: testNow, Corrupt: true}, RehydrateDeps{})
	if !res.Recovered || res.Case != RehydrateLoggedOut {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunRehydrateDeterministic(t *testing.T) {
	in := RehydrateInput{Now: testNow, Token: "t", ExpireAt: testNow + 5, HasExpireAt: true, HasUser: true}
	first := RunRehydrate(in, RehydrateDeps{})
	for i := 0; i < 100; i++ {
		if got := RunRehydrate(in, RehydrateDeps{}); got != first {
			t.Fatalf("run %d diverged: %+v vs %+v", i, got, first)
		}
	}
}
