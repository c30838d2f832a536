package flows

// RehydrateCase classifies the combination of persisted token and profile.
type RehydrateCase int

const (
	// RehydrateLoggedOut: neither a live token nor a user was found.
	RehydrateLoggedOut RehydrateCase = iota
	// RehydrateAuthenticated: a live token and a user were found.
	RehydrateAuthenticated
	// RehydrateExpired: token and user were found but the token has expired.
	RehydrateExpired
	// RehydrateProfileWithoutToken: a user was found without a live token.
	RehydrateProfileWithoutToken
	// RehydrateTokenWithoutUser: a live token was found without a user.
	// The token is kept provisionally; the caller must fetch the profile.
	RehydrateTokenWithoutUser
)

func (c RehydrateCase) String() string {
	switch c {
	case RehydrateAuthenticated:
		return "authenticated"
	case RehydrateExpired:
		return "expired"
	case RehydrateProfileWithoutToken:
		return "profile_without_token"
	case RehydrateTokenWithoutUser:
		return "token_without_user"
	default:
		return "logged_out"
	}
}

// RehydrateInput is everything the reconciler looks at. Absent values are
// zero; a field that failed to parse must be passed as absent with Corrupt set.
type RehydrateInput struct {
	Now int64

	Token       string
	ExpireAt    int64
	HasExpireAt bool

	HasUser bool
	Corrupt bool
}

// RehydrateDeps supplies the two fallbacks the reconciler may use.
type RehydrateDeps struct {
	// ReparseProfile performs a direct read of the raw profile blob and
	// reports whether a user could be recovered from it.
	ReparseProfile func() bool
	// DeriveExpiry extracts an expiry from the token itself.
	DeriveExpiry func(token string) (int64, bool)
}

// RehydrateResult tells the caller which state to adopt and which scopes to clear.
type RehydrateResult struct {
	Case RehydrateCase

	Authenticated bool
	KeepProfile   bool
	KeepToken     bool
	Token         string
	ExpireAt      int64

	// ClearProfile wipes every profile field; ClearIdentity wipes only
	// user, branches and current branch.
	ClearProfile  bool
	ClearIdentity bool
	ClearSession  bool

	UserRecovered bool
	Recovered     bool
}

// RunRehydrate reconciles the persisted token and profile into one outcome.
// It is a pure function of in and the answers of deps.
func RunRehydrate(in RehydrateInput, deps RehydrateDeps) RehydrateResult {
	res := RehydrateResult{Recovered: in.Corrupt}

	hasToken := in.Token != ""
	expireAt, hasExpire := in.ExpireAt, in.HasExpireAt && in.ExpireAt > 0
	if hasToken && !hasExpire && deps.DeriveExpiry != nil {
		expireAt, hasExpire = deps.DeriveExpiry(in.Token)
	}

	hasUser := in.HasUser
	if !hasUser && hasToken && deps.ReparseProfile != nil {
		if deps.ReparseProfile() {
			hasUser = true
			res.UserRecovered = true
		}
	}

	// A token we cannot date is not a live token.
	liveToken := hasToken && hasExpire
	staleSession := (hasToken && !hasExpire) || (!hasToken && in.HasExpireAt)

	switch {
	case liveToken && hasUser:
		if in.Now >= expireAt {
			res.Case = RehydrateExpired
			res.ClearProfile = true
			res.ClearSession = true
			return res
		}
		res.Case = RehydrateAuthenticated
		res.Authenticated = true
		res.KeepProfile = true
		res.KeepToken = true
		res.Token = in.Token
		res.ExpireAt = expireAt
		return res

	case hasUser:
		res.Case = RehydrateProfileWithoutToken
		res.KeepProfile = true
		res.ClearIdentity = true
		res.ClearSession = staleSession
		return res

	case liveToken:
		if in.Now >= expireAt {
			res.Case = RehydrateLoggedOut
			res.ClearSession = true
			return res
		}
		res.Case = RehydrateTokenWithoutUser
		res.KeepProfile = true
		res.KeepToken = true
		res.Token = in.Token
		res.ExpireAt = expireAt
		return res

	default:
		res.Case = RehydrateLoggedOut
		res.KeepProfile = true
		res.ClearSession = staleSession
		return res
	}
}
