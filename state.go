package goSession

// AuthState is an immutable snapshot of the session. Values returned by
// Manager.Snapshot and delivered to subscribers are deep copies.
type AuthState struct {
	User          *User
	Branches      []Branch
	CurrentBranch *Branch
	AcademicYear  *AcademicYear
	AcademicYears []AcademicYear
	Token         TokenState

	Error     *AuthError
	LastError *AuthError

	IsLoading bool
	// Pending is the transition currently holding the slot, if any.
	Pending TransitionKind
	// PendingProfile is set when a live token was restored without a user.
	// The caller must fetch the profile and call UpdateUser, or log out.
	PendingProfile bool

	// Generation increases on every login and logout.
	Generation uint64
	// Now is the epoch millisecond time the snapshot was taken.
	Now int64
}

// IsAuthenticated is derived on every call: a user is present and the token
// has not expired at s.Now. It is never persisted.
func (s AuthState) IsAuthenticated() bool {
	return s.User != nil && s.Token.Valid(s.Now)
}

func (s AuthState) authenticatedAt(now int64) bool {
	return s.User != nil && s.Token.Valid(now)
}

func (s AuthState) IsBranchSwitching() bool {
	return s.Pending == TransitionBranch
}

func (s AuthState) IsAcademicYearSwitching() bool {
	return s.Pending == TransitionAcademicYear
}

func (s AuthState) IsTokenRefreshing() bool {
	return s.Pending == TransitionTokenRefresh
}

// clone deep-copies s so callers cannot alias Manager internals.
func (s AuthState) clone() AuthState {
	out := s
	out.User = cloneUser(s.User)
	out.Branches = cloneBranches(s.Branches)
	out.CurrentBranch = cloneBranch(s.CurrentBranch)
	out.AcademicYear = cloneYear(s.AcademicYear)
	out.AcademicYears = cloneYears(s.AcademicYears)
	out.Error = cloneAuthError(s.Error)
	out.LastError = cloneAuthError(s.LastError)
	return out
}

func cloneUser(u *User) *User {
	if u == nil {
		return nil
	}
	out := *u
	if u.CurrentBranchID != nil {
		id := *u.CurrentBranchID
		out.CurrentBranchID = &id
	}
	return &out
}

func cloneBranch(b *Branch) *Branch {
	if b == nil {
		return nil
	}
	out := copyBranch(*b)
	return &out
}

func copyBranch(b Branch) Branch {
	out := b
	if b.IsDefault != nil {
		v := *b.IsDefault
		out.IsDefault = &v
	}
	if b.Roles != nil {
		out.Roles = append([]string(nil), b.Roles...)
	}
	return out
}

func cloneBranches(in []Branch) []Branch {
	if in == nil {
		return nil
	}
	out := make([]Branch, len(in))
	for i := range in {
		out[i] = copyBranch(in[i])
	}
	return out
}

func cloneYear(y *AcademicYear) *AcademicYear {
	if y == nil {
		return nil
	}
	out := *y
	return &out
}

func cloneYears(in []AcademicYear) []AcademicYear {
	if in == nil {
		return nil
	}
	return append([]AcademicYear(nil), in...)
}

func cloneAuthError(e *AuthError) *AuthError {
	if e == nil {
		return nil
	}
	out := *e
	return &out
}

// findBranch returns the element of branches with id, or nil.
func findBranch(branches []Branch, id int64) *Branch {
	for i := range branches {
		if branches[i].BranchID == id {
			return &branches[i]
		}
	}
	return nil
}

// pickBranch chooses the current branch for a freshly loaded branch list:
// the preferred id when accessible, else the default branch, else the first.
func pickBranch(branches []Branch, preferred *int64) *Branch {
	if len(branches) == 0 {
		return nil
	}
	if preferred != nil {
		if b := findBranch(branches, *preferred); b != nil {
			return cloneBranch(b)
		}
	}
	for i := range branches {
		if branches[i].Default() {
			return cloneBranch(&branches[i])
		}
	}
	return cloneBranch(&branches[0])
}

// reconcileCurrentBranch keeps current only if it is still a member of
// branches, replacing it with the fresh member value.
func reconcileCurrentBranch(current *Branch, branches []Branch) *Branch {
	if current != nil {
		if b := findBranch(branches, current.BranchID); b != nil {
			return cloneBranch(b)
		}
	}
	for i := range branches {
		if branches[i].Default() {
			return cloneBranch(&branches[i])
		}
	}
	return nil
}
