package flows

import "context"

// SwitchFailureKind classifies optimistic switch failures.
type SwitchFailureKind int

const (
	SwitchFailureNone SwitchFailureKind = iota
	SwitchFailureApply
	SwitchFailureConfirm
)

// SwitchDeps captures one optimistic transition. Apply must leave state
// untouched when it fails. Confirm is nil for client-local preferences.
type SwitchDeps struct {
	Apply    func() error
	Confirm  func(ctx context.Context) error
	Rollback func()
	Commit   func()
}

// SwitchResult reports how the transition ended.
type SwitchResult struct {
	Failure SwitchFailureKind
	Err     error
}

// RunSwitch applies, confirms and then commits or rolls back a transition.
// Apply runs to completion before Confirm is called.
func RunSwitch(ctx context.Context, deps SwitchDeps) SwitchResult {
	if err := deps.Apply(); err != nil {
		return SwitchResult{Failure: SwitchFailureApply, Err: err}
	}

	if deps.Confirm != nil {
		if err := deps.Confirm(ctx); err != nil {
			deps.Rollback()
			return SwitchResult{Failure: SwitchFailureConfirm, Err: err}
		}
	}

	if deps.Commit != nil {
		deps.Commit()
	}
	return SwitchResult{}
}
