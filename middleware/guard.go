package middleware

import (
	"context"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

type stateContextKey struct{}

// StateFromContext returns the snapshot a guard attached to ctx.
func StateFromContext(ctx context.Context) (goSession.AuthState, bool) {
	st, ok := ctx.Value(stateContextKey{}).(goSession.AuthState)
	return st, ok
}

// RequireSession rejects requests unless the manager holds an authenticated
// session. The snapshot taken for the check is attached to the request context.
func RequireSession(m *goSession.Manager) func(http.Handler) http.Handler {
	return guard(m, func(goSession.AuthState) bool { return true })
}

// RequireModule gates a page on the module table.
func RequireModule(m *goSession.Manager, module string) func(http.Handler) http.Handler {
	return guard(m, func(st goSession.AuthState) bool {
		return m.Permissions().CanAccessModule(st.User, module)
	})
}

// RequirePermission gates a control on the role permission table.
func RequirePermission(m *goSession.Manager, perm string) func(http.Handler) http.Handler {
	return guard(m, func(st goSession.AuthState) bool {
		return m.Permissions().HasPermission(st.User, perm)
	})
}

// RequireAdmin admits ADMIN and INSTITUTE_ADMIN users only.
func RequireAdmin(m *goSession.Manager) func(http.Handler) http.Handler {
	return guard(m, func(st goSession.AuthState) bool {
		return m.Permissions().IsAdmin(st.User)
	})
}

func guard(m *goSession.Manager, allow func(goSession.AuthState) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			st := m.Snapshot()
			if !st.IsAuthenticated() {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if !allow(st) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), stateContextKey{}, st)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
