package httpadapter

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

type sessionContextKey struct{}

type session struct {
	UserID string
	Role   domain.Role
}

func sessionFromContext(ctx context.Context) (session, bool) {
	s, ok := ctx.Value(sessionContextKey{}).(session)
	return s, ok
}

// authed verifies the bearer token and gates on admin approval. Pending or
// rejected accounts can log in but reach nothing behind this except their
// own profile (see authedAnyApproval).
func (rt *Router) authed(next http.HandlerFunc) http.HandlerFunc {
	return rt.verified(next, true)
}

// authedAnyApproval verifies the token but skips the approval gate, so a
// pending account can still see its own standing.
func (rt *Router) authedAnyApproval(next http.HandlerFunc) http.HandlerFunc {
	return rt.verified(next, false)
}

func (rt *Router) verified(next http.HandlerFunc, requireApproved bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, domain.WrapError(domain.ErrUnauthorized, "auth", errors.New("missing bearer token")))
			return
		}

		claims, err := rt.tokens.Verify(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, err)
			return
		}
		if requireApproved && claims.Approval != string(domain.ApprovalApproved) {
			writeError(w, domain.WrapError(domain.ErrForbidden, "auth", errors.New("account not approved")))
			return
		}

		ctx := context.WithValue(r.Context(), sessionContextKey{}, session{
			UserID: claims.Subject,
			Role:   domain.Role(claims.Role),
		})
		next(w, r.WithContext(ctx))
	}
}

func (rt *Router) admin(next http.HandlerFunc) http.HandlerFunc {
	return rt.authed(func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFromContext(r.Context())
		if !ok || s.Role != domain.RoleAdmin {
			writeError(w, domain.WrapError(domain.ErrForbidden, "auth", errors.New("admin role required")))
			return
		}
		next(w, r)
	})
}
