// ABOUTME: HTTP access guard enforcing the dual-token session lifecycle
// ABOUTME: Handles expired-access renewal via refresh cookie and role restriction

package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/persception/gateway/internal/store"
)

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "jwt"

// RenewedTokenHeader carries a reissued access token back to the client when
// the guard renews an expired one.
const RenewedTokenHeader = "X-Access-Token"

// ErrorWriter renders an error onto an HTTP response. The webapi package
// supplies its JSON envelope writer.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Guard authenticates requests before they reach protected handlers.
type Guard struct {
	store      store.Store
	issuer     *Issuer
	logger     *slog.Logger
	writeError ErrorWriter
}

// NewGuard creates an access guard.
func NewGuard(st store.Store, issuer *Issuer, writeError ErrorWriter) *Guard {
	return &Guard{
		store:      st,
		issuer:     issuer,
		logger:     slog.Default().With("component", "guard"),
		writeError: writeError,
	}
}

// Require wraps a handler with access-token authentication.
//
// A valid access token admits the request directly. An expired access token
// is renewed without rotating the refresh set when the refresh cookie is
// present, still in the principal's active set, and itself verifies. The
// renewed token is exposed on the RenewedTokenHeader response header.
func (g *Guard) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := bearerToken(r)
		if tokenString == "" {
			g.writeError(w, r, AuthenticationError("you are not logged in"))
			return
		}

		claims, outcome := g.issuer.VerifyAccess(tokenString)
		switch outcome {
		case OutcomeValid:
			p, err := g.resolvePrincipal(r, claims)
			if err != nil {
				g.writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), &AuthContext{Principal: p})))

		case OutcomeExpired:
			g.renew(w, r, next, tokenString)

		default:
			g.logger.Warn("rejected access token", "outcome", outcome.String())
			g.writeError(w, r, AuthenticationError("invalid token, please log in again"))
		}
	})
}

// renew handles the expired-access fallback: the refresh cookie vouches for
// the session and a fresh access token is minted without touching the
// refresh set.
func (g *Guard) renew(w http.ResponseWriter, r *http.Request, next http.Handler, expiredToken string) {
	claims, err := DecodeUnverified(expiredToken)
	if err != nil {
		g.writeError(w, r, AuthenticationError("invalid token, please log in again"))
		return
	}

	p, aerr := g.resolvePrincipal(r, claims)
	if aerr != nil {
		g.writeError(w, r, aerr)
		return
	}

	cookie, cerr := r.Cookie(RefreshCookieName)
	if cerr != nil || cookie.Value == "" {
		g.writeError(w, r, AuthenticationError("session expired, please log in again"))
		return
	}

	known, serr := g.store.HasRefreshToken(r.Context(), p.ID, cookie.Value)
	if serr != nil {
		g.writeError(w, r, InternalError(serr))
		return
	}
	if !known {
		g.logger.Warn("renewal refused, refresh token not in active set", "principal_id", p.ID)
		g.writeError(w, r, AuthenticationError("session expired, please log in again"))
		return
	}

	if _, outcome := g.issuer.VerifyRefresh(cookie.Value); outcome != OutcomeValid {
		g.logger.Warn("renewal refused, refresh token failed verification",
			"principal_id", p.ID, "outcome", outcome.String())
		g.writeError(w, r, AuthenticationError("session expired, please log in again"))
		return
	}

	access, ierr := g.issuer.IssueAccess(p.ID)
	if ierr != nil {
		g.writeError(w, r, InternalError(ierr))
		return
	}

	g.logger.Debug("renewed access token", "principal_id", p.ID)
	w.Header().Set(RenewedTokenHeader, access)
	ctx := WithAuth(r.Context(), &AuthContext{Principal: p, RenewedAccessToken: access})
	next.ServeHTTP(w, r.WithContext(ctx))
}

// resolvePrincipal loads the token's subject and applies the
// password-changed-after-issuance check.
func (g *Guard) resolvePrincipal(r *http.Request, claims *Claims) (*store.Principal, *Error) {
	p, err := g.store.GetPrincipal(r.Context(), claims.PrincipalID)
	if err != nil {
		return nil, AuthenticationError("the account belonging to this token no longer exists")
	}

	if p.PasswordChangedAt != nil && p.PasswordChangedAt.After(claims.IssuedAt) {
		g.logger.Warn("token predates password change", "principal_id", p.ID)
		return nil, AuthenticationError("password was changed recently, please log in again")
	}
	return p, nil
}

// RequireRoles restricts a handler to principals holding one of the given
// roles. It must run inside Require.
func (g *Guard) RequireRoles(roles ...store.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ac := FromContext(r.Context())
			if ac == nil || ac.Principal == nil {
				g.writeError(w, r, AuthenticationError("you are not logged in"))
				return
			}
			for _, role := range roles {
				if ac.Principal.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			g.writeError(w, r, AuthorizationError("you do not have permission to perform this action"))
		})
	}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
