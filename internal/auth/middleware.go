package auth

import (
	"context"
	"net/http"
)

// SessionCookie is the name of the HttpOnly cookie carrying the session JWT.
const SessionCookie = "token"

// APIKeyHeader carries "<user_id>:<plaintext>" credentials for tooling that
// has no browser session.
const APIKeyHeader = "X-Api-Key"

// contextKey is an unexported type for request-context keys, so no other
// package can read or shadow the identity value.
type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller attached to the request context.
type Identity struct {
	UserID  int64
	IsAdmin bool
	ViaKey  bool // authenticated with an API key rather than a session cookie
}

// CredentialStore is what the middleware needs from storage: the stored
// API-key hash and admin flag for a user. Implemented by the sqlite
// repository.
type CredentialStore interface {
	Credentials(ctx context.Context, userID int64) (apiKeyHash string, isAdmin bool, err error)
}

// Authenticator builds middleware over the token service and credential
// store.
type Authenticator struct {
	tokens *TokenService
	creds  CredentialStore
}

func NewAuthenticator(tokens *TokenService, creds CredentialStore) *Authenticator {
	return &Authenticator{tokens: tokens, creds: creds}
}

// Require enforces authentication. acceptKey controls whether the API-key
// header is honored in addition to the session cookie; endpoints that mutate
// account settings are cookie-only.
func (a *Authenticator) Require(acceptKey bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := a.identify(r, acceptKey)
			if !ok {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
		})
	}
}

// Optional extracts the identity when present but never blocks the request.
// Public read endpoints use this so self-views can carry extra fields.
func (a *Authenticator) Optional(acceptKey bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ident, ok := a.identify(r, acceptKey); ok {
				r = r.WithContext(withIdentity(r.Context(), ident))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin enforces authentication plus the admin flag.
func (a *Authenticator) RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := a.identify(r, true)
			if !ok {
				http.Error(w, `{"error":"unauthorized","message":"valid authentication required"}`, http.StatusUnauthorized)
				return
			}
			if !ident.IsAdmin {
				http.Error(w, `{"error":"forbidden","message":"admin access required"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), ident)))
		})
	}
}

// IdentityFromContext retrieves the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey).(Identity)
	return ident, ok && ident.UserID > 0
}

func withIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey, ident)
}

// identify tries the session cookie first, then (when allowed) the API-key
// header. The admin flag is loaded alongside either path so RequireAdmin
// needs no second lookup.
func (a *Authenticator) identify(r *http.Request, acceptKey bool) (Identity, bool) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if userID, err := a.tokens.Validate(cookie.Value); err == nil {
			_, isAdmin, err := a.creds.Credentials(r.Context(), userID)
			if err != nil {
				return Identity{}, false
			}
			return Identity{UserID: userID, IsAdmin: isAdmin}, true
		}
	}

	if !acceptKey {
		return Identity{}, false
	}

	header := r.Header.Get(APIKeyHeader)
	if header == "" {
		return Identity{}, false
	}
	userID, plaintext, err := ParseKeyHeader(header)
	if err != nil {
		return Identity{}, false
	}
	hash, isAdmin, err := a.creds.Credentials(r.Context(), userID)
	if err != nil || hash == "" {
		return Identity{}, false
	}
	keys := KeyService{cost: defaultCost}
	if err := keys.Verify(hash, plaintext); err != nil {
		return Identity{}, false
	}
	return Identity{UserID: userID, IsAdmin: isAdmin, ViaKey: true}, true
}
