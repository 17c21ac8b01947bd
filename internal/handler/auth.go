package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/botarena/apiserver/internal/auth"
	"github.com/botarena/apiserver/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler serves the GitHub OAuth flow and session introspection.
type AuthHandler struct {
	login   *service.LoginService
	siteURL string
	logger  *slog.Logger
}

func NewAuthHandler(login *service.LoginService, siteURL string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{login: login, siteURL: siteURL, logger: logger}
}

// HandleLogin serves GET /github: store a CSRF state cookie and send the
// browser to GitHub's authorization page.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.login.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleCallback serves GET /response/github: verify the CSRF state, finish
// the OAuth exchange, set the session cookie, and send the browser either to
// account setup (new accounts) or the profile page.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookie)
	if err != nil || state == "" || cookie.Value != state {
		http.Error(w, "OAuth state mismatch", http.StatusBadRequest)
		return
	}
	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/", MaxAge: -1})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	token, userID, isNew, err := h.login.HandleCallback(r.Context(), code)
	if err != nil {
		h.logger.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Error(w, "Login failed", http.StatusBadGateway)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.SessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("login", slog.Int64("user_id", userID), slog.Bool("new_account", isNew))
	if isNew {
		http.Redirect(w, r, h.siteURL+"/create-account", http.StatusTemporaryRedirect)
		return
	}
	http.Redirect(w, r, h.siteURL+"/user/?me", http.StatusTemporaryRedirect)
}

// HandleMe serves GET /me: `{"user_id": N}` for a live session, JSON null
// otherwise.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("null\n"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"user_id": ident.UserID})
}

// HandleLogout serves POST /logout by expiring the session cookie.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out."})
}
