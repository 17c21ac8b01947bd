package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botarena/apiserver/internal/auth"
	"github.com/botarena/apiserver/internal/config"
	"github.com/botarena/apiserver/internal/model"
)

const testSecret = "integration-test-secret-0123"

// newTestServer stands up the full stack on an in-memory database. OAuth and
// SMTP stay unconfigured, so login routes are absent and mail is log-only;
// tests seed users directly and mint their own session cookies.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Config{
		Port:      0,
		DBPath:    ":memory:",
		JWTSecret: testSecret,
		SiteURL:   "http://site.test",
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.db.Close() })
	return s
}

func seedUser(t *testing.T, s *Server, oauthID int64, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username:      username,
		OAuthProvider: model.ProviderGitHub,
		OAuthID:       oauthID,
		GitHubEmail:   username + "@github.example",
	}
	require.NoError(t, s.db.Create(context.Background(), u))
	return u
}

func sessionCookie(t *testing.T, userID int64) *http.Cookie {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)
	token, err := tokens.Generate(userID)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.SessionCookie, Value: token}
}

func doJSON(t *testing.T, s *Server, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func TestGetUser(t *testing.T) {
	s := newTestServer(t)

	rr := doJSON(t, s, "GET", "/user/1", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	u := seedUser(t, s, 1, "alice")
	rr = doJSON(t, s, "GET", "/user/1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var profile map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.EqualValues(t, u.ID, profile["user_id"])
	assert.Equal(t, "alice", profile["username"])
	assert.Nil(t, profile["rank"])
	_, hasNewFlag := profile["is_new_user"]
	assert.False(t, hasNewFlag, "anonymous view must not carry is_new_user")
	_, leaksEmail := profile["email"]
	assert.False(t, leaksEmail, "profiles never expose email addresses")

	// Self-view includes is_new_user.
	rr = doJSON(t, s, "GET", "/user/1", "", sessionCookie(t, u.ID))
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &profile))
	assert.Equal(t, true, profile["is_new_user"])
}

func TestCreateAccountFlow(t *testing.T) {
	s := newTestServer(t)
	u := seedUser(t, s, 1, "bob")

	rr := doJSON(t, s, "POST", "/user/", `{}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	cookie := sessionCookie(t, u.ID)
	rr = doJSON(t, s, "POST", "/user/", `{"level":"University"}`, cookie)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	stored, err := s.db.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Email)
	assert.Equal(t, "bob@github.example", *stored.Email)
	assert.True(t, stored.IsEmailGood)
	assert.Equal(t, model.LevelUniversity, stored.PlayerLevel)

	// Setup is one-shot.
	rr = doJSON(t, s, "POST", "/user/", `{}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestVerifyEmailFlow(t *testing.T) {
	s := newTestServer(t)
	u := seedUser(t, s, 1, "carol")

	notGood := false
	require.NoError(t, s.db.Update(context.Background(), u.ID, model.UserChanges{
		Email:            ptr("carol@example.edu"),
		IsEmailGood:      &notGood,
		VerificationCode: ptr("code-42"),
	}))

	form := func(code string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/user/1/verify", strings.NewReader("verification_code="+code))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		s.Handler().ServeHTTP(rr, req)
		return rr
	}

	rr := form("wrong")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = form("code-42")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email verified.")

	// The same link again succeeds without changing anything.
	rr = form("code-42")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Email already verified.")
}

func TestAPIKeyFlow(t *testing.T) {
	s := newTestServer(t)
	u := seedUser(t, s, 1, "dave")
	cookie := sessionCookie(t, u.ID)

	rr := doJSON(t, s, "POST", "/api_key", "", cookie)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var body struct {
		APIKey string `json:"api_key"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, strings.HasPrefix(body.APIKey, "1:"))

	// The key authenticates endpoints that accept it.
	req := httptest.NewRequest("PUT", "/user/1", strings.NewReader(`{"is_gpu_enabled":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, body.APIKey)
	keyRR := httptest.NewRecorder()
	s.Handler().ServeHTTP(keyRR, req)
	assert.Equal(t, http.StatusOK, keyRR.Code, keyRR.Body.String())

	stored, err := s.db.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsGPUEnabled)

	// A reset invalidates the old key.
	rr = doJSON(t, s, "POST", "/api_key", "", cookie)
	require.Equal(t, http.StatusCreated, rr.Code)

	req = httptest.NewRequest("PUT", "/user/1", strings.NewReader(`{"is_gpu_enabled":false}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.APIKeyHeader, body.APIKey)
	keyRR = httptest.NewRecorder()
	s.Handler().ServeHTTP(keyRR, req)
	assert.Equal(t, http.StatusUnauthorized, keyRR.Code)
}

func TestDeleteUser_AdminOnly(t *testing.T) {
	s := newTestServer(t)
	victim := seedUser(t, s, 1, "victim")
	admin := seedUser(t, s, 2, "root")
	require.NoError(t, s.db.SetAdmin(context.Background(), admin.ID, true))

	rr := doJSON(t, s, "DELETE", "/user/1", "", sessionCookie(t, victim.ID))
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, s, "DELETE", "/user/1", "", sessionCookie(t, admin.ID))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	_, err := s.db.GetByID(context.Background(), victim.ID)
	assert.Error(t, err)
}

func TestListUsers(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		u := seedUser(t, s, i, "player"+string(rune('a'+i-1)))
		require.NoError(t, s.db.SetRating(ctx, u.ID, float64(10*i), 25, 8, int(i)))
	}

	rr := doJSON(t, s, "GET", "/user/?filter=num_submissions,%3E%3D,2&order_by=desc,rank", "", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var users []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &users))
	require.Len(t, users, 2)
	assert.EqualValues(t, 2, users[0]["rank"])
	assert.EqualValues(t, 1, users[1]["rank"])

	rr = doJSON(t, s, "GET", "/user/?filter=api_key_hash,%3D,x", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMeAndLogout(t *testing.T) {
	s := newTestServer(t)
	u := seedUser(t, s, 1, "erin")

	rr := doJSON(t, s, "GET", "/me", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "null", strings.TrimSpace(rr.Body.String()))

	rr = doJSON(t, s, "GET", "/me", "", sessionCookie(t, u.ID))
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]int64
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.EqualValues(t, u.ID, body["user_id"])

	rr = doJSON(t, s, "POST", "/logout", "", sessionCookie(t, u.ID))
	require.Equal(t, http.StatusOK, rr.Code)
	cleared := false
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared, "logout must expire the session cookie")
}

func TestSeason1AndHistory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	u := seedUser(t, s, 1, "veteran")

	rr := doJSON(t, s, "GET", "/user/1/season1", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, s.db.InsertLegacyUser(ctx, &model.LegacyUser{
		UserID: 99, Username: "veteran", Language: "Python",
	}))
	rr = doJSON(t, s, "GET", "/user/1/season1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"userID":99`)

	rr = doJSON(t, s, "GET", "/user/1/history", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rr.Body.String()))
	_ = u
}

func ptr(s string) *string { return &s }
