package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/auth"
	"github.com/botarena/apiserver/internal/model"
	"github.com/botarena/apiserver/internal/repository"
)

// IdentityProvider is the OAuth surface the login flow needs. Satisfied by
// auth.GitHubProvider.
type IdentityProvider interface {
	Configured() bool
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GitHubUser, error)
}

// LoginService implements the GitHub OAuth login flow.
type LoginService struct {
	users  repository.UserRepository
	github IdentityProvider
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewLoginService(users repository.UserRepository, github IdentityProvider, tokens *auth.TokenService, logger *slog.Logger) *LoginService {
	return &LoginService{users: users, github: github, tokens: tokens, logger: logger}
}

// Configured reports whether OAuth credentials are present.
func (s *LoginService) Configured() bool {
	return s.github.Configured()
}

// AuthURL returns the GitHub redirect URL for the given CSRF state.
func (s *LoginService) AuthURL(state string) string {
	return s.github.AuthURL(state)
}

// HandleCallback finishes the OAuth flow: exchange the code, find or create
// the matching account, and mint a session token. isNew reports that an
// account was created on this login, which sends the browser to account
// setup instead of the profile.
func (s *LoginService) HandleCallback(ctx context.Context, code string) (token string, userID int64, isNew bool, err error) {
	ghUser, err := s.github.Exchange(ctx, code)
	if err != nil {
		return "", 0, false, err
	}

	user, err := s.users.GetByOAuth(ctx, model.ProviderGitHub, ghUser.ID)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		user = &model.User{
			Username:      ghUser.Login,
			OAuthProvider: model.ProviderGitHub,
			OAuthID:       ghUser.ID,
			GitHubEmail:   ghUser.Email,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return "", 0, false, err
		}
		isNew = true
		s.logger.Info("account created via oauth",
			slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	default:
		return "", 0, false, err
	}

	token, err = s.tokens.Generate(user.ID)
	if err != nil {
		return "", 0, false, err
	}
	return token, user.ID, isNew, nil
}
