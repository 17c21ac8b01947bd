package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/auth"
	"github.com/botarena/apiserver/internal/model"
	"github.com/botarena/apiserver/internal/notify"
	"github.com/botarena/apiserver/internal/repository"
)

// UserService implements the account lifecycle: setup, verification, profile
// reads, updates, API keys, and deletion.
type UserService struct {
	users       repository.UserRepository
	orgs        repository.OrganizationRepository
	history     repository.HistoryRepository
	games       repository.GameRepository
	legacy      repository.LegacyRepository
	affiliation *AffiliationService
	notifier    notify.Notifier
	keys        *auth.KeyService
	siteURL     string
	logger      *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	orgs repository.OrganizationRepository,
	history repository.HistoryRepository,
	games repository.GameRepository,
	legacy repository.LegacyRepository,
	affiliation *AffiliationService,
	notifier notify.Notifier,
	keys *auth.KeyService,
	siteURL string,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:       users,
		orgs:        orgs,
		history:     history,
		games:       games,
		legacy:      legacy,
		affiliation: affiliation,
		notifier:    notifier,
		keys:        keys,
		siteURL:     siteURL,
		logger:      logger,
	}
}

// newVerificationCode mints an email verification code.
func newVerificationCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Get returns one user's public profile. viewer, when non-nil, is the
// authenticated caller; a user fetching their own profile additionally sees
// the is_new_user flag.
func (s *UserService) Get(ctx context.Context, id int64, viewer *int64) (*UserProfile, error) {
	row, err := s.users.GetRanked(ctx, id)
	if err != nil {
		return nil, err
	}
	total, err := s.users.TotalRanked(ctx)
	if err != nil {
		return nil, err
	}
	selfView := viewer != nil && *viewer == id
	p := ProjectUser(row, total, selfView)
	return &p, nil
}

// List returns public profiles according to opts.
func (s *UserService) List(ctx context.Context, opts repository.ListOptions) ([]UserProfile, error) {
	rows, err := s.users.ListRanked(ctx, opts)
	if err != nil {
		return nil, err
	}
	total, err := s.users.TotalRanked(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserProfile, 0, len(rows))
	for i := range rows {
		out = append(out, ProjectUser(&rows[i], total, false))
	}
	return out, nil
}

// Season1 returns the archived first-season record matching the user's
// current username.
func (s *UserService) Season1(ctx context.Context, id int64) (*Season1Profile, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	legacy, err := s.legacy.GetByUsername(ctx, user.Username)
	if err != nil {
		return nil, err
	}
	p := ProjectSeason1(legacy)
	return &p, nil
}

// History returns the user's retired bot versions, oldest first. A user with
// no retired bots yields an empty list, not an error.
func (s *UserService) History(ctx context.Context, id int64) ([]HistoryRecord, error) {
	rows, err := s.history.ListByUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return ProjectHistory(rows), nil
}

// VerifyEmail consumes a verification code. A code matching the stored one
// marks the email good and clears the code; repeating the call afterwards is
// a no-op success. Anything else is a validation failure.
func (s *UserService) VerifyEmail(ctx context.Context, userID int64, code string) (string, error) {
	if code == "" {
		return "", apperror.ValidationField("verification_code", "Please provide verification code.")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.VerificationCode != nil && *user.VerificationCode == code {
		good := true
		cleared := ""
		err := s.users.Update(ctx, userID, model.UserChanges{
			IsEmailGood:      &good,
			VerificationCode: &cleared,
		})
		if err != nil {
			return "", err
		}
		return "Email verified.", nil
	}
	if user.IsEmailGood {
		return "Email already verified.", nil
	}
	return "", apperror.ValidationFailed("Invalid verification code.")
}

// ResendVerification re-sends the pending verification email with the code
// already stored on the account.
func (s *UserService) ResendVerification(ctx context.Context, userID int64) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.IsEmailGood {
		return "Email already verified.", nil
	}
	if user.VerificationCode == nil {
		return "", apperror.ValidationFailed("Please finish setting up your account first.")
	}
	email := user.GitHubEmail
	if user.Email != nil {
		email = *user.Email
	}
	s.sendVerification(ctx, user, email, *user.VerificationCode, user.OrganizationID, user.PlayerLevel)
	return "Verification code resent.", nil
}

// Delete removes the account. Every game the user took part in goes first,
// other participants' rows included, so no replay can reference the deleted
// account afterwards. Only the user themselves, or an admin, may delete.
func (s *UserService) Delete(ctx context.Context, callerID, targetID int64, isAdmin bool) error {
	if callerID != targetID && !isAdmin {
		return apperror.UserMismatch()
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return err
	}
	if err := s.games.DeleteByParticipant(ctx, targetID); err != nil {
		return err
	}
	return s.users.Delete(ctx, targetID)
}

// ResetAPIKey mints a fresh API key, stores its hash, and returns the
// "<user_id>:<key>" credential. The plaintext is shown once; previous keys
// stop working immediately.
func (s *UserService) ResetAPIKey(ctx context.Context, callerID, targetID int64) (string, error) {
	if callerID != targetID {
		return "", apperror.UserMismatch()
	}
	plaintext, hash, err := s.keys.Issue()
	if err != nil {
		return "", err
	}
	if err := s.users.Update(ctx, targetID, model.UserChanges{APIKeyHash: &hash}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%s", targetID, plaintext), nil
}

// Subscribe sends the newsletter welcome mail to an address.
func (s *UserService) Subscribe(email string) error {
	if !strings.Contains(email, "@") {
		return apperror.ValidationField("email", "Invalid email.")
	}
	return s.notifier.SendTemplatedSimple(email, notify.TemplateNewSubscriber, notify.GroupNewsletter)
}

// InviteFriend sends an invitation mail on behalf of a logged-in user.
func (s *UserService) InviteFriend(email string) error {
	if !strings.Contains(email, "@") {
		return apperror.ValidationField("email", "Invalid email.")
	}
	return s.notifier.SendTemplatedSimple(email, notify.TemplateInviteFriend, notify.GroupAccomplishments)
}

// sendVerification dispatches the verification email. Callers invoke it only
// after their own writes have committed; a delivery failure is logged and
// never propagated, since the stored code can be re-sent later.
func (s *UserService) sendVerification(ctx context.Context, user *model.User, email, code string, orgID *int64, level model.PlayerLevel) {
	orgName := ""
	if orgID != nil {
		if org, err := s.orgs.GetByID(ctx, *orgID); err == nil {
			orgName = org.Name
		}
	}
	rcpt := notify.Recipient{
		UserID:       user.ID,
		Username:     user.Username,
		Email:        email,
		Organization: orgName,
		Level:        string(level),
		DateCreated:  user.CreationTime,
	}
	url := fmt.Sprintf("%s/verify-email?verification_code=%s&user_id=%d", s.siteURL, code, user.ID)
	extra := map[string]string{"verification_url": url}
	if err := s.notifier.SendTemplated(rcpt, notify.TemplateVerifyEmail, extra, notify.GroupAccomplishments); err != nil {
		s.logger.Warn("verification email not delivered",
			slog.Int64("user_id", user.ID), slog.String("error", err.Error()))
	}
}
