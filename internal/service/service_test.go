package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/auth"
	"github.com/botarena/apiserver/internal/model"
	"github.com/botarena/apiserver/internal/notify"
	"github.com/botarena/apiserver/internal/repository"
)

// In-memory repository fakes. Update applies the same partial-change
// semantics as the sqlite implementation so lifecycle tests exercise the
// real rules.

type mockUsers struct {
	users  map[int64]*model.User
	nextID int64
}

func newMockUsers() *mockUsers {
	return &mockUsers{users: make(map[int64]*model.User)}
}

func (m *mockUsers) Create(_ context.Context, u *model.User) error {
	m.nextID++
	u.ID = m.nextID
	u.CreationTime = time.Now().UTC()
	if u.PlayerLevel == "" {
		u.PlayerLevel = model.LevelProfessional
	}
	stored := *u
	m.users[u.ID] = &stored
	return nil
}

func (m *mockUsers) GetByID(_ context.Context, id int64) (*model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("No user found.")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUsers) GetByOAuth(_ context.Context, provider model.OAuthProvider, oauthID int64) (*model.User, error) {
	for _, u := range m.users {
		if u.OAuthProvider == provider && u.OAuthID == oauthID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperror.NotFound("No user found.")
}

func (m *mockUsers) GetRanked(_ context.Context, id int64) (*model.RankedUser, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("No user found.")
	}
	return &model.RankedUser{
		UserID:         u.ID,
		Username:       u.Username,
		PlayerLevel:    u.PlayerLevel,
		OrganizationID: u.OrganizationID,
		NumSubmissions: u.NumSubmissions,
		Score:          u.Score,
		IsEmailGood:    u.IsEmailGood,
		IsGPUEnabled:   u.IsGPUEnabled,
		PersonalEmail:  u.Email,
	}, nil
}

func (m *mockUsers) ListRanked(_ context.Context, _ repository.ListOptions) ([]model.RankedUser, error) {
	var out []model.RankedUser
	for id := range m.users {
		r, _ := m.GetRanked(context.Background(), id)
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockUsers) TotalRanked(_ context.Context) (int, error) {
	n := 0
	for _, u := range m.users {
		if u.NumSubmissions > 0 {
			n++
		}
	}
	return n, nil
}

func (m *mockUsers) Update(_ context.Context, id int64, changes model.UserChanges) error {
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("No user found.")
	}
	if changes.PlayerLevel != nil {
		u.PlayerLevel = *changes.PlayerLevel
	}
	if changes.SetCountry {
		u.CountryCode = copyPtr(changes.CountryCode)
		u.CountrySubdivisionCode = copyPtr(changes.CountrySubdivisionCode)
	}
	if changes.SetOrganization {
		if changes.OrganizationID != nil {
			v := *changes.OrganizationID
			u.OrganizationID = &v
		} else {
			u.OrganizationID = nil
		}
	}
	if changes.Email != nil {
		u.Email = copyPtr(changes.Email)
	}
	if changes.IsEmailGood != nil {
		u.IsEmailGood = *changes.IsEmailGood
	}
	if changes.VerificationCode != nil {
		if *changes.VerificationCode == "" {
			u.VerificationCode = nil
		} else {
			u.VerificationCode = copyPtr(changes.VerificationCode)
		}
	}
	if changes.IsGPUEnabled != nil {
		u.IsGPUEnabled = *changes.IsGPUEnabled
	}
	if changes.APIKeyHash != nil {
		u.APIKeyHash = copyPtr(changes.APIKeyHash)
	}
	return nil
}

func (m *mockUsers) Delete(_ context.Context, id int64) error {
	delete(m.users, id)
	return nil
}

func copyPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

type mockOrgs struct {
	orgs    map[int64]*model.Organization
	domains map[int64][]string
}

func newMockOrgs() *mockOrgs {
	return &mockOrgs{
		orgs:    make(map[int64]*model.Organization),
		domains: make(map[int64][]string),
	}
}

func (m *mockOrgs) add(id int64, name string, kind model.OrganizationKind, code *string, domains ...string) {
	m.orgs[id] = &model.Organization{ID: id, Name: name, Kind: kind, VerificationCode: code}
	m.domains[id] = domains
}

func (m *mockOrgs) GetByID(_ context.Context, id int64) (*model.Organization, error) {
	org, ok := m.orgs[id]
	if !ok {
		return nil, apperror.NotFound("This organization does not exist.")
	}
	cp := *org
	return &cp, nil
}

func (m *mockOrgs) CountDomainMatches(_ context.Context, orgID int64, keys []string) (int, error) {
	n := 0
	for _, d := range m.domains[orgID] {
		for _, k := range keys {
			if d == k {
				n++
			}
		}
	}
	return n, nil
}

func (m *mockOrgs) FindByDomains(_ context.Context, keys []string) (*model.Organization, error) {
	var best *model.Organization
	for id, domains := range m.domains {
		for _, d := range domains {
			for _, k := range keys {
				if d == k && (best == nil || id < best.ID) {
					best = m.orgs[id]
				}
			}
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

type mockHistory struct {
	rows map[int64][]model.BotHistory
}

func (m *mockHistory) ListByUser(_ context.Context, userID int64) ([]model.BotHistory, error) {
	return m.rows[userID], nil
}

type mockGames struct {
	deletedFor []int64
}

func (m *mockGames) Insert(_ context.Context, _ *model.Game, _ []model.GameParticipant) error {
	return nil
}

func (m *mockGames) DeleteByParticipant(_ context.Context, userID int64) error {
	m.deletedFor = append(m.deletedFor, userID)
	return nil
}

func (m *mockGames) CountGames(_ context.Context) (int, error) { return 0, nil }

type mockLegacy struct {
	rows map[string]*model.LegacyUser
}

func (m *mockLegacy) GetByUsername(_ context.Context, username string) (*model.LegacyUser, error) {
	u, ok := m.rows[username]
	if !ok {
		return nil, apperror.NotFound("No user found for season 1.")
	}
	cp := *u
	return &cp, nil
}

// fakeNotifier records sends instead of delivering them.
type templatedSend struct {
	Recipient  notify.Recipient
	TemplateID string
	Extra      map[string]string
	GroupID    int
}

type fakeNotifier struct {
	templated []templatedSend
	simple    []string
}

func (f *fakeNotifier) Send(_, _, _, _ string) error { return nil }

func (f *fakeNotifier) SendTemplated(r notify.Recipient, templateID string, extra map[string]string, groupID int) error {
	f.templated = append(f.templated, templatedSend{r, templateID, extra, groupID})
	return nil
}

func (f *fakeNotifier) SendTemplatedSimple(toEmail, templateID string, groupID int) error {
	f.simple = append(f.simple, toEmail+":"+templateID)
	return nil
}

type testEnv struct {
	svc      *UserService
	users    *mockUsers
	orgs     *mockOrgs
	games    *mockGames
	notifier *fakeNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	users := newMockUsers()
	orgs := newMockOrgs()
	games := &mockGames{}
	notifier := &fakeNotifier{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewUserService(
		users, orgs,
		&mockHistory{rows: make(map[int64][]model.BotHistory)},
		games,
		&mockLegacy{rows: make(map[string]*model.LegacyUser)},
		NewAffiliationService(orgs),
		notifier,
		auth.NewKeyServiceForTest(),
		"http://site.test",
		logger,
	)
	return &testEnv{svc: svc, users: users, orgs: orgs, games: games, notifier: notifier}
}

// newSetupUser stores a user fresh off OAuth first-login: provider email
// known, no personal email, nothing verified yet.
func (e *testEnv) newSetupUser(t *testing.T, username, githubEmail string) *model.User {
	t.Helper()
	u := &model.User{
		Username:      username,
		OAuthProvider: model.ProviderGitHub,
		OAuthID:       e.users.nextID + 1000,
		GitHubEmail:   githubEmail,
	}
	if err := e.users.Create(context.Background(), u); err != nil {
		t.Fatalf("creating test user: %v", err)
	}
	return u
}
