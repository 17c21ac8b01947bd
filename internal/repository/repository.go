// Package repository defines the storage interfaces the service layer
// programs against. The sqlite subpackage provides the implementation.
package repository

import (
	"context"

	"github.com/botarena/apiserver/internal/model"
)

// FilterOp is a comparison operator accepted by the user listing.
type FilterOp string

const (
	OpEq  FilterOp = "="
	OpNe  FilterOp = "!="
	OpLt  FilterOp = "<"
	OpLte FilterOp = "<="
	OpGt  FilterOp = ">"
	OpGte FilterOp = ">="
)

// Filter is one field comparison in a listing query. Field names are
// projection names ("level", "num_games"), translated to columns by the
// implementation against an allow-list.
type Filter struct {
	Field string
	Op    FilterOp
	Value string
}

// Sort orders a listing by one field.
type Sort struct {
	Field string
	Desc  bool
}

// ListOptions carries pagination, filtering, and ordering for ListRanked.
type ListOptions struct {
	Limit   int
	Offset  int
	Filters []Filter
	Sort    []Sort
}

// UserRepository reads and writes account rows.
type UserRepository interface {
	// Create inserts a minimal user at OAuth first-login and fills in
	// u.ID and u.CreationTime.
	Create(ctx context.Context, u *model.User) error

	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByOAuth(ctx context.Context, provider model.OAuthProvider, oauthID int64) (*model.User, error)

	// GetRanked returns the joined projection row for one user.
	GetRanked(ctx context.Context, id int64) (*model.RankedUser, error)

	// ListRanked returns projection rows according to opts. Unknown filter
	// or sort fields yield a validation error.
	ListRanked(ctx context.Context, opts ListOptions) ([]model.RankedUser, error)

	// TotalRanked counts users that appear on the leaderboard.
	TotalRanked(ctx context.Context) (int, error)

	// Update applies a partial change set to one user row.
	Update(ctx context.Context, id int64, changes model.UserChanges) error

	Delete(ctx context.Context, id int64) error
}

// OrganizationRepository reads organization rows and their domain lists.
type OrganizationRepository interface {
	GetByID(ctx context.Context, id int64) (*model.Organization, error)

	// CountDomainMatches counts the organization's registered domains equal
	// to any of the given keys.
	CountDomainMatches(ctx context.Context, orgID int64, keys []string) (int, error)

	// FindByDomains returns the first organization with a registered domain
	// equal to any key, or nil when none matches.
	FindByDomains(ctx context.Context, keys []string) (*model.Organization, error)
}

// HistoryRepository reads the append-only bot history.
type HistoryRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]model.BotHistory, error)
}

// GameRepository handles the game rows touched by account deletion.
type GameRepository interface {
	// Insert records a finished game with its participants. Normally fed by
	// the game coordinator; exposed here for provisioning and tests.
	Insert(ctx context.Context, g *model.Game, participants []model.GameParticipant) error

	// DeleteByParticipant removes every game the user took part in,
	// participants of other users included.
	DeleteByParticipant(ctx context.Context, userID int64) error

	CountGames(ctx context.Context) (int, error)
}

// LegacyRepository reads season-1 leaderboard rows.
type LegacyRepository interface {
	GetByUsername(ctx context.Context, username string) (*model.LegacyUser, error)
}
