package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/model"
	"github.com/botarena/apiserver/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// rankedSelect joins users with their organization name and leaderboard rank.
// Rank is computed over users with at least one submission; everyone else
// scans as NULL.
const rankedSelect = `
	SELECT u.id, u.username, u.player_level,
	       u.organization_id, o.organization_name,
	       u.country_code, u.country_subdivision_code,
	       u.num_bots, u.num_submissions, u.num_games,
	       u.score, u.mu, u.sigma, r.rank,
	       u.is_email_good, u.is_gpu_enabled, u.email
	FROM users u
	LEFT JOIN organizations o ON o.id = u.organization_id
	LEFT JOIN (
		SELECT id, RANK() OVER (ORDER BY score DESC) AS rank
		FROM users WHERE num_submissions > 0
	) r ON r.id = u.id`

// listFields maps projection field names accepted by the listing API onto
// SQL expressions of rankedSelect. Anything not in this map is rejected.
var listFields = map[string]string{
	"user_id":         "u.id",
	"username":        "u.username",
	"level":           "u.player_level",
	"organization_id": "u.organization_id",
	"num_bots":        "u.num_bots",
	"num_submissions": "u.num_submissions",
	"num_games":       "u.num_games",
	"rank":            "r.rank",
}

// Create inserts a minimal account row at OAuth first-login and fills in the
// generated ID and creation time.
func (db *DB) Create(ctx context.Context, u *model.User) error {
	u.CreationTime = time.Now().UTC().Truncate(time.Second)
	if u.PlayerLevel == "" {
		u.PlayerLevel = model.LevelProfessional
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, oauth_provider, oauth_id, github_email, player_level, creation_time)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.Username, int(u.OAuthProvider), u.OAuthID, u.GitHubEmail, string(u.PlayerLevel), u.CreationTime,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user (oauthID=%d): %w", u.OAuthID, err)
	}

	u.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted user id: %w", err)
	}
	return nil
}

const userColumns = `id, username, oauth_provider, oauth_id, github_email, email,
	is_email_good, is_admin, verification_code, organization_id, player_level,
	country_code, country_subdivision_code, score, mu, sigma,
	num_bots, num_submissions, num_games, api_key_hash, is_gpu_enabled, creation_time`

func (db *DB) scanUser(row *sql.Row) (*model.User, error) {
	var (
		u        model.User
		provider int
		level    string
	)
	err := row.Scan(
		&u.ID, &u.Username, &provider, &u.OAuthID, &u.GitHubEmail, &u.Email,
		&u.IsEmailGood, &u.IsAdmin, &u.VerificationCode, &u.OrganizationID, &level,
		&u.CountryCode, &u.CountrySubdivisionCode, &u.Score, &u.Mu, &u.Sigma,
		&u.NumBots, &u.NumSubmissions, &u.NumGames, &u.APIKeyHash, &u.IsGPUEnabled,
		&u.CreationTime,
	)
	if err != nil {
		return nil, err
	}
	u.OAuthProvider = model.OAuthProvider(provider)
	u.PlayerLevel = model.PlayerLevel(level)
	return &u, nil
}

// GetByID retrieves a user by their ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := db.scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("No user found.")
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetByOAuth looks up a user by identity provider and the provider's user ID.
func (db *DB) GetByOAuth(ctx context.Context, provider model.OAuthProvider, oauthID int64) (*model.User, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE oauth_provider = ? AND oauth_id = ?`,
		int(provider), oauthID)
	u, err := db.scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("No user found.")
		}
		return nil, fmt.Errorf("sqlite: getting user by oauth (%d,%d): %w", provider, oauthID, err)
	}
	return u, nil
}

func scanRanked(scan func(dest ...any) error) (*model.RankedUser, error) {
	var (
		r     model.RankedUser
		level string
		rank  sql.NullInt64
	)
	err := scan(
		&r.UserID, &r.Username, &level,
		&r.OrganizationID, &r.OrganizationName,
		&r.CountryCode, &r.CountrySubdivisionCode,
		&r.NumBots, &r.NumSubmissions, &r.NumGames,
		&r.Score, &r.Mu, &r.Sigma, &rank,
		&r.IsEmailGood, &r.IsGPUEnabled, &r.PersonalEmail,
	)
	if err != nil {
		return nil, err
	}
	r.PlayerLevel = model.PlayerLevel(level)
	if rank.Valid {
		v := int(rank.Int64)
		r.Rank = &v
	}
	return &r, nil
}

// GetRanked returns the joined projection row for one user.
func (db *DB) GetRanked(ctx context.Context, id int64) (*model.RankedUser, error) {
	row := db.conn.QueryRowContext(ctx, rankedSelect+` WHERE u.id = ?`, id)
	r, err := scanRanked(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("No user found.")
		}
		return nil, fmt.Errorf("sqlite: getting ranked user %d: %w", id, err)
	}
	return r, nil
}

// ListRanked returns projection rows filtered, sorted, and paginated per
// opts. Filter and sort fields outside the allow-list yield a validation
// error rather than being interpolated into SQL.
func (db *DB) ListRanked(ctx context.Context, opts repository.ListOptions) ([]model.RankedUser, error) {
	where := sq.And{}
	for _, f := range opts.Filters {
		col, ok := listFields[f.Field]
		if !ok {
			return nil, apperror.ValidationField(f.Field, fmt.Sprintf("Cannot filter on '%s'.", f.Field))
		}
		switch f.Op {
		case repository.OpEq, repository.OpNe, repository.OpLt,
			repository.OpLte, repository.OpGt, repository.OpGte:
		default:
			return nil, apperror.ValidationFailed(fmt.Sprintf("Invalid filter operation '%s'.", f.Op))
		}
		where = append(where, sq.Expr(fmt.Sprintf("%s %s ?", col, f.Op), f.Value))
	}

	// squirrel builds the WHERE clause over the fixed joined select; the
	// rest of the statement is assembled around it.
	sqlStr := rankedSelect
	args := []any{}
	if len(where) > 0 {
		wsql, wargs, err := where.ToSql()
		if err != nil {
			return nil, fmt.Errorf("sqlite: building list filter: %w", err)
		}
		sqlStr += " WHERE " + wsql
		args = append(args, wargs...)
	}

	if len(opts.Sort) > 0 {
		sqlStr += " ORDER BY "
		for i, s := range opts.Sort {
			col, ok := listFields[s.Field]
			if !ok {
				return nil, apperror.ValidationField(s.Field, fmt.Sprintf("Cannot sort on '%s'.", s.Field))
			}
			if i > 0 {
				sqlStr += ", "
			}
			sqlStr += col
			if s.Desc {
				sqlStr += " DESC"
			}
		}
	} else {
		sqlStr += " ORDER BY u.id"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 250
	}
	sqlStr += " LIMIT ? OFFSET ?"
	args = append(args, limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	var out []model.RankedUser
	for rows.Next() {
		r, err := scanRanked(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// TotalRanked counts leaderboard users.
func (db *DB) TotalRanked(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE num_submissions > 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting ranked users: %w", err)
	}
	return n, nil
}

// Update applies a partial change set built with squirrel. An empty change
// set is a no-op.
func (db *DB) Update(ctx context.Context, id int64, changes model.UserChanges) error {
	b := stmt.Update("users")
	dirty := false

	if changes.PlayerLevel != nil {
		b = b.Set("player_level", string(*changes.PlayerLevel))
		dirty = true
	}
	if changes.SetCountry {
		b = b.Set("country_code", changes.CountryCode)
		b = b.Set("country_subdivision_code", changes.CountrySubdivisionCode)
		dirty = true
	}
	if changes.SetOrganization {
		b = b.Set("organization_id", changes.OrganizationID)
		dirty = true
	}
	if changes.Email != nil {
		b = b.Set("email", *changes.Email)
		dirty = true
	}
	if changes.IsEmailGood != nil {
		b = b.Set("is_email_good", *changes.IsEmailGood)
		dirty = true
	}
	if changes.VerificationCode != nil {
		if *changes.VerificationCode == "" {
			b = b.Set("verification_code", nil)
		} else {
			b = b.Set("verification_code", *changes.VerificationCode)
		}
		dirty = true
	}
	if changes.IsGPUEnabled != nil {
		b = b.Set("is_gpu_enabled", *changes.IsGPUEnabled)
		dirty = true
	}
	if changes.APIKeyHash != nil {
		b = b.Set("api_key_hash", *changes.APIKeyHash)
		dirty = true
	}

	if !dirty {
		return nil
	}

	sqlStr, args, err := b.Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: building user update: %w", err)
	}

	res, err := db.conn.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("No user found.")
	}
	return nil
}

// Delete removes the user row. Game rows are handled separately by the
// game repository before this is called.
func (db *DB) Delete(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	return nil
}

// Credentials returns the stored API-key hash (empty when none was issued)
// and the admin flag. Backs the auth middleware.
func (db *DB) Credentials(ctx context.Context, userID int64) (string, bool, error) {
	var (
		hash  sql.NullString
		admin bool
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT api_key_hash, is_admin FROM users WHERE id = ?`, userID,
	).Scan(&hash, &admin)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", false, apperror.NotFound("No user found.")
		}
		return "", false, fmt.Errorf("sqlite: loading credentials for user %d: %w", userID, err)
	}
	return hash.String, admin, nil
}
