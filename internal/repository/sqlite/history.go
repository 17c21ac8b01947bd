package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/botarena/apiserver/internal/apperror"
	"github.com/botarena/apiserver/internal/model"
	"github.com/botarena/apiserver/internal/repository"
)

var (
	_ repository.HistoryRepository = (*DB)(nil)
	_ repository.GameRepository    = (*DB)(nil)
	_ repository.LegacyRepository  = (*DB)(nil)
)

// ListByUser returns the user's retired bot versions in version order.
func (db *DB) ListByUser(ctx context.Context, userID int64) ([]model.BotHistory, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, version_number, last_rank, last_score,
		        last_num_players, last_games_played, when_retired
		 FROM bot_history WHERE user_id = ? ORDER BY version_number`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing bot history for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []model.BotHistory
	for rows.Next() {
		var h model.BotHistory
		err := rows.Scan(&h.UserID, &h.VersionNumber, &h.LastRank, &h.LastScore,
			&h.LastNumPlayers, &h.LastGamesPlayed, &h.WhenRetired)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning bot history row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// InsertHistory appends one retired bot version. Fed by the rating pipeline;
// exposed for provisioning and tests.
func (db *DB) InsertHistory(ctx context.Context, h *model.BotHistory) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO bot_history
		 (user_id, version_number, last_rank, last_score, last_num_players, last_games_played, when_retired)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		h.UserID, h.VersionNumber, h.LastRank, h.LastScore,
		h.LastNumPlayers, h.LastGamesPlayed, h.WhenRetired)
	if err != nil {
		return fmt.Errorf("sqlite: inserting bot history (user=%d v=%d): %w",
			h.UserID, h.VersionNumber, err)
	}
	return nil
}

// Insert records a finished game with its participants.
func (db *DB) Insert(ctx context.Context, g *model.Game, participants []model.GameParticipant) error {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO games (replay_name, time_played) VALUES (?, CURRENT_TIMESTAMP)`,
		g.ReplayName)
	if err != nil {
		return fmt.Errorf("sqlite: inserting game: %w", err)
	}
	g.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading inserted game id: %w", err)
	}

	for _, p := range participants {
		_, err := db.conn.ExecContext(ctx,
			`INSERT INTO game_participants (game_id, user_id, rank) VALUES (?, ?, ?)`,
			g.ID, p.UserID, p.Rank)
		if err != nil {
			return fmt.Errorf("sqlite: inserting participant (game=%d user=%d): %w",
				g.ID, p.UserID, err)
		}
	}
	return nil
}

// DeleteByParticipant removes every game the user took part in. Participant
// rows go with the games via the cascading foreign key — including rows for
// other users who shared those games.
func (db *DB) DeleteByParticipant(ctx context.Context, userID int64) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM games WHERE EXISTS (
			SELECT 1 FROM game_participants p
			WHERE p.user_id = ? AND p.game_id = games.id
		)`, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting games for user %d: %w", userID, err)
	}
	return nil
}

// CountGames returns the number of stored games.
func (db *DB) CountGames(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM games`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting games: %w", err)
	}
	return n, nil
}

// InsertLegacyUser provisions a season-1 row. Exposed for import scripts
// and tests.
func (db *DB) InsertLegacyUser(ctx context.Context, u *model.LegacyUser) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO legacy_users
		 (userID, username, level, organization, language, mu, sigma, numSubmissions, numGames, rank)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.UserID, u.Username, u.Level, u.Organization, u.Language,
		u.Mu, u.Sigma, u.NumSubmissions, u.NumGames, u.Rank)
	if err != nil {
		return fmt.Errorf("sqlite: inserting legacy user %q: %w", u.Username, err)
	}
	return nil
}

// SetRating writes the externally computed rating fields for a user. The
// rating pipeline owns these columns in production.
func (db *DB) SetRating(ctx context.Context, userID int64, score, mu, sigma float64, numSubmissions int) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET score = ?, mu = ?, sigma = ?, num_submissions = ? WHERE id = ?`,
		score, mu, sigma, numSubmissions, userID)
	if err != nil {
		return fmt.Errorf("sqlite: setting rating for user %d: %w", userID, err)
	}
	return nil
}

// SetAdmin grants or revokes the admin flag.
func (db *DB) SetAdmin(ctx context.Context, userID int64, admin bool) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE users SET is_admin = ? WHERE id = ?`, admin, userID)
	if err != nil {
		return fmt.Errorf("sqlite: setting admin for user %d: %w", userID, err)
	}
	return nil
}

// GetByUsername returns the season-1 leaderboard row for a username.
func (db *DB) GetByUsername(ctx context.Context, username string) (*model.LegacyUser, error) {
	var (
		u    model.LegacyUser
		rank sql.NullInt64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT userID, username, level, organization, language,
		        mu, sigma, numSubmissions, numGames, rank
		 FROM legacy_users WHERE username = ?`, username,
	).Scan(&u.UserID, &u.Username, &u.Level, &u.Organization, &u.Language,
		&u.Mu, &u.Sigma, &u.NumSubmissions, &u.NumGames, &rank)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("No user found for season 1.")
		}
		return nil, fmt.Errorf("sqlite: getting legacy user %q: %w", username, err)
	}
	if rank.Valid {
		v := int(rank.Int64)
		u.Rank = &v
	}
	return &u, nil
}
