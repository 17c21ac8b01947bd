// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary needs
// no C toolchain and cross-compiles cleanly. The driver registers itself with
// database/sql under the name "sqlite" via its init function.
package sqlite

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository interfaces.
type DB struct {
	conn *sql.DB
}

// New opens the database, applies connection pragmas, and runs migrations.
//
// dbPath may be ":memory:" for tests; each in-memory DB is private to its
// pool and disappears on Close.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// An in-memory database exists per connection; cap the pool at one so
	// every query sees the same schema.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — the normal
	// state for a web server sharing one database file.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are off by default in SQLite.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// stmt is the squirrel builder configured for SQLite's "?" placeholders.
// Dynamic queries (the filterable user listing, partial updates) are built
// with it; fixed-shape queries stay as plain SQL strings.
var stmt = sq.StatementBuilder.PlaceholderFormat(sq.Question)

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			username         TEXT NOT NULL,
			oauth_provider   INTEGER NOT NULL,
			oauth_id         INTEGER NOT NULL,
			github_email     TEXT NOT NULL DEFAULT '',
			email            TEXT,
			is_email_good    INTEGER NOT NULL DEFAULT 0,
			is_admin         INTEGER NOT NULL DEFAULT 0,
			verification_code TEXT,
			organization_id  INTEGER REFERENCES organizations(id),
			player_level     TEXT NOT NULL DEFAULT 'Professional',
			country_code     TEXT,
			country_subdivision_code TEXT,
			score            REAL NOT NULL DEFAULT 0,
			mu               REAL NOT NULL DEFAULT 25.0,
			sigma            REAL NOT NULL DEFAULT 8.333,
			num_bots         INTEGER NOT NULL DEFAULT 0,
			num_submissions  INTEGER NOT NULL DEFAULT 0,
			num_games        INTEGER NOT NULL DEFAULT 0,
			api_key_hash     TEXT,
			is_gpu_enabled   INTEGER NOT NULL DEFAULT 0,
			creation_time    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (oauth_provider, oauth_id)
		);
		CREATE INDEX IF NOT EXISTS idx_users_score ON users(score);
		CREATE INDEX IF NOT EXISTS idx_users_organization ON users(organization_id);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS organizations (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_name TEXT NOT NULL,
			kind              TEXT NOT NULL DEFAULT 'Other',
			verification_code TEXT
		);
		CREATE TABLE IF NOT EXISTS organization_email_domains (
			organization_id INTEGER NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
			domain          TEXT NOT NULL,
			PRIMARY KEY (organization_id, domain)
		);
		CREATE INDEX IF NOT EXISTS idx_org_email_domains_domain
			ON organization_email_domains(domain);
	`)
	if err != nil {
		return fmt.Errorf("creating organization tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS bot_history (
			user_id           INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			version_number    INTEGER NOT NULL,
			last_rank         INTEGER NOT NULL,
			last_score        REAL NOT NULL,
			last_num_players  INTEGER NOT NULL,
			last_games_played INTEGER NOT NULL,
			when_retired      DATETIME NOT NULL,
			PRIMARY KEY (user_id, version_number)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating bot_history table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS games (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			replay_name TEXT NOT NULL DEFAULT '',
			time_played DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS game_participants (
			game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			user_id INTEGER NOT NULL,
			rank    INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (game_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_game_participants_user
			ON game_participants(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating game tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS legacy_users (
			userID         INTEGER PRIMARY KEY,
			username       TEXT NOT NULL UNIQUE,
			level          TEXT NOT NULL DEFAULT '',
			organization   TEXT NOT NULL DEFAULT '',
			language       TEXT NOT NULL DEFAULT '',
			mu             REAL NOT NULL DEFAULT 0,
			sigma          REAL NOT NULL DEFAULT 0,
			numSubmissions INTEGER NOT NULL DEFAULT 0,
			numGames       INTEGER NOT NULL DEFAULT 0,
			rank           INTEGER
		);
	`)
	if err != nil {
		return fmt.Errorf("creating legacy_users table: %w", err)
	}

	return nil
}
