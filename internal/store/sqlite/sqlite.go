package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/termicomm/internal/store"
)

// Schema creates the four gateway tables and the bootstrap guild/channel.
// It is idempotent.
const Schema = `
	CREATE TABLE IF NOT EXISTS users (
		username      TEXT PRIMARY KEY,
		password_hash TEXT NOT NULL DEFAULT '',
		created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id  INTEGER NOT NULL,
		author_name TEXT NOT NULL,
		content     TEXT NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS guilds (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS channels (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		guild_id   INTEGER NOT NULL,
		name       TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_channels_guild ON channels(guild_id, id);

	INSERT OR IGNORE INTO guilds (id, name) VALUES (1, 'General Lobby');
	INSERT OR IGNORE INTO channels (id, guild_id, name) VALUES (1, 1, 'general');
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the SQLite database at dbPath and applies
// the schema. The returned handle is meant to live as long as the process.
func New(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply a custom schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes writers, which keeps id assignment and
	// snapshot reads consistent with each other.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== GuildStore implementation ====

// ListGuildsWithChannels reads the whole guild tree inside one transaction.
func (s *SQLiteStore) ListGuildsWithChannels(ctx context.Context) ([]store.GuildWithChannels, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tree read: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only

	guilds, err := queryGuilds(ctx, tx)
	if err != nil {
		return nil, err
	}
	channels, err := queryChannels(ctx, tx)
	if err != nil {
		return nil, err
	}

	index := make(map[int64]int, len(guilds))
	tree := make([]store.GuildWithChannels, 0, len(guilds))
	for _, g := range guilds {
		index[g.ID] = len(tree)
		tree = append(tree, store.GuildWithChannels{Guild: g, Channels: []store.Channel{}})
	}
	for _, ch := range channels {
		i, ok := index[ch.GuildID]
		if !ok {
			continue
		}
		tree[i].Channels = append(tree[i].Channels, ch)
	}

	return tree, tx.Commit()
}

func queryGuilds(ctx context.Context, tx *sql.Tx) ([]store.Guild, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, name, created_at FROM guilds ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query guilds: %w", err)
	}
	defer rows.Close()

	var guilds []store.Guild
	for rows.Next() {
		var g store.Guild
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan guild: %w", err)
		}
		guilds = append(guilds, g)
	}
	return guilds, rows.Err()
}

func queryChannels(ctx context.Context, tx *sql.Tx) ([]store.Channel, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id, guild_id, name, created_at FROM channels ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []store.Channel
	for rows.Next() {
		var ch store.Channel
		if err := rows.Scan(&ch.ID, &ch.GuildID, &ch.Name, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// CreateGuild inserts a guild and returns its id.
func (s *SQLiteStore) CreateGuild(ctx context.Context, name string) (int64, error) {
	result, err := s.db.ExecContext(ctx, `INSERT INTO guilds (name, created_at) VALUES (?, ?)`, name, s.now())
	if err != nil {
		return 0, fmt.Errorf("insert guild: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// CreateChannel inserts a channel under guildID and returns its id.
func (s *SQLiteStore) CreateChannel(ctx context.Context, guildID int64, name string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (guild_id, name, created_at) VALUES (?, ?, ?)`,
		guildID, name, s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert channel: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message to storage.
func (s *SQLiteStore) AppendMessage(ctx context.Context, channelID int64, author, content string) (int64, error) {
	query := `
		INSERT INTO messages (channel_id, author_name, content, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, channelID, author, content, s.now())
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get last insert id: %w", err)
	}
	return id, nil
}

// ListMessagesOrdered returns the full history, oldest first.
func (s *SQLiteStore) ListMessagesOrdered(ctx context.Context) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, author_name, content, created_at
		FROM messages
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.Author, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// ==== UserStore implementation ====

// RecordUser upserts the user row.
func (s *SQLiteStore) RecordUser(ctx context.Context, username, passwordHash string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, created_at, last_seen)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(username) DO UPDATE SET
			password_hash = excluded.password_hash,
			last_seen     = excluded.last_seen
	`, username, passwordHash, now, now)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by name.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*store.User, error) {
	var user store.User
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, created_at, last_seen
		FROM users
		WHERE username = ?
	`, username).Scan(&user.Username, &user.PasswordHash, &user.CreatedAt, &user.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

var _ store.Store = (*SQLiteStore)(nil)
