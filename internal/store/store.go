package store

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/vovakirdan/termicomm/internal/store Store

import (
	"context"
	"errors"
	"time"
)

// Bootstrap rows that exist in every initialized database.
const (
	DefaultGuildID     int64 = 1
	DefaultGuildName         = "General Lobby"
	DefaultChannelID   int64 = 1
	DefaultChannelName       = "general"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Guild is a top-level community holding channels.
type Guild struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Channel belongs to a guild and holds a message history.
type Channel struct {
	ID        int64
	GuildID   int64
	Name      string
	CreatedAt time.Time
}

// GuildWithChannels is one node of the guild tree.
type GuildWithChannels struct {
	Guild    Guild
	Channels []Channel
}

// Message represents a persisted chat message. Messages are immutable and
// their ids increase strictly in insertion order.
type Message struct {
	ID        int64
	ChannelID int64
	Author    string
	Content   string
	CreatedAt time.Time
}

// User is a name that has identified at least once. The password hash is
// recorded but never checked.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
	LastSeen     time.Time
}

// GuildStore handles guild and channel persistence.
type GuildStore interface {
	// ListGuildsWithChannels returns every guild ordered by id, each with its
	// channels ordered by id. Channels whose guild does not exist are omitted.
	ListGuildsWithChannels(ctx context.Context) ([]GuildWithChannels, error)

	// CreateGuild inserts a guild and returns its assigned id.
	CreateGuild(ctx context.Context, name string) (int64, error)

	// CreateChannel inserts a channel and returns its assigned id.
	// The guild id is not checked.
	CreateChannel(ctx context.Context, guildID int64, name string) (int64, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// AppendMessage persists a message and returns its assigned id.
	AppendMessage(ctx context.Context, channelID int64, author, content string) (int64, error)

	// ListMessagesOrdered returns all messages of all channels, ascending by id.
	ListMessagesOrdered(ctx context.Context) ([]*Message, error)
}

// UserStore tracks names seen by the gateway.
type UserStore interface {
	// RecordUser inserts the user or refreshes its hash and last-seen time.
	RecordUser(ctx context.Context, username, passwordHash string) error

	// GetUser retrieves a user by name.
	GetUser(ctx context.Context, username string) (*User, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	GuildStore
	MessageStore
	UserStore

	// Close closes the underlying database connection.
	Close() error
}
