package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vovakirdan/termicomm/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBootstrapRowsExist(t *testing.T) {
	s := newTestStore(t)

	tree, err := s.ListGuildsWithChannels(context.Background())
	if err != nil {
		t.Fatalf("ListGuildsWithChannels: %v", err)
	}
	if len(tree) != 1 {
		t.Fatalf("expected 1 guild, got %d", len(tree))
	}
	g := tree[0]
	if g.Guild.ID != store.DefaultGuildID || g.Guild.Name != store.DefaultGuildName {
		t.Fatalf("unexpected bootstrap guild: %+v", g.Guild)
	}
	if len(g.Channels) != 1 || g.Channels[0].ID != store.DefaultChannelID || g.Channels[0].Name != store.DefaultChannelName {
		t.Fatalf("unexpected bootstrap channels: %+v", g.Channels)
	}
}

func TestSchemaIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	ctx := context.Background()

	first, err := New(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := first.CreateGuild(ctx, "gophers"); err != nil {
		t.Fatalf("CreateGuild: %v", err)
	}
	first.Close()

	second, err := New(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()

	tree, err := second.ListGuildsWithChannels(ctx)
	if err != nil {
		t.Fatalf("ListGuildsWithChannels: %v", err)
	}
	if len(tree) != 2 || tree[1].Guild.Name != "gophers" {
		t.Fatalf("unexpected tree after reopen: %+v", tree)
	}
}

func TestCreateGuildAndChannelTree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gid, err := s.CreateGuild(ctx, "gophers")
	if err != nil {
		t.Fatalf("CreateGuild: %v", err)
	}
	if gid != 2 {
		t.Fatalf("expected guild id 2, got %d", gid)
	}

	c1, err := s.CreateChannel(ctx, gid, "random")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	c2, err := s.CreateChannel(ctx, gid, "help")
	if err != nil {
		t.Fatalf("CreateChannel: %v", err)
	}
	if c2 <= c1 {
		t.Fatalf("channel ids not increasing: %d then %d", c1, c2)
	}

	tree, err := s.ListGuildsWithChannels(ctx)
	if err != nil {
		t.Fatalf("ListGuildsWithChannels: %v", err)
	}
	if len(tree) != 2 {
		t.Fatalf("expected 2 guilds, got %d", len(tree))
	}
	got := tree[1]
	if got.Guild.ID != gid || len(got.Channels) != 2 {
		t.Fatalf("unexpected guild node: %+v", got)
	}
	if got.Channels[0].Name != "random" || got.Channels[1].Name != "help" {
		t.Fatalf("channels out of order: %+v", got.Channels)
	}
}

func TestCreateChannelWithDanglingGuild(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.CreateChannel(ctx, 999, "orphan")
	if err != nil {
		t.Fatalf("CreateChannel should accept unknown guild: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected assigned id")
	}

	tree, err := s.ListGuildsWithChannels(ctx)
	if err != nil {
		t.Fatalf("ListGuildsWithChannels: %v", err)
	}
	for _, g := range tree {
		for _, ch := range g.Channels {
			if ch.ID == id {
				t.Fatalf("dangling channel attached to guild %d", g.Guild.ID)
			}
		}
	}
}

func TestAppendMessageOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWriter {
				if _, err := s.AppendMessage(ctx, 1, "user", "msg"); err != nil {
					t.Errorf("writer %d message %d: %v", w, i, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	msgs, err := s.ListMessagesOrdered(ctx)
	if err != nil {
		t.Fatalf("ListMessagesOrdered: %v", err)
	}
	if len(msgs) != writers*perWriter {
		t.Fatalf("expected %d messages, got %d", writers*perWriter, len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID <= msgs[i-1].ID {
			t.Fatalf("ids not strictly increasing at %d: %d after %d", i, msgs[i].ID, msgs[i-1].ID)
		}
	}
}

func TestAppendMessageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.AppendMessage(ctx, 1, "alice", "hi")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	msgs, err := s.ListMessagesOrdered(ctx)
	if err != nil {
		t.Fatalf("ListMessagesOrdered: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.ID != id || m.ChannelID != 1 || m.Author != "alice" || m.Content != "hi" || m.CreatedAt.IsZero() {
		t.Fatalf("unexpected message: %+v", m)
	}
}

func TestRecordUserUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetUser(ctx, "alice"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.RecordUser(ctx, "alice", "h1"); err != nil {
		t.Fatalf("RecordUser: %v", err)
	}
	if err := s.RecordUser(ctx, "alice", "h2"); err != nil {
		t.Fatalf("RecordUser again: %v", err)
	}

	u, err := s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.PasswordHash != "h2" {
		t.Fatalf("expected refreshed hash, got %q", u.PasswordHash)
	}
	if u.LastSeen.Before(u.CreatedAt) {
		t.Fatalf("last_seen before created_at: %+v", u)
	}
}

func TestClosedStoreReturnsErrors(t *testing.T) {
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
	if err != nil {
		t.Fatalf("NewWithSetup: %v", err)
	}
	s.Close()

	if _, err := s.AppendMessage(context.Background(), 1, "a", "b"); err == nil {
		t.Fatalf("expected error from closed store")
	}
}
