package gateway

import (
	"github.com/vovakirdan/termicomm/internal/core"
	"github.com/vovakirdan/termicomm/internal/proto"
	"github.com/vovakirdan/termicomm/internal/store"
)

// Tree converts the stored guild tree into the op 9 payload. Channel lists
// are never nil.
func Tree(guilds []store.GuildWithChannels) []proto.TreeGuild {
	tree := make([]proto.TreeGuild, 0, len(guilds))
	for _, g := range guilds {
		node := proto.TreeGuild{ID: g.Guild.ID, Name: g.Guild.Name, Channels: make([]proto.TreeChannel, 0, len(g.Channels))}
		for _, ch := range g.Channels {
			node.Channels = append(node.Channels, proto.TreeChannel{ID: ch.ID, Name: ch.Name})
		}
		tree = append(tree, node)
	}
	return tree
}

// advanceCursor raises cursor to cover every guild and channel in tree.
func advanceCursor(cursor *core.SyncCursor, tree []proto.TreeGuild) {
	for _, g := range tree {
		cursor.LastGuildID = max(cursor.LastGuildID, g.ID)
		for _, ch := range g.Channels {
			cursor.LastChannelID = max(cursor.LastChannelID, ch.ID)
		}
	}
}
