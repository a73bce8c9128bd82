package core

// EventKind says what an event describes, which decides whether it can be
// superseded by a join-time snapshot.
type EventKind int

const (
	// EventPresence covers user join/leave notifications.
	EventPresence EventKind = iota
	// EventMessage is a chat message; EntityID is the message id.
	EventMessage
	// EventGuild is a created guild; EntityID is the guild id.
	EventGuild
	// EventChannel is a created channel; EntityID is the channel id.
	EventChannel
	// EventVoice is a voice state change.
	EventVoice
)

// Event is one encoded record plus the metadata needed to deliver it.
type Event struct {
	Kind     EventKind
	EntityID int64
	Payload  []byte
}

// SyncCursor holds the highest ids a joining session already received in
// its snapshot.
type SyncCursor struct {
	LastMessageID int64
	LastGuildID   int64
	LastChannelID int64
}

// Covers reports whether ev was already part of the snapshot.
func (c SyncCursor) Covers(ev Event) bool {
	switch ev.Kind {
	case EventMessage:
		return ev.EntityID <= c.LastMessageID
	case EventGuild:
		return ev.EntityID <= c.LastGuildID
	case EventChannel:
		return ev.EntityID <= c.LastChannelID
	default:
		return false
	}
}
