package proto

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Event is a decoded server-to-client record. Like Command, the set is
// closed and UnknownEvent covers every other op.
type Event interface {
	Op() Op
}

// MessageCreated is a live or replayed chat message (op 0).
type MessageCreated struct {
	ChannelID int64
	Author    string
	Content   string
}

// PresenceSync is the full online-user snapshot (op 3).
type PresenceSync struct {
	Usernames []string
}

// UserJoined announces a newly identified user (op 4).
type UserJoined struct {
	Username string
}

// UserLeft announces a disconnected user (op 5).
type UserLeft struct {
	Username string
}

// VoiceStateChanged reports a voice join or leave (op 6).
type VoiceStateChanged struct {
	Username string
	Joining  bool
}

// GuildCreated carries a new guild (op 7).
type GuildCreated struct {
	ID   int64
	Name string
}

// ChannelCreated carries a new channel (op 8).
type ChannelCreated struct {
	ID      int64
	GuildID int64
	Name    string
}

// GuildSync is the full guild tree (op 9).
type GuildSync struct {
	Guilds []TreeGuild
}

// BlobListed answers a list request (op 11).
type BlobListed struct {
	Filenames []string
}

// BlobFetched answers a download request (op 12).
type BlobFetched struct {
	Filename string
	Data     []byte
}

// UnknownEvent is any op without a client-side meaning.
type UnknownEvent struct {
	Code Op
}

func (MessageCreated) Op() Op    { return OpMessage }
func (PresenceSync) Op() Op      { return OpPresenceSync }
func (UserJoined) Op() Op        { return OpUserJoin }
func (UserLeft) Op() Op          { return OpUserLeave }
func (VoiceStateChanged) Op() Op { return OpVoiceState }
func (GuildCreated) Op() Op      { return OpGuildCreate }
func (ChannelCreated) Op() Op    { return OpChannelCreate }
func (GuildSync) Op() Op         { return OpGuildSync }
func (BlobListed) Op() Op        { return OpBlobList }
func (BlobFetched) Op() Op       { return OpBlobData }
func (u UnknownEvent) Op() Op    { return u.Code }

type outboundMessage struct {
	Content   *string `json:"content"`
	ChannelID *int64  `json:"channel_id"`
	Author    *struct {
		Username *string `json:"username"`
	} `json:"author"`
}

type outboundUser struct {
	Username *string `json:"username"`
}

type outboundVoice struct {
	Username *string `json:"username"`
	Joining  *bool   `json:"joining"`
}

type outboundGuild struct {
	ID   *int64  `json:"id"`
	Name *string `json:"name"`
}

type outboundChannel struct {
	ID      *int64  `json:"id"`
	GuildID *int64  `json:"guild_id"`
	Name    *string `json:"name"`
}

type outboundTreeGuild struct {
	ID       *int64  `json:"id"`
	Name     *string `json:"name"`
	Channels []struct {
		ID   *int64  `json:"id"`
		Name *string `json:"name"`
	} `json:"channels"`
}

type outboundBlob struct {
	Filename *string `json:"filename"`
	Data     *string `json:"data"`
}

// DecodeEvent parses a single server record line into an Event.
func DecodeEvent(line []byte) (Event, error) {
	var env Inbound
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Op == nil {
		return nil, fmt.Errorf("%w: missing op", ErrMalformed)
	}

	switch op := *env.Op; op {
	case OpMessage:
		var d outboundMessage
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Content == nil || d.ChannelID == nil || d.Author == nil || d.Author.Username == nil {
			return nil, missing(op, "content, channel_id, author.username")
		}
		return MessageCreated{ChannelID: *d.ChannelID, Author: *d.Author.Username, Content: *d.Content}, nil

	case OpPresenceSync:
		var names []string
		if err := decodePayload(env.D, &names); err != nil {
			return nil, err
		}
		return PresenceSync{Usernames: names}, nil

	case OpUserJoin, OpUserLeave:
		var d outboundUser
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Username == nil {
			return nil, missing(op, "username")
		}
		if op == OpUserJoin {
			return UserJoined{Username: *d.Username}, nil
		}
		return UserLeft{Username: *d.Username}, nil

	case OpVoiceState:
		var d outboundVoice
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Username == nil || d.Joining == nil {
			return nil, missing(op, "username, joining")
		}
		return VoiceStateChanged{Username: *d.Username, Joining: *d.Joining}, nil

	case OpGuildCreate:
		var d outboundGuild
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.ID == nil || d.Name == nil {
			return nil, missing(op, "id, name")
		}
		return GuildCreated{ID: *d.ID, Name: *d.Name}, nil

	case OpChannelCreate:
		var d outboundChannel
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.ID == nil || d.GuildID == nil || d.Name == nil {
			return nil, missing(op, "id, guild_id, name")
		}
		return ChannelCreated{ID: *d.ID, GuildID: *d.GuildID, Name: *d.Name}, nil

	case OpGuildSync:
		var raw []outboundTreeGuild
		if err := decodePayload(env.D, &raw); err != nil {
			return nil, err
		}
		guilds := make([]TreeGuild, 0, len(raw))
		for _, g := range raw {
			if g.ID == nil || g.Name == nil {
				return nil, missing(op, "guild id, name")
			}
			tg := TreeGuild{ID: *g.ID, Name: *g.Name, Channels: make([]TreeChannel, 0, len(g.Channels))}
			for _, ch := range g.Channels {
				if ch.ID == nil || ch.Name == nil {
					return nil, missing(op, "channel id, name")
				}
				tg.Channels = append(tg.Channels, TreeChannel{ID: *ch.ID, Name: *ch.Name})
			}
			guilds = append(guilds, tg)
		}
		return GuildSync{Guilds: guilds}, nil

	case OpBlobList:
		var names []string
		if err := decodePayload(env.D, &names); err != nil {
			return nil, err
		}
		return BlobListed{Filenames: names}, nil

	case OpBlobData:
		var d outboundBlob
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Filename == nil || d.Data == nil {
			return nil, missing(op, "filename, data")
		}
		data, err := base64.StdEncoding.DecodeString(*d.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: op %d data: %v", ErrMalformed, op, err)
		}
		return BlobFetched{Filename: *d.Filename, Data: data}, nil

	default:
		return UnknownEvent{Code: op}, nil
	}
}
