package proto

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed marks a record that is not valid JSON, lacks an op, or lacks
// a field its op requires.
var ErrMalformed = errors.New("malformed record")

// Command is a decoded client-to-server record. The set of implementations
// is closed; Unknown stands in for any op this server does not handle.
type Command interface {
	Op() Op
}

// SendMessage posts content to a channel (op 0).
type SendMessage struct {
	Content   string
	ChannelID int64
}

// Identify names the session (op 2). Password is carried but never checked.
type Identify struct {
	Username string
	Password string
}

// VoiceToggle joins or leaves the voice room (op 6).
type VoiceToggle struct {
	Joining bool
}

// CreateGuild asks for a new guild (op 7).
type CreateGuild struct {
	Name string
}

// CreateChannel asks for a new channel under a guild (op 8).
type CreateChannel struct {
	GuildID int64
	Name    string
}

// Upload stores a blob and announces it in a channel (op 10).
type Upload struct {
	Filename  string
	Data      []byte
	ChannelID int64
}

// ListBlobs asks for the stored blob names (op 11).
type ListBlobs struct{}

// Download asks for one stored blob (op 12).
type Download struct {
	Filename string
}

// Unknown is any op with no client-to-server meaning.
type Unknown struct {
	Code Op
}

func (SendMessage) Op() Op   { return OpMessage }
func (Identify) Op() Op      { return OpIdentify }
func (VoiceToggle) Op() Op   { return OpVoiceState }
func (CreateGuild) Op() Op   { return OpGuildCreate }
func (CreateChannel) Op() Op { return OpChannelCreate }
func (Upload) Op() Op        { return OpUpload }
func (ListBlobs) Op() Op     { return OpBlobList }
func (Download) Op() Op      { return OpBlobData }
func (u Unknown) Op() Op     { return u.Code }

type inboundMessage struct {
	Content   *string `json:"content"`
	ChannelID *int64  `json:"channel_id"`
}

type inboundIdentify struct {
	Username *string `json:"username"`
	Password string  `json:"password"`
}

type inboundVoice struct {
	Joining *bool `json:"joining"`
}

type inboundGuild struct {
	Name *string `json:"name"`
}

type inboundChannel struct {
	GuildID *int64  `json:"guild_id"`
	Name    *string `json:"name"`
}

type inboundUpload struct {
	Filename  *string `json:"filename"`
	Data      *string `json:"data"`
	ChannelID *int64  `json:"channel_id"`
}

type inboundDownload struct {
	Filename *string `json:"filename"`
}

// DecodeCommand parses a single record line into a Command.
func DecodeCommand(line []byte) (Command, error) {
	var env Inbound
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Op == nil {
		return nil, fmt.Errorf("%w: missing op", ErrMalformed)
	}

	switch op := *env.Op; op {
	case OpMessage:
		var d inboundMessage
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Content == nil || d.ChannelID == nil {
			return nil, missing(op, "content, channel_id")
		}
		if strings.TrimSpace(*d.Content) == "" {
			return nil, missing(op, "content")
		}
		return SendMessage{Content: *d.Content, ChannelID: *d.ChannelID}, nil

	case OpIdentify:
		var d inboundIdentify
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Username == nil || strings.TrimSpace(*d.Username) == "" {
			return nil, missing(op, "username")
		}
		return Identify{Username: strings.TrimSpace(*d.Username), Password: d.Password}, nil

	case OpVoiceState:
		var d inboundVoice
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Joining == nil {
			return nil, missing(op, "joining")
		}
		return VoiceToggle{Joining: *d.Joining}, nil

	case OpGuildCreate:
		var d inboundGuild
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Name == nil || strings.TrimSpace(*d.Name) == "" {
			return nil, missing(op, "name")
		}
		return CreateGuild{Name: *d.Name}, nil

	case OpChannelCreate:
		var d inboundChannel
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.GuildID == nil || d.Name == nil || strings.TrimSpace(*d.Name) == "" {
			return nil, missing(op, "guild_id, name")
		}
		return CreateChannel{GuildID: *d.GuildID, Name: *d.Name}, nil

	case OpUpload:
		var d inboundUpload
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Filename == nil || d.Data == nil || d.ChannelID == nil {
			return nil, missing(op, "filename, data, channel_id")
		}
		data, err := base64.StdEncoding.DecodeString(*d.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: op %d data: %v", ErrMalformed, op, err)
		}
		return Upload{Filename: *d.Filename, Data: data, ChannelID: *d.ChannelID}, nil

	case OpBlobList:
		return ListBlobs{}, nil

	case OpBlobData:
		var d inboundDownload
		if err := decodePayload(env.D, &d); err != nil {
			return nil, err
		}
		if d.Filename == nil {
			return nil, missing(op, "filename")
		}
		return Download{Filename: *d.Filename}, nil

	default:
		return Unknown{Code: op}, nil
	}
}

func decodePayload(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return fmt.Errorf("%w: missing d", ErrMalformed)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func missing(op Op, fields string) error {
	return fmt.Errorf("%w: op %d requires %s", ErrMalformed, op, fields)
}
