package proto

import (
	"encoding/json"
	"fmt"
)

// Op is the integer operation code carried by every record.
type Op int

const (
	OpMessage       Op = 0
	OpIdentify      Op = 2
	OpPresenceSync  Op = 3
	OpUserJoin      Op = 4
	OpUserLeave     Op = 5
	OpVoiceState    Op = 6
	OpGuildCreate   Op = 7
	OpChannelCreate Op = 8
	OpGuildSync     Op = 9
	OpUpload        Op = 10
	OpBlobList      Op = 11
	OpBlobData      Op = 12
)

// Event-type tags attached to outbound records for human inspection.
const (
	TagMessageCreate = "MESSAGE_CREATE"
	TagPresenceSync  = "PRESENCE_SYNC"
	TagUserJoin      = "USER_JOIN"
	TagUserLeave     = "USER_LEAVE"
	TagVoiceState    = "VOICE_STATE"
	TagGuildCreate   = "GUILD_CREATE"
	TagChannelCreate = "CHANNEL_CREATE"
	TagGuildSync     = "GUILD_SYNC"
	TagBlobList      = "BLOB_LIST"
	TagBlobData      = "BLOB_DATA"
)

var tags = map[Op]string{
	OpMessage:       TagMessageCreate,
	OpPresenceSync:  TagPresenceSync,
	OpUserJoin:      TagUserJoin,
	OpUserLeave:     TagUserLeave,
	OpVoiceState:    TagVoiceState,
	OpGuildCreate:   TagGuildCreate,
	OpChannelCreate: TagChannelCreate,
	OpGuildSync:     TagGuildSync,
	OpBlobList:      TagBlobList,
	OpBlobData:      TagBlobData,
}

// Tag returns the event-type tag for op, or "" if it has none.
func (o Op) Tag() string {
	return tags[o]
}

// Inbound is the envelope as read off the wire. Op is a pointer so a record
// without "op" can be told apart from op 0.
type Inbound struct {
	Op *Op             `json:"op"`
	T  string          `json:"t,omitempty"`
	D  json.RawMessage `json:"d"`
}

// Outbound is the envelope written to the wire.
type Outbound struct {
	Op Op     `json:"op"`
	T  string `json:"t,omitempty"`
	D  any    `json:"d"`
}

// Encode renders one newline-terminated record. encoding/json escapes control
// characters inside strings, so the result never spans lines.
func Encode(op Op, payload any) ([]byte, error) {
	data, err := json.Marshal(Outbound{Op: op, T: op.Tag(), D: payload})
	if err != nil {
		return nil, fmt.Errorf("encode op %d: %w", op, err)
	}
	return append(data, '\n'), nil
}

// MustEncode is Encode for payloads built from plain structs, which cannot
// fail to marshal.
func MustEncode(op Op, payload any) []byte {
	data, err := Encode(op, payload)
	if err != nil {
		panic(err)
	}
	return data
}

// Author identifies who wrote a chat message.
type Author struct {
	Username string `json:"username"`
}

// MessageData is the op 0 payload. Author is set by the server.
type MessageData struct {
	Content   string  `json:"content"`
	ChannelID int64   `json:"channel_id"`
	Author    *Author `json:"author,omitempty"`
}

// IdentifyData is the op 2 payload.
type IdentifyData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserData is the op 4/5 payload.
type UserData struct {
	Username string `json:"username"`
}

// VoiceData is the op 6 payload. Clients omit Username.
type VoiceData struct {
	Username string `json:"username,omitempty"`
	Joining  bool   `json:"joining"`
}

// GuildData is the op 7 payload. Clients omit ID.
type GuildData struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// ChannelData is the op 8 payload. Clients omit ID.
type ChannelData struct {
	ID      int64  `json:"id,omitempty"`
	GuildID int64  `json:"guild_id"`
	Name    string `json:"name"`
}

// TreeGuild is one guild of the op 9 snapshot.
type TreeGuild struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Channels []TreeChannel `json:"channels"`
}

// TreeChannel is one channel of the op 9 snapshot.
type TreeChannel struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// UploadData is the op 10 payload. Data is standard base64.
type UploadData struct {
	Filename  string `json:"filename"`
	Data      string `json:"data"`
	ChannelID int64  `json:"channel_id"`
}

// DownloadData is the op 12 request payload.
type DownloadData struct {
	Filename string `json:"filename"`
}

// BlobData is the op 12 response payload. Data is standard base64.
type BlobData struct {
	Filename string `json:"filename"`
	Data     string `json:"data"`
}
