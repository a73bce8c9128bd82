package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/vovakirdan/termicomm/internal/proto"
)

// Conn is a control-channel connection to the gateway. Command methods are
// safe for concurrent use; each writes one whole record.
type Conn struct {
	conn net.Conn
	mu   sync.Mutex
}

// Dial connects to the gateway control port.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewConn(c), nil
}

// NewConn wraps an established stream.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c}
}

// Reader exposes the inbound side for a Reconciler.
func (c *Conn) Reader() io.Reader {
	return c.conn
}

// RemoteAddr reports the gateway address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Identify announces the username and password.
func (c *Conn) Identify(username, password string) error {
	return c.send(proto.OpIdentify, proto.IdentifyData{Username: username, Password: password})
}

// SendMessage posts content to a channel.
func (c *Conn) SendMessage(channelID int64, content string) error {
	return c.send(proto.OpMessage, proto.MessageData{Content: content, ChannelID: channelID})
}

// ToggleVoice joins or leaves voice.
func (c *Conn) ToggleVoice(joining bool) error {
	return c.send(proto.OpVoiceState, proto.VoiceData{Joining: joining})
}

// CreateGuild asks the server to create a guild.
func (c *Conn) CreateGuild(name string) error {
	return c.send(proto.OpGuildCreate, proto.GuildData{Name: name})
}

// CreateChannel asks the server to create a channel in guildID.
func (c *Conn) CreateChannel(guildID int64, name string) error {
	return c.send(proto.OpChannelCreate, proto.ChannelData{GuildID: guildID, Name: name})
}

// Upload stores a file on the server and announces it in channelID.
func (c *Conn) Upload(channelID int64, filename string, data []byte) error {
	return c.send(proto.OpUpload, proto.UploadData{
		Filename:  filename,
		Data:      base64.StdEncoding.EncodeToString(data),
		ChannelID: channelID,
	})
}

// ListBlobs requests the stored file names.
func (c *Conn) ListBlobs() error {
	return c.send(proto.OpBlobList, struct{}{})
}

// Download requests a stored file.
func (c *Conn) Download(filename string) error {
	return c.send(proto.OpBlobData, proto.DownloadData{Filename: filename})
}

func (c *Conn) send(op proto.Op, payload any) error {
	record, err := proto.Encode(op, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.conn.Write(record); err != nil {
		return fmt.Errorf("send op %d: %w", op, err)
	}
	return nil
}
