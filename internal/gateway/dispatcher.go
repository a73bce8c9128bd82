package gateway

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/termicomm/internal/blob"
	"github.com/vovakirdan/termicomm/internal/core"
	"github.com/vovakirdan/termicomm/internal/proto"
)

// dispatcher is the per-connection state. It is used by one goroutine.
type dispatcher struct {
	gw   *Gateway
	sess *core.Session
	log  zerolog.Logger
}

func (d *dispatcher) handle(ctx context.Context, cmd proto.Command) {
	if _, ok := cmd.(proto.Identify); !ok && !d.sess.Identified() {
		d.log.Debug().Int("op", int(cmd.Op())).Msg("ignoring command before identify")
		return
	}

	switch c := cmd.(type) {
	case proto.Identify:
		d.identify(ctx, c)
	case proto.SendMessage:
		d.sendMessage(ctx, c)
	case proto.VoiceToggle:
		d.voiceToggle(c)
	case proto.CreateGuild:
		d.createGuild(ctx, c)
	case proto.CreateChannel:
		d.createChannel(ctx, c)
	case proto.Upload:
		d.upload(ctx, c)
	case proto.ListBlobs:
		d.listBlobs()
	case proto.Download:
		d.download(c)
	case proto.Unknown:
		d.log.Debug().Int("op", int(c.Code)).Msg("ignoring unknown op")
	default:
		d.log.Debug().Int("op", int(cmd.Op())).Msg("unhandled command")
	}
}

// identify promotes the session and runs the join sequence: presence
// snapshot, current voice members, join broadcast, guild tree, history. Live
// events arriving meanwhile are held on the session and flushed at the end,
// minus those the snapshot already covered.
func (d *dispatcher) identify(ctx context.Context, c proto.Identify) {
	if !d.sess.Identify(c.Username) {
		d.log.Debug().Msg("ignoring repeated identify")
		return
	}
	d.log = d.log.With().Str("username", c.Username).Logger()

	d.sess.BeginSync()
	roster := d.gw.registry.Register(d.sess)

	if !d.direct(proto.OpPresenceSync, roster.Names) {
		return
	}
	for _, name := range roster.Voice {
		if !d.direct(proto.OpVoiceState, proto.VoiceData{Username: name, Joining: true}) {
			return
		}
	}

	d.gw.registry.Broadcast(core.Event{
		Kind:    core.EventPresence,
		Payload: proto.MustEncode(proto.OpUserJoin, proto.UserData{Username: c.Username}),
	}, d.sess)

	var cursor core.SyncCursor
	if !d.sendTree(ctx, &cursor) || !d.replayHistory(ctx, &cursor) {
		return
	}
	if err := d.sess.FinishSync(cursor); err != nil {
		d.writeFailed(err)
		return
	}

	d.log.Info().Int("online", d.gw.registry.Len()).Msg("session identified")
	d.recordUser(ctx, c)
}

func (d *dispatcher) sendTree(ctx context.Context, cursor *core.SyncCursor) bool {
	guilds, err := d.gw.store.ListGuildsWithChannels(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("load guild tree")
		return true
	}

	tree := Tree(guilds)
	advanceCursor(cursor, tree)
	return d.direct(proto.OpGuildSync, tree)
}

func (d *dispatcher) replayHistory(ctx context.Context, cursor *core.SyncCursor) bool {
	messages, err := d.gw.store.ListMessagesOrdered(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("load message history")
		return true
	}
	for _, m := range messages {
		payload := proto.MessageData{Content: m.Content, ChannelID: m.ChannelID, Author: &proto.Author{Username: m.Author}}
		if !d.direct(proto.OpMessage, payload) {
			return false
		}
		cursor.LastMessageID = m.ID
	}
	return true
}

func (d *dispatcher) recordUser(ctx context.Context, c proto.Identify) {
	hash, err := d.gw.hasher.Hash(c.Password)
	if err != nil {
		d.log.Warn().Err(err).Msg("hash password")
		return
	}
	if err := d.gw.store.RecordUser(ctx, c.Username, hash); err != nil {
		d.log.Warn().Err(err).Msg("record user")
	}
}

func (d *dispatcher) sendMessage(ctx context.Context, c proto.SendMessage) {
	d.publishMessage(ctx, c.ChannelID, d.sess.Name(), c.Content)
}

func (d *dispatcher) publishMessage(ctx context.Context, channelID int64, author, content string) {
	d.gw.publishMu.Lock()
	defer d.gw.publishMu.Unlock()

	id, err := d.gw.store.AppendMessage(ctx, channelID, author, content)
	if err != nil {
		d.log.Warn().Err(err).Int64("channel_id", channelID).Msg("append message")
		return
	}
	d.gw.registry.Broadcast(core.Event{
		Kind:     core.EventMessage,
		EntityID: id,
		Payload: proto.MustEncode(proto.OpMessage, proto.MessageData{
			Content:   content,
			ChannelID: channelID,
			Author:    &proto.Author{Username: author},
		}),
	}, nil)
}

func (d *dispatcher) voiceToggle(c proto.VoiceToggle) {
	name := d.sess.Name()
	if !d.gw.registry.SetVoice(d.sess, c.Joining) {
		return
	}
	d.log.Debug().Bool("joining", c.Joining).Msg("voice state")
	d.gw.registry.Broadcast(core.Event{
		Kind:    core.EventVoice,
		Payload: proto.MustEncode(proto.OpVoiceState, proto.VoiceData{Username: name, Joining: c.Joining}),
	}, nil)
}

func (d *dispatcher) createGuild(ctx context.Context, c proto.CreateGuild) {
	d.gw.publishMu.Lock()
	defer d.gw.publishMu.Unlock()

	id, err := d.gw.store.CreateGuild(ctx, c.Name)
	if err != nil {
		d.log.Warn().Err(err).Msg("create guild")
		return
	}
	d.log.Info().Int64("guild_id", id).Str("name", c.Name).Msg("guild created")
	d.gw.registry.Broadcast(core.Event{
		Kind:     core.EventGuild,
		EntityID: id,
		Payload:  proto.MustEncode(proto.OpGuildCreate, proto.GuildData{ID: id, Name: c.Name}),
	}, nil)
}

func (d *dispatcher) createChannel(ctx context.Context, c proto.CreateChannel) {
	d.gw.publishMu.Lock()
	defer d.gw.publishMu.Unlock()

	id, err := d.gw.store.CreateChannel(ctx, c.GuildID, c.Name)
	if err != nil {
		d.log.Warn().Err(err).Int64("guild_id", c.GuildID).Msg("create channel")
		return
	}
	d.log.Info().Int64("channel_id", id).Int64("guild_id", c.GuildID).Str("name", c.Name).Msg("channel created")
	d.gw.registry.Broadcast(core.Event{
		Kind:     core.EventChannel,
		EntityID: id,
		Payload:  proto.MustEncode(proto.OpChannelCreate, proto.ChannelData{ID: id, GuildID: c.GuildID, Name: c.Name}),
	}, nil)
}

func (d *dispatcher) upload(ctx context.Context, c proto.Upload) {
	name, err := d.gw.blobs.Put(c.Filename, c.Data)
	if err != nil {
		d.log.Warn().Err(err).Str("filename", c.Filename).Msg("store upload")
		return
	}
	d.log.Info().Str("filename", name).Int("bytes", len(c.Data)).Msg("blob uploaded")

	content := fmt.Sprintf("%s uploaded %s (%s, %d bytes)", d.sess.Name(), name, blob.Sniff(c.Data), len(c.Data))
	d.publishMessage(ctx, c.ChannelID, SystemAuthor, content)
}

func (d *dispatcher) listBlobs() {
	names, err := d.gw.blobs.List()
	if err != nil {
		d.log.Warn().Err(err).Msg("list blobs")
		return
	}
	if names == nil {
		names = []string{}
	}
	d.direct(proto.OpBlobList, names)
}

func (d *dispatcher) download(c proto.Download) {
	data, err := d.gw.blobs.Get(c.Filename)
	if err != nil {
		d.log.Debug().Err(err).Str("filename", c.Filename).Msg("download")
		return
	}
	d.direct(proto.OpBlobData, proto.BlobData{Filename: c.Filename, Data: base64.StdEncoding.EncodeToString(data)})
}

// direct writes one record to this session only. It reports false after a
// write failure, which also closes the session.
func (d *dispatcher) direct(op proto.Op, payload any) bool {
	if err := d.sess.WriteDirect(proto.MustEncode(op, payload)); err != nil {
		d.writeFailed(err)
		return false
	}
	return true
}

func (d *dispatcher) writeFailed(err error) {
	d.log.Debug().Err(err).Msg("write failed")
	_ = d.sess.Close()
}

// disconnect runs once per connection after the read loop ends.
func (d *dispatcher) disconnect() {
	d.gw.registry.Unregister(d.sess)
	name := d.sess.Name()
	d.gw.registry.Broadcast(core.Event{
		Kind:    core.EventPresence,
		Payload: proto.MustEncode(proto.OpUserLeave, proto.UserData{Username: name}),
	}, d.sess)
	_ = d.sess.Close()
	d.log.Info().Msg("session disconnected")
}
