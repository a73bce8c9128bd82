package client

import (
	"errors"
	"io"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/vovakirdan/termicomm/internal/proto"
)

// Hooks receive events that have no place in the mirror. Nil hooks are
// skipped.
type Hooks struct {
	BlobsListed  func(filenames []string)
	BlobFetched  func(filename string, data []byte)
	Disconnected func(err error)
}

// Reconciler folds the server's event stream into a Mirror.
type Reconciler struct {
	mirror *Mirror
	hooks  Hooks
	log    zerolog.Logger
}

// NewReconciler builds a reconciler writing into mirror.
func NewReconciler(mirror *Mirror, hooks Hooks, logger *zerolog.Logger) *Reconciler {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "reconciler").Logger()
	}
	return &Reconciler{mirror: mirror, hooks: hooks, log: l}
}

// Mirror returns the mirror this reconciler writes into.
func (r *Reconciler) Mirror() *Mirror {
	return r.mirror
}

// Apply decodes one record and updates the mirror. Malformed records are
// returned as errors and leave the mirror unchanged.
func (r *Reconciler) Apply(line []byte) error {
	ev, err := proto.DecodeEvent(line)
	if err != nil {
		return err
	}
	r.ApplyEvent(ev)
	return nil
}

// ApplyEvent updates the mirror from an already decoded event.
func (r *Reconciler) ApplyEvent(ev proto.Event) {
	switch e := ev.(type) {
	case proto.MessageCreated:
		r.mirror.AppendMessage(e.ChannelID, e.Author, e.Content)
	case proto.PresenceSync:
		r.mirror.SetOnline(e.Usernames)
	case proto.UserJoined:
		r.mirror.AddOnline(e.Username)
	case proto.UserLeft:
		r.mirror.RemoveOnline(e.Username)
	case proto.VoiceStateChanged:
		r.mirror.SetVoice(e.Username, e.Joining)
	case proto.GuildCreated:
		r.mirror.AddGuild(e.ID, e.Name)
	case proto.ChannelCreated:
		if !r.mirror.AddChannel(e.GuildID, e.ID, e.Name) {
			r.log.Debug().Int64("guild_id", e.GuildID).Int64("channel_id", e.ID).Msg("channel not added")
		}
	case proto.GuildSync:
		r.mirror.ReplaceTree(lo.Map(e.Guilds, func(g proto.TreeGuild, _ int) Guild {
			return Guild{
				ID:   g.ID,
				Name: g.Name,
				Channels: lo.Map(g.Channels, func(ch proto.TreeChannel, _ int) Channel {
					return Channel{ID: ch.ID, Name: ch.Name}
				}),
			}
		}))
	case proto.BlobListed:
		if r.hooks.BlobsListed != nil {
			r.hooks.BlobsListed(e.Filenames)
		}
	case proto.BlobFetched:
		if r.hooks.BlobFetched != nil {
			r.hooks.BlobFetched(e.Filename, e.Data)
		}
	case proto.UnknownEvent:
		r.log.Debug().Int("op", int(e.Code)).Msg("ignoring unknown op")
	}
}

// Run reads records from src until it fails. Malformed or oversized records
// are logged and skipped. A clean EOF returns nil.
func (r *Reconciler) Run(src io.Reader, limit int) error {
	lines := proto.NewLineReader(src, limit)
	for {
		line, err := lines.Next()
		if errors.Is(err, proto.ErrRecordTooLarge) {
			r.log.Warn().Int("limit", limit).Msg("skipping oversized record")
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			if r.hooks.Disconnected != nil {
				r.hooks.Disconnected(err)
			}
			return err
		}
		if err := r.Apply(line); err != nil {
			r.log.Warn().Err(err).Msg("skipping malformed record")
		}
	}
}
