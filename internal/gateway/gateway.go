// Package gateway runs the control protocol for one client connection at a
// time: it decodes records, applies them to the store and the session
// registry, and writes the resulting events.
package gateway

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/termicomm/internal/core"
	"github.com/vovakirdan/termicomm/internal/proto"
	"github.com/vovakirdan/termicomm/internal/store"
)

// SystemAuthor is the author name of server-generated chat messages.
const SystemAuthor = "System"

// BlobStore holds uploaded attachments.
type BlobStore interface {
	Put(name string, data []byte) (string, error)
	Get(name string) ([]byte, error)
	List() ([]string, error)
}

// PasswordHasher hashes the password carried by identify before it is
// recorded.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Options tunes per-connection behavior.
type Options struct {
	// MaxRecordBytes bounds a single record line; longer lines are dropped.
	MaxRecordBytes int
	// WriteTimeout bounds each write when positive.
	WriteTimeout time.Duration
}

// Gateway owns the shared state every connection dispatches into.
type Gateway struct {
	store    store.Store
	blobs    BlobStore
	hasher   PasswordHasher
	registry *core.Registry
	log      *zerolog.Logger
	opts     Options

	// publishMu serializes store writes with their broadcast, so live
	// events leave in id order.
	publishMu sync.Mutex
}

// New builds a Gateway. A nil logger disables logging.
func New(st store.Store, blobs BlobStore, hasher PasswordHasher, registry *core.Registry, logger *zerolog.Logger, opts Options) *Gateway {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Gateway{
		store:    st,
		blobs:    blobs,
		hasher:   hasher,
		registry: registry,
		log:      logger,
		opts:     opts,
	}
}

// Registry returns the session registry the gateway broadcasts through.
func (g *Gateway) Registry() *core.Registry {
	return g.registry
}

// ServeConn runs the dispatcher for conn until the peer goes away or ctx is
// cancelled. It always closes conn before returning.
func (g *Gateway) ServeConn(ctx context.Context, conn io.ReadWriteCloser) {
	sess := core.NewSession(conn, g.opts.WriteTimeout)
	logger := g.log.With().Str("session_id", sess.ID).Logger()
	d := &dispatcher{gw: g, sess: sess, log: logger}

	stop := context.AfterFunc(ctx, func() { _ = sess.Close() })
	defer stop()
	defer d.disconnect()

	d.log.Debug().Msg("session connected")

	reader := proto.NewLineReader(conn, g.opts.MaxRecordBytes)
	for {
		line, err := reader.Next()
		if errors.Is(err, proto.ErrRecordTooLarge) {
			d.log.Debug().Int("limit", g.opts.MaxRecordBytes).Msg("discarding oversized record")
			continue
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !sess.Closed() {
				d.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		cmd, err := proto.DecodeCommand(line)
		if err != nil {
			d.log.Debug().Err(err).Msg("discarding malformed record")
			continue
		}
		d.handle(ctx, cmd)
	}
}
