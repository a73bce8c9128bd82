// Package http exposes read-only operational state over REST and bridges
// WebSocket clients onto the control protocol.
package http

import (
	"context"
	"io"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/termicomm/internal/store"
)

// GuildLister reads the guild tree.
type GuildLister interface {
	ListGuildsWithChannels(ctx context.Context) ([]store.GuildWithChannels, error)
}

// Presence reports who is online and who is in voice.
type Presence interface {
	Names() []string
	VoiceNames() []string
}

// VoiceEndpoints reports the UDP endpoints known to the relay.
type VoiceEndpoints interface {
	Participants() []string
}

// BlobLister lists stored attachments.
type BlobLister interface {
	List() ([]string, error)
}

// StreamServer runs the control protocol over a byte stream.
type StreamServer interface {
	ServeConn(ctx context.Context, conn io.ReadWriteCloser)
}

// Deps are the components the HTTP surface reads from. A nil Gateway
// disables the /ws route.
type Deps struct {
	Guilds   GuildLister
	Presence Presence
	Voice    VoiceEndpoints
	Blobs    BlobLister
	Gateway  StreamServer
	// WSReadLimit bounds one inbound WebSocket message.
	WSReadLimit int64
}

// Options configures the HTTP server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	// BaseContext, when set, parents every request context, so cancelling
	// it also ends upgraded WebSocket sessions.
	BaseContext context.Context
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	h := NewStateHandlers(deps, logger)
	api := router.Group("/api/v1")
	api.GET("/guilds", h.Guilds)
	api.GET("/presence", h.Presence)
	api.GET("/voice", h.Voice)
	api.GET("/blobs", h.Blobs)

	if deps.Gateway != nil {
		router.GET("/ws", gin.WrapH(NewWSHandler(deps.Gateway, deps.WSReadLimit, logger)))
	}
	return router
}

// NewServer builds an HTTP server over NewRouter.
func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *stdhttp.Server {
	srv := &stdhttp.Server{
		Addr:              opts.Addr,
		Handler:           NewRouter(deps, logger),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
	}
	if opts.BaseContext != nil {
		base := opts.BaseContext
		srv.BaseContext = func(net.Listener) context.Context { return base }
	}
	return srv
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
