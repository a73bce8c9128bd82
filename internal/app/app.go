package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/termicomm/internal/auth"
	"github.com/vovakirdan/termicomm/internal/blob"
	"github.com/vovakirdan/termicomm/internal/config"
	"github.com/vovakirdan/termicomm/internal/core"
	"github.com/vovakirdan/termicomm/internal/gateway"
	"github.com/vovakirdan/termicomm/internal/store"
	"github.com/vovakirdan/termicomm/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/termicomm/internal/transport/http"
	"github.com/vovakirdan/termicomm/internal/transport/tcp"
	"github.com/vovakirdan/termicomm/internal/voice"
)

// App wires the store, the gateway and the three listeners together.
type App struct {
	cfg      *config.Config
	store    store.Store
	blobs    *blob.Store
	registry *core.Registry
	gateway  *gateway.Gateway
	tcp      *tcp.Server
	log      *zerolog.Logger

	controlLn net.Listener
	voiceConn net.PacketConn
	httpLn    net.Listener
	relay     *voice.Relay
}

// New opens the store and blob directory and builds the gateway. Listeners
// are bound later by Listen.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	blobs, err := blob.NewStore(cfg.BlobDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	registry := core.NewRegistry(logger)
	gw := gateway.New(st, blobs, auth.NewHasher(cfg.PasswordCost), registry, logger, gateway.Options{
		MaxRecordBytes: cfg.MaxRecordBytes,
		WriteTimeout:   cfg.WriteTimeout,
	})
	control := tcp.NewServer(tcp.HandlerFunc(func(ctx context.Context, conn net.Conn) {
		gw.ServeConn(ctx, conn)
	}), logger)

	return &App{
		cfg:      cfg,
		store:    st,
		blobs:    blobs,
		registry: registry,
		gateway:  gw,
		tcp:      control,
		log:      logger,
	}, nil
}

// Listen binds the control, voice and HTTP sockets. Any bind failure is
// fatal and releases what was already bound.
func (a *App) Listen() error {
	ln, err := net.Listen("tcp", a.cfg.ControlAddr)
	if err != nil {
		return fmt.Errorf("listen control %s: %w", a.cfg.ControlAddr, err)
	}
	pc, err := net.ListenPacket("udp", a.cfg.VoiceAddr)
	if err != nil {
		ln.Close()
		return fmt.Errorf("listen voice %s: %w", a.cfg.VoiceAddr, err)
	}
	var httpLn net.Listener
	if a.cfg.HTTPAddr != "" {
		httpLn, err = net.Listen("tcp", a.cfg.HTTPAddr)
		if err != nil {
			ln.Close()
			pc.Close()
			return fmt.Errorf("listen http %s: %w", a.cfg.HTTPAddr, err)
		}
	}

	a.controlLn, a.voiceConn, a.httpLn = ln, pc, httpLn
	a.relay = voice.NewRelay(pc, a.log, voice.Options{
		IdleTimeout:   a.cfg.Voice.IdleTimeout,
		SweepInterval: a.cfg.Voice.SweepInterval,
	})
	return nil
}

// ControlAddr returns the bound control address, or nil before Listen.
func (a *App) ControlAddr() net.Addr {
	if a.controlLn == nil {
		return nil
	}
	return a.controlLn.Addr()
}

// VoiceAddr returns the bound voice address, or nil before Listen.
func (a *App) VoiceAddr() net.Addr {
	if a.voiceConn == nil {
		return nil
	}
	return a.voiceConn.LocalAddr()
}

// HTTPAddr returns the bound HTTP address, or nil when HTTP is disabled.
func (a *App) HTTPAddr() net.Addr {
	if a.httpLn == nil {
		return nil
	}
	return a.httpLn.Addr()
}

// Run binds the listeners if needed and serves until ctx is cancelled or a
// worker fails. The store is closed before it returns.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	if a.controlLn == nil {
		if err := a.Listen(); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.tcp.Serve(gctx, a.controlLn) })
	g.Go(func() error { return a.relay.Run(gctx) })

	if a.httpLn != nil {
		srv := transporthttp.NewServer(transporthttp.Deps{
			Guilds:      a.store,
			Presence:    a.registry,
			Voice:       a.relay,
			Blobs:       a.blobs,
			Gateway:     a.gateway,
			WSReadLimit: int64(a.cfg.MaxRecordBytes),
		}, transporthttp.Options{
			ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
			BaseContext:       gctx,
		}, a.log)

		a.log.Info().Str("addr", a.httpLn.Addr().String()).Msg("http listener started")
		g.Go(func() error {
			if err := srv.Serve(a.httpLn); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				return fmt.Errorf("http serve: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			a.log.Info().Msg("shutting down http server")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("http shutdown: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
