// Package tcp accepts control-protocol connections and supervises one
// handler goroutine per connection.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ConnHandler serves one accepted connection. It must return once ctx is
// cancelled or the connection is closed.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// HandlerFunc adapts a function to ConnHandler.
type HandlerFunc func(ctx context.Context, conn net.Conn)

// ServeConn calls f.
func (f HandlerFunc) ServeConn(ctx context.Context, conn net.Conn) { f(ctx, conn) }

// Server tracks live connections so shutdown can close them and wait for
// their handlers.
type Server struct {
	handler ConnHandler
	log     *zerolog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer builds a Server. A nil logger disables logging.
func NewServer(handler ConnHandler, logger *zerolog.Logger) *Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Server{handler: handler, log: logger, conns: make(map[net.Conn]struct{})}
}

// Serve accepts on ln until ctx is cancelled or ln fails. On return the
// listener and every live connection are closed and all handlers have
// exited. Cancellation is a clean stop and returns nil.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("control listener started")

	var err error
	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			var netErr net.Error
			if errors.As(acceptErr, &netErr) && netErr.Timeout() {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if ctx.Err() == nil {
				err = fmt.Errorf("accept: %w", acceptErr)
			}
			break
		}
		s.track(ctx, conn)
	}

	_ = ln.Close()
	s.closeAll()
	s.wg.Wait()
	s.log.Info().Msg("control listener stopped")
	return err
}

// ListenAndServe binds addr and serves it until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Active returns the number of live connections.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(ctx context.Context, conn net.Conn) {
	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection accepted")

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		s.handler.ServeConn(ctx, conn)
	}()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}
