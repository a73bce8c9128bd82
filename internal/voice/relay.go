// Package voice relays raw audio datagrams between every endpoint that has
// sent one to the voice port.
package voice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MaxDatagram is the read buffer size. Longer datagrams are truncated.
const MaxDatagram = 4096

// Options tunes participant eviction. With a zero IdleTimeout participants
// are kept until the relay stops.
type Options struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

type participant struct {
	addr     net.Addr
	lastSeen time.Time
}

// Relay forwards every datagram it receives to all other known endpoints.
// One mutex guards the participant set, and forwarding happens under it.
type Relay struct {
	conn net.PacketConn
	log  *zerolog.Logger
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	peers map[string]*participant
}

// NewRelay builds a relay over conn. A nil logger disables logging.
func NewRelay(conn net.PacketConn, logger *zerolog.Logger, opts Options) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.IdleTimeout > 0 && opts.SweepInterval <= 0 {
		opts.SweepInterval = opts.IdleTimeout
	}
	return &Relay{
		conn:  conn,
		log:   logger,
		opts:  opts,
		now:   time.Now,
		peers: make(map[string]*participant),
	}
}

// Addr returns the local address of the relay socket.
func (r *Relay) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Run reads datagrams until ctx is cancelled or the socket fails. It closes
// the socket on return.
func (r *Relay) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = r.conn.Close() })
	defer stop()
	defer r.conn.Close()

	sweepDone := make(chan struct{})
	sweepCtx, cancelSweep := context.WithCancel(ctx)
	defer func() {
		cancelSweep()
		<-sweepDone
	}()
	go func() {
		defer close(sweepDone)
		r.sweepLoop(sweepCtx)
	}()

	r.log.Info().Str("addr", r.conn.LocalAddr().String()).Msg("voice relay listening")

	buf := make([]byte, MaxDatagram)
	for {
		n, from, err := r.conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("read voice datagram: %w", err)
		}
		r.relay(buf[:n], from)
	}
}

func (r *Relay) relay(frame []byte, from net.Addr) {
	key := from.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[key]
	if !ok {
		p = &participant{addr: from}
		r.peers[key] = p
		r.log.Info().Str("endpoint", key).Int("participants", len(r.peers)).Msg("voice participant joined")
	}
	p.lastSeen = r.now()

	for k, other := range r.peers {
		if k == key {
			continue
		}
		if _, err := r.conn.WriteTo(frame, other.addr); err != nil {
			r.log.Debug().Err(err).Str("endpoint", k).Msg("forward voice datagram")
		}
	}
}

func (r *Relay) sweepLoop(ctx context.Context) {
	if r.opts.IdleTimeout <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(r.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep evicts participants silent for longer than the idle timeout and
// returns how many were removed. It is a no-op when eviction is disabled.
func (r *Relay) Sweep() int {
	if r.opts.IdleTimeout <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.opts.IdleTimeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, p := range r.peers {
		if p.lastSeen.Before(cutoff) {
			delete(r.peers, key)
			removed++
			r.log.Info().Str("endpoint", key).Msg("voice participant evicted")
		}
	}
	return removed
}

// Participants returns the known endpoint keys in sorted order.
func (r *Relay) Participants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.peers))
	for k := range r.peers {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Len returns the number of known endpoints.
func (r *Relay) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
