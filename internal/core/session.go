package core

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultName is the display name of a session that never identified.
const DefaultName = "Unknown"

// Transport is the write side of a client connection.
type Transport interface {
	io.Writer
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Session is one connected client. Writes are serialized by the session
// mutex. While a session is syncing, Send queues events instead of writing
// them; FinishSync flushes the queue.
type Session struct {
	ID string

	conn         Transport
	writeTimeout time.Duration

	mu         sync.Mutex
	name       string
	identified bool
	syncing    bool
	pending    []Event

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	// inVoice is guarded by the owning Registry's mutex.
	inVoice bool
}

// NewSession wraps conn. A positive writeTimeout sets a deadline on every
// write when conn supports it.
func NewSession(conn Transport, writeTimeout time.Duration) *Session {
	return &Session{
		ID:           uuid.NewString(),
		conn:         conn,
		writeTimeout: writeTimeout,
		name:         DefaultName,
	}
}

// Identify names the session. It succeeds only the first time.
func (s *Session) Identify(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identified {
		return false
	}
	s.identified = true
	s.name = name
	return true
}

// Name returns the display name, DefaultName until identified.
func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Identified reports whether Identify has succeeded.
func (s *Session) Identified() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identified
}

// BeginSync starts queueing events passed to Send.
func (s *Session) BeginSync() {
	s.mu.Lock()
	s.syncing = true
	s.mu.Unlock()
}

// FinishSync writes the queued events not covered by cursor, in arrival
// order, and returns the session to direct delivery.
func (s *Session) FinishSync(cursor SyncCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	queued := s.pending
	s.pending = nil
	s.syncing = false
	for _, ev := range queued {
		if cursor.Covers(ev) {
			continue
		}
		if err := s.writeLocked(ev.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Send delivers ev, or queues it while the session is syncing.
func (s *Session) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.syncing {
		s.pending = append(s.pending, ev)
		return nil
	}
	return s.writeLocked(ev.Payload)
}

// WriteDirect writes payload immediately, bypassing any sync queue. It is
// used for replies addressed only to this session.
func (s *Session) WriteDirect(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(payload)
}

func (s *Session) writeLocked(payload []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.writeTimeout > 0 {
		if d, ok := s.conn.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		}
	}
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("write to session %s: %w", s.ID, err)
	}
	return nil
}

// Close closes the transport. It does not wait for a write in progress,
// which fails once the transport is closed. Extra calls are no-ops.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
