package core

import (
	"bytes"
	"errors"
	"strings"
	"sync"
)

var errPeerGone = errors.New("peer gone")

type fakeConn struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	fail   bool
	closed bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return 0, errPeerGone
	}
	return c.buf.Write(p)
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	text := strings.TrimSuffix(c.buf.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func newTestSession(name string) (*Session, *fakeConn) {
	conn := &fakeConn{}
	s := NewSession(conn, 0)
	if name != "" {
		s.Identify(name)
	}
	return s, conn
}

func ev(kind EventKind, id int64, line string) Event {
	return Event{Kind: kind, EntityID: id, Payload: []byte(line + "\n")}
}
