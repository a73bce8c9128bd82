package gateway

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/termicomm/internal/auth"
	"github.com/vovakirdan/termicomm/internal/blob"
	"github.com/vovakirdan/termicomm/internal/core"
	"github.com/vovakirdan/termicomm/internal/proto"
	"github.com/vovakirdan/termicomm/internal/store"
	"github.com/vovakirdan/termicomm/internal/store/sqlite"
)

const readTimeout = 2 * time.Second

type harness struct {
	gw   *Gateway
	addr string
}

func newSQLiteStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newHarness(t *testing.T, st store.Store, opts Options) *harness {
	t.Helper()

	blobs, err := blob.NewStore(filepath.Join(t.TempDir(), "uploads"))
	if err != nil {
		t.Fatalf("blob store: %v", err)
	}
	if opts.MaxRecordBytes == 0 {
		opts.MaxRecordBytes = 1 << 20
	}
	gw := New(st, blobs, auth.NewHasher(bcrypt.MinCost), core.NewRegistry(nil), nil, opts)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var conns sync.WaitGroup
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			conns.Add(1)
			go func() {
				defer conns.Done()
				gw.ServeConn(ctx, c)
			}()
		}
	}()

	t.Cleanup(func() {
		cancel()
		ln.Close()
		<-acceptDone
		conns.Wait()
	})
	return &harness{gw: gw, addr: ln.Addr().String()}
}

type testClient struct {
	t    *testing.T
	conn net.Conn
	lr   *proto.LineReader
}

func (h *harness) dial(t *testing.T) *testClient {
	t.Helper()
	conn, err := net.Dial("tcp", h.addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testClient{t: t, conn: conn, lr: proto.NewLineReader(conn, 0)}
}

func (c *testClient) send(op proto.Op, payload any) {
	c.t.Helper()
	c.sendRaw(string(proto.MustEncode(op, payload)))
}

func (c *testClient) sendRaw(line string) {
	c.t.Helper()
	if _, err := c.conn.Write([]byte(line)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testClient) next() proto.Event {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	line, err := c.lr.Next()
	if err != nil {
		c.t.Fatalf("read event: %v", err)
	}
	ev, err := proto.DecodeEvent(line)
	if err != nil {
		c.t.Fatalf("decode %s: %v", line, err)
	}
	return ev
}

// expectNone asserts nothing arrives within wait.
func (c *testClient) expectNone(wait time.Duration) {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	line, err := c.lr.Next()
	if err == nil {
		c.t.Fatalf("unexpected record %s", line)
	}
	if !errors.Is(err, os.ErrDeadlineExceeded) {
		c.t.Fatalf("read: %v", err)
	}
}

// identify sends op 2 and consumes the presence snapshot and the guild
// tree, returning both.
func (c *testClient) identify(name string) (proto.PresenceSync, proto.GuildSync) {
	c.t.Helper()
	c.send(proto.OpIdentify, proto.IdentifyData{Username: name, Password: "pw"})
	presence := mustEvent[proto.PresenceSync](c.t, c.next())
	tree := mustEvent[proto.GuildSync](c.t, c.next())
	return presence, tree
}

func mustEvent[T proto.Event](t *testing.T, ev proto.Event) T {
	t.Helper()
	got, ok := ev.(T)
	if !ok {
		var want T
		t.Fatalf("got %#v, want %T", ev, want)
	}
	return got
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
