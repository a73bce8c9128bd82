package voice

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"
)

func startRelay(t *testing.T, opts Options) *Relay {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := NewRelay(conn, nil, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	})
	return r
}

func dialRelay(t *testing.T, r *Relay) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, r.Addr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, c *net.UDPConn, frame []byte) {
	t.Helper()
	if _, err := c.Write(frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func receive(t *testing.T, c *net.UDPConn, wait time.Duration) ([]byte, bool) {
	t.Helper()
	buf := make([]byte, MaxDatagram)
	_ = c.SetReadDeadline(time.Now().Add(wait))
	n, err := c.Read(buf)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return nil, false
	}
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return buf[:n], true
}

func waitParticipants(t *testing.T, r *Relay, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for r.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("participants = %d, want %d", r.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRelayForwardsToOthersOnly(t *testing.T) {
	r := startRelay(t, Options{})
	a, b, c := dialRelay(t, r), dialRelay(t, r), dialRelay(t, r)

	// Each endpoint announces itself; earlier endpoints may receive these.
	for _, conn := range []*net.UDPConn{a, b, c} {
		send(t, conn, []byte("hello"))
	}
	waitParticipants(t, r, 3)
	for _, conn := range []*net.UDPConn{a, b, c} {
		for {
			if _, ok := receive(t, conn, 50*time.Millisecond); !ok {
				break
			}
		}
	}

	frame := []byte{0x00, 0x7f, 0x80, 0xff, 'p', 'c', 'm'}
	send(t, a, frame)
	for name, conn := range map[string]*net.UDPConn{"b": b, "c": c} {
		got, ok := receive(t, conn, time.Second)
		if !ok {
			t.Fatalf("%s did not receive frame", name)
		}
		if !bytes.Equal(got, frame) {
			t.Fatalf("%s got %x, want %x", name, got, frame)
		}
	}
	if got, ok := receive(t, a, 100*time.Millisecond); ok {
		t.Fatalf("sender received its own frame %x", got)
	}
}

func TestRelayFirstSenderHasNoAudience(t *testing.T) {
	r := startRelay(t, Options{})
	a := dialRelay(t, r)
	send(t, a, []byte("solo"))
	waitParticipants(t, r, 1)
	if _, ok := receive(t, a, 100*time.Millisecond); ok {
		t.Fatal("lone participant received a frame")
	}
	if got := r.Participants(); len(got) != 1 || got[0] != a.LocalAddr().String() {
		t.Fatalf("participants = %v", got)
	}
}

func TestRelayConcurrentSenders(t *testing.T) {
	r := startRelay(t, Options{})
	const n = 8
	conns := make([]*net.UDPConn, n)
	for i := range conns {
		conns[i] = dialRelay(t, r)
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		wg.Add(1)
		go func(c *net.UDPConn) {
			defer wg.Done()
			for range 20 {
				if _, err := c.Write([]byte("frame")); err != nil {
					t.Errorf("write: %v", err)
					return
				}
			}
		}(c)
	}
	wg.Wait()
	waitParticipants(t, r, n)
}

type fakeAddr string

func (a fakeAddr) Network() string { return "udp" }
func (a fakeAddr) String() string  { return string(a) }

type nopPacketConn struct {
	net.PacketConn
}

func (nopPacketConn) WriteTo(p []byte, _ net.Addr) (int, error) { return len(p), nil }

func TestSweepEvictsIdleParticipants(t *testing.T) {
	r := NewRelay(nopPacketConn{}, nil, Options{IdleTimeout: time.Minute})
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.relay([]byte("x"), fakeAddr("10.0.0.1:5000"))
	now = now.Add(30 * time.Second)
	r.relay([]byte("x"), fakeAddr("10.0.0.2:5000"))

	now = now.Add(45 * time.Second)
	if removed := r.Sweep(); removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if got := r.Participants(); len(got) != 1 || got[0] != "10.0.0.2:5000" {
		t.Fatalf("participants = %v", got)
	}
}

func TestSweepDisabledByDefault(t *testing.T) {
	r := NewRelay(nopPacketConn{}, nil, Options{})
	now := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return now }

	r.relay([]byte("x"), fakeAddr("10.0.0.1:5000"))
	now = now.Add(24 * time.Hour)
	if removed := r.Sweep(); removed != 0 || r.Len() != 1 {
		t.Fatalf("removed = %d, len = %d", removed, r.Len())
	}
}
