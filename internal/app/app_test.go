package app

import (
	"bufio"
	"context"
	"io"
	"net"
	stdhttp "net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/termicomm/internal/config"
	"github.com/vovakirdan/termicomm/internal/proto"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ControlAddr = "127.0.0.1:0"
	cfg.VoiceAddr = "127.0.0.1:0"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.DatabasePath = filepath.Join(dir, "termicomm_server.db")
	cfg.BlobDir = filepath.Join(dir, "uploads")
	cfg.PasswordCost = 4
	cfg.ShutdownTimeout = 2 * time.Second
	return &cfg
}

func TestRunServesAllListeners(t *testing.T) {
	logger := zerolog.Nop()
	a, err := New(testConfig(t), &logger)
	require.NoError(t, err)
	require.NoError(t, a.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Control protocol.
	conn, err := net.Dial("tcp", a.ControlAddr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(proto.MustEncode(proto.OpIdentify, proto.IdentifyData{Username: "alice"}))
	require.NoError(t, err)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadBytes('\n')
	require.NoError(t, err)
	ev, err := proto.DecodeEvent(line[:len(line)-1])
	require.NoError(t, err)
	require.Equal(t, proto.PresenceSync{Usernames: []string{"alice"}}, ev)

	// Voice relay learns endpoints.
	udp, err := net.Dial("udp", a.VoiceAddr().String())
	require.NoError(t, err)
	defer udp.Close()
	_, err = udp.Write([]byte("frame"))
	require.NoError(t, err)

	// HTTP ops surface reflects both.
	base := "http://" + a.HTTPAddr().String()
	require.Eventually(t, func() bool {
		body := httpGet(t, base+"/api/v1/voice")
		return strings.Contains(body, udp.LocalAddr().String())
	}, 2*time.Second, 20*time.Millisecond)
	require.Contains(t, httpGet(t, base+"/api/v1/presence"), "alice")
	require.Equal(t, "ok", httpGet(t, base+"/health"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	_, err = net.DialTimeout("tcp", a.ControlAddr().String(), 200*time.Millisecond)
	require.Error(t, err, "control listener still accepting after shutdown")
}

func TestListenFailsWhenPortTaken(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer taken.Close()

	cfg := testConfig(t)
	cfg.ControlAddr = taken.Addr().String()

	logger := zerolog.Nop()
	a, err := New(cfg, &logger)
	require.NoError(t, err)
	require.Error(t, a.Run(context.Background()))
}

func TestNewFailsOnBadDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, writeFile(blocker))
	cfg.DatabasePath = filepath.Join(blocker, "db.sqlite")

	logger := zerolog.Nop()
	_, err := New(cfg, &logger)
	require.Error(t, err)
}

func httpGet(t *testing.T, url string) string {
	t.Helper()
	resp, err := stdhttp.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o600)
}
