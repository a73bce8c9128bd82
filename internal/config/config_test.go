package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	logger := zerolog.Nop()

	cfg, resolved, err := Load(&logger, path)
	require.NoError(t, err)
	require.Equal(t, path, resolved)
	require.Equal(t, Default(), cfg)

	_, statErr := os.Stat(path)
	require.NoError(t, statErr, "default config should be written")
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "control_addr: \":9000\"\nshutdown_timeout: 2s\nvoice:\n  idle_timeout: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Setenv("TERMICOMM_VOICE_ADDR", ":9001")

	cfg, _, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ControlAddr)
	require.Equal(t, ":9001", cfg.VoiceAddr)
	require.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	require.Equal(t, 30*time.Second, cfg.Voice.IdleTimeout)
	require.Equal(t, Default().BlobDir, cfg.BlobDir)
}

func TestUpdateFromKeepsZeroFields(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{ControlAddr: ":7000", Voice: VoiceConfig{IdleTimeout: time.Minute}})

	require.Equal(t, ":7000", cfg.ControlAddr)
	require.Equal(t, ":8081", cfg.VoiceAddr)
	require.Equal(t, time.Minute, cfg.Voice.IdleTimeout)
	require.Equal(t, 10*time.Second, cfg.Voice.SweepInterval)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	noHTTP := Default()
	noHTTP.HTTPAddr = ""
	require.NoError(t, noHTTP.Validate())

	bad := Default()
	bad.ControlAddr = "no-port"
	require.Error(t, bad.Validate())

	bad = Default()
	bad.LogLevel = "chatty"
	require.Error(t, bad.Validate())

	bad = Default()
	bad.MaxRecordBytes = 0
	require.Error(t, bad.Validate())
}
