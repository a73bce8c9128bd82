package client

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SessionFile is the cache file name in the working directory.
const SessionFile = ".termicomm_session"

// UsageLine is printed when neither arguments nor a cached session exist.
const UsageLine = "Usage: termicomm [SERVER] [USER] [PASS]"

// ControlPort is appended to a server argument given without a port.
const ControlPort = "8080"

// ErrNoSession reports a missing session cache.
var ErrNoSession = errors.New("no cached session")

// ErrUsage reports launch arguments that cannot be resolved.
var ErrUsage = errors.New(UsageLine)

// CachedSession is what survives between runs. The password is never
// stored.
type CachedSession struct {
	Username string `yaml:"username"`
	Server   string `yaml:"server"`
}

// Launch is the resolved connection target.
type Launch struct {
	Server   string
	Username string
	Password string
}

// LoadSession reads the cache at path.
func LoadSession(path string) (CachedSession, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return CachedSession{}, ErrNoSession
	}
	if err != nil {
		return CachedSession{}, fmt.Errorf("read session: %w", err)
	}
	var s CachedSession
	if err := yaml.Unmarshal(data, &s); err != nil {
		return CachedSession{}, fmt.Errorf("parse session: %w", err)
	}
	if s.Username == "" || s.Server == "" {
		return CachedSession{}, ErrNoSession
	}
	return s, nil
}

// SaveSession writes the cache at path.
func SaveSession(path string, s CachedSession) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// ResolveLaunch turns positional arguments into a Launch. Three arguments
// (server, user, password) are used as given and saved to the cache. Any
// other count falls back to the cache, with an optional first argument
// overriding the cached server.
func ResolveLaunch(args []string, path string) (Launch, error) {
	if len(args) == 3 {
		l := Launch{Server: WithDefaultPort(args[0]), Username: args[1], Password: args[2]}
		if err := SaveSession(path, CachedSession{Username: l.Username, Server: l.Server}); err != nil {
			return l, err
		}
		return l, nil
	}

	cached, err := LoadSession(path)
	if errors.Is(err, ErrNoSession) {
		return Launch{}, ErrUsage
	}
	if err != nil {
		return Launch{}, err
	}
	l := Launch{Server: cached.Server, Username: cached.Username}
	if len(args) > 0 {
		l.Server = WithDefaultPort(args[0])
	}
	return l, nil
}

// WithDefaultPort appends the control port to a bare host.
func WithDefaultPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, ControlPort)
}
