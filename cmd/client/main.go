package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/termicomm/internal/blob"
	"github.com/vovakirdan/termicomm/internal/client"
	"github.com/vovakirdan/termicomm/internal/log"
)

var (
	sessionPath string
	downloadDir string
	logLevel    string
	tick        time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "termicomm [SERVER] [USER] [PASS]",
	Short: "Line-mode chat client",
	Long: "Connect to a termicomm server. With three arguments the server and username are\n" +
		"cached in " + client.SessionFile + "; later runs may omit them or pass only a server.",
	Args:          cobra.MaximumNArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		launch, err := client.ResolveLaunch(args, sessionPath)
		if err != nil {
			return err
		}
		return run(cmd.Context(), launch)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&sessionPath, "session", client.SessionFile, "session cache file")
	f.StringVar(&downloadDir, "downloads", "downloads", "directory for downloaded files")
	f.StringVar(&logLevel, "log-level", "warn", "log level for diagnostics on stderr")
	f.DurationVar(&tick, "tick", client.DefaultTick, "render interval")
}

type session struct {
	conn    *client.Conn
	mirror  *client.Mirror
	printer *printer
	log     *zerolog.Logger
	server  string

	voiceCancel context.CancelFunc
}

func run(ctx context.Context, launch client.Launch) error {
	logger := log.NewWithWriter(os.Stderr, logLevel)
	out := newPrinter(os.Stdout)

	conn, err := client.Dial(ctx, launch.Server)
	if err != nil {
		return fmt.Errorf("connection failed, is the server running? %w", err)
	}
	defer conn.Close()

	downloads, err := blob.NewStore(downloadDir)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	mirror := client.NewMirror()
	reconciler := client.NewReconciler(mirror, client.Hooks{
		BlobsListed: func(names []string) {
			if len(names) == 0 {
				out.Info("no files on server")
				return
			}
			out.Info("files: %s", strings.Join(names, ", "))
		},
		BlobFetched: func(name string, data []byte) {
			stored, err := downloads.Put(name, data)
			if err != nil {
				out.Info("download %s failed: %v", name, err)
				return
			}
			out.Info("saved %s (%s, %d bytes)", filepath.Join(downloads.Dir(), stored), blob.Sniff(data), len(data))
		},
		Disconnected: func(err error) {
			if err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Msg("connection lost")
			}
			cancel()
		},
	}, logger)

	go func() { _ = reconciler.Run(conn.Reader(), 0) }()
	go client.RunTicker(ctx, mirror, tick, out.Render)

	if err := conn.Identify(launch.Username, launch.Password); err != nil {
		return err
	}
	out.Info("connected to %s as %s", launch.Server, launch.Username)

	s := &session{conn: conn, mirror: mirror, printer: out, log: logger, server: launch.Server}
	defer s.stopVoice()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		cancel()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			quit, err := s.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

func (s *session) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		id, ok := s.mirror.ActiveChannelID()
		if !ok {
			s.printer.Info("no channel selected")
			return false, nil
		}
		return false, s.conn.SendMessage(id, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/voice":
		return false, s.toggleVoice(ctx)
	case "/guild":
		if arg == "" {
			s.printer.Info("usage: /guild NAME")
			return false, nil
		}
		return false, s.conn.CreateGuild(arg)
	case "/channel":
		if arg == "" {
			s.printer.Info("usage: /channel NAME")
			return false, nil
		}
		snap := s.mirror.Snapshot()
		if len(snap.Guilds) == 0 {
			s.printer.Info("no guild selected")
			return false, nil
		}
		return false, s.conn.CreateChannel(snap.Guilds[snap.Selection.Guild].ID, arg)
	case "/select":
		s.selectPath(arg)
	case "/tree":
		s.printer.Tree(s.mirror.Snapshot())
	case "/up", "/down":
		n := client.DefaultWindow / 2
		if v, err := strconv.Atoi(arg); err == nil && v > 0 {
			n = v
		}
		if cmd == "/down" {
			n = -n
		}
		s.mirror.Scroll(n)
		s.printer.Window(s.mirror.Window(client.DefaultWindow))
	case "/upload":
		return false, s.upload(arg)
	case "/files":
		return false, s.conn.ListBlobs()
	case "/download":
		if arg == "" {
			s.printer.Info("usage: /download NAME")
			return false, nil
		}
		return false, s.conn.Download(arg)
	default:
		s.printer.Info("commands: /voice /guild /channel /select G [C] /tree /up /down /upload /files /download /quit")
	}
	return false, nil
}

// selectPath takes one-based "guild [channel]" indices.
func (s *session) selectPath(arg string) {
	fields := strings.Fields(arg)
	if len(fields) == 0 {
		s.printer.Info("usage: /select GUILD [CHANNEL]")
		return
	}
	g, err := strconv.Atoi(fields[0])
	if err != nil {
		s.printer.Info("bad guild index %q", fields[0])
		return
	}
	s.mirror.SelectGuild(g - 1)
	if len(fields) > 1 {
		c, err := strconv.Atoi(fields[1])
		if err != nil {
			s.printer.Info("bad channel index %q", fields[1])
			return
		}
		s.mirror.SelectChannel(c - 1)
	}
}

func (s *session) upload(path string) error {
	if path == "" {
		s.printer.Info("usage: /upload PATH")
		return nil
	}
	id, ok := s.mirror.ActiveChannelID()
	if !ok {
		s.printer.Info("no channel selected")
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		s.printer.Info("read %s: %v", path, err)
		return nil
	}
	return s.conn.Upload(id, filepath.Base(path), data)
}

func (s *session) toggleVoice(ctx context.Context) error {
	if s.voiceCancel != nil {
		s.stopVoice()
		s.printer.Info("left voice")
		return s.conn.ToggleVoice(false)
	}

	link, err := client.DialVoice(ctx, client.VoiceAddr(s.server), &client.NullDevice{}, s.log)
	if err != nil {
		s.printer.Info("voice unavailable: %v", err)
		return nil
	}
	vctx, cancel := context.WithCancel(ctx)
	s.voiceCancel = cancel
	go func() {
		if err := link.Run(vctx); err != nil {
			s.log.Warn().Err(err).Msg("voice link stopped")
		}
	}()
	s.printer.Info("joined voice (no audio device, sending silence)")
	return s.conn.ToggleVoice(true)
}

func (s *session) stopVoice() {
	if s.voiceCancel != nil {
		s.voiceCancel()
		s.voiceCancel = nil
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, client.ErrUsage) {
			fmt.Fprintln(os.Stderr, client.UsageLine)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		stop()
		os.Exit(1)
	}
}
