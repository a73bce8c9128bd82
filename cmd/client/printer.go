package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/vovakirdan/termicomm/internal/client"
)

// printer turns mirror snapshots into incremental console output: new lines
// in the selected channel, presence and voice changes, tree growth.
type printer struct {
	out io.Writer

	mu       sync.Mutex
	channel  int64
	printed  int
	online   []string
	voice    []string
	guilds   int
	channels int

	cyan   *color.Color
	green  *color.Color
	yellow *color.Color
	gray   *color.Color
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:    out,
		cyan:   color.New(color.FgCyan),
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		gray:   color.New(color.FgHiBlack),
	}
}

// Render is handed to client.RunTicker.
func (p *printer) Render(s client.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if g, c := len(s.Guilds), countChannels(s.Guilds); g != p.guilds || c != p.channels {
		p.guilds, p.channels = g, c
		p.tree(s)
	}
	if !slices.Equal(s.Online, p.online) {
		p.online = slices.Clone(s.Online)
		p.gray.Fprintf(p.out, "online: %s\n", strings.Join(s.Online, ", "))
	}
	if !slices.Equal(s.Voice, p.voice) {
		p.voice = slices.Clone(s.Voice)
		p.yellow.Fprintf(p.out, "voice: %s\n", strings.Join(s.Voice, ", "))
	}

	history := s.Histories[s.ActiveChannelID]
	if s.ActiveChannelID != p.channel {
		p.channel = s.ActiveChannelID
		p.printed = max(0, len(history)-client.DefaultWindow)
		p.cyan.Fprintf(p.out, "-- #%s --\n", channelName(s))
	}
	for _, line := range history[min(p.printed, len(history)):] {
		p.message(line)
	}
	p.printed = len(history)
}

// Window reprints the visible lines, used after scrolling.
func (p *printer) Window(lines []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gray.Fprintln(p.out, "-- history --")
	for _, line := range lines {
		p.message(line)
	}
}

// Tree prints the full guild tree with the selection marked.
func (p *printer) Tree(s client.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tree(s)
}

// Info prints a client-side notice.
func (p *printer) Info(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.green.Fprintf(p.out, "* "+format+"\n", args...)
}

func (p *printer) message(line string) {
	author, content, ok := strings.Cut(line, ": ")
	if !ok {
		fmt.Fprintln(p.out, line)
		return
	}
	p.cyan.Fprint(p.out, author)
	fmt.Fprintf(p.out, ": %s\n", content)
}

func (p *printer) tree(s client.Snapshot) {
	for gi, g := range s.Guilds {
		marker := " "
		if gi == s.Selection.Guild {
			marker = ">"
		}
		p.green.Fprintf(p.out, "%s %d. %s\n", marker, gi+1, g.Name)
		for ci, ch := range g.Channels {
			marker := " "
			if gi == s.Selection.Guild && ci == s.Selection.Channel {
				marker = ">"
			}
			fmt.Fprintf(p.out, "   %s %d. #%s\n", marker, ci+1, ch.Name)
		}
	}
}

func countChannels(guilds []client.Guild) int {
	n := 0
	for _, g := range guilds {
		n += len(g.Channels)
	}
	return n
}

func channelName(s client.Snapshot) string {
	if s.Selection.Guild < len(s.Guilds) {
		channels := s.Guilds[s.Selection.Guild].Channels
		if s.Selection.Channel < len(channels) {
			return channels[s.Selection.Channel].Name
		}
	}
	return "none"
}
