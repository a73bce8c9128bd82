// Package client keeps a local mirror of gateway state built from the
// server's event stream, and sends commands back to it.
package client

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// DefaultWindow is the number of history lines shown at once.
const DefaultWindow = 30

// Channel is a mirrored channel.
type Channel struct {
	ID   int64
	Name string
}

// Guild is a mirrored guild and its channels in creation order.
type Guild struct {
	ID       int64
	Name     string
	Channels []Channel
}

// Selection is the viewer's position: selected guild and channel indices
// and how many lines the history is scrolled back.
type Selection struct {
	Guild   int
	Channel int
	Scroll  int
}

// Snapshot is a deep copy of the mirror handed to a renderer.
type Snapshot struct {
	Guilds          []Guild
	Histories       map[int64][]string
	Online          []string
	Voice           []string
	Selection       Selection
	ActiveChannelID int64
}

// Mirror is the client-side copy of server state. A single mutex guards
// everything; the reconciler writes and the renderer reads.
type Mirror struct {
	mu        sync.Mutex
	guilds    []Guild
	histories map[int64][]string
	online    []string
	voice     []string
	sel       Selection
	lastGuild int
}

// NewMirror returns an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{histories: make(map[int64][]string), lastGuild: -1}
}

// AppendMessage adds "author: content" to the channel history. A message
// for the channel on screen scrolls the view back to the newest line.
func (m *Mirror) AppendMessage(channelID int64, author, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.histories[channelID] = append(m.histories[channelID], author+": "+content)
	if id, ok := m.activeChannelLocked(); ok && id == channelID {
		m.sel.Scroll = 0
	}
}

// SetOnline replaces the online-user set.
func (m *Mirror) SetOnline(names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = lo.Uniq(names)
}

// AddOnline adds one user.
func (m *Mirror) AddOnline(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !lo.Contains(m.online, name) {
		m.online = append(m.online, name)
	}
}

// RemoveOnline removes a user from both the online and the voice sets.
func (m *Mirror) RemoveOnline(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online = lo.Without(m.online, name)
	m.voice = lo.Without(m.voice, name)
}

// SetVoice adds or removes a user from the voice set.
func (m *Mirror) SetVoice(name string, joining bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !joining {
		m.voice = lo.Without(m.voice, name)
		return
	}
	if !lo.Contains(m.voice, name) {
		m.voice = append(m.voice, name)
	}
}

// AddGuild appends a guild. It reports false if the id is already known.
func (m *Mirror) AddGuild(id int64, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.guildIndexLocked(id) >= 0 {
		return false
	}
	m.guilds = append(m.guilds, Guild{ID: id, Name: name})
	return true
}

// AddChannel appends a channel under guildID. It reports false, leaving the
// tree unchanged, when the guild is unknown or the channel already exists.
func (m *Mirror) AddChannel(guildID, id int64, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.guildIndexLocked(guildID)
	if i < 0 {
		return false
	}
	g := &m.guilds[i]
	if lo.ContainsBy(g.Channels, func(ch Channel) bool { return ch.ID == id }) {
		return false
	}
	g.Channels = append(g.Channels, Channel{ID: id, Name: name})
	return true
}

// ReplaceTree swaps in a whole new guild tree.
func (m *Mirror) ReplaceTree(guilds []Guild) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.guilds = cloneGuilds(guilds)
}

// SelectGuild selects the guild at index i.
func (m *Mirror) SelectGuild(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel.Guild = i
	m.normalizeLocked()
}

// SelectChannel selects the channel at index i in the selected guild.
func (m *Mirror) SelectChannel(i int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalizeLocked()
	m.sel.Channel = i
	m.sel.Scroll = 0
	m.normalizeLocked()
}

// Scroll moves the view by delta lines; positive scrolls back in history.
func (m *Mirror) Scroll(delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel.Scroll += delta
	m.clampScrollLocked(DefaultWindow)
}

// ActiveChannelID returns the id of the channel on screen.
func (m *Mirror) ActiveChannelID() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalizeLocked()
	return m.activeChannelLocked()
}

// Window returns the visible slice of the active channel's history, at most
// size lines, honoring the scroll offset.
func (m *Mirror) Window(size int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalizeLocked()

	id, ok := m.activeChannelLocked()
	if !ok {
		return nil
	}
	m.clampScrollLocked(size)
	history := m.histories[id]
	start := max(0, len(history)-size-m.sel.Scroll)
	end := min(len(history), start+size)
	return slices.Clone(history[start:end])
}

// Snapshot returns a deep copy of the mirror.
func (m *Mirror) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.normalizeLocked()

	histories := make(map[int64][]string, len(m.histories))
	for id, lines := range m.histories {
		histories[id] = slices.Clone(lines)
	}
	active, _ := m.activeChannelLocked()
	return Snapshot{
		Guilds:          cloneGuilds(m.guilds),
		Histories:       histories,
		Online:          slices.Clone(m.online),
		Voice:           slices.Clone(m.voice),
		Selection:       m.sel,
		ActiveChannelID: active,
	}
}

func (m *Mirror) guildIndexLocked(id int64) int {
	return slices.IndexFunc(m.guilds, func(g Guild) bool { return g.ID == id })
}

// normalizeLocked clamps the selection to the current tree. Moving to a
// different guild resets the channel and the scroll offset.
func (m *Mirror) normalizeLocked() {
	if len(m.guilds) == 0 {
		m.sel = Selection{}
		m.lastGuild = -1
		return
	}
	m.sel.Guild = min(max(m.sel.Guild, 0), len(m.guilds)-1)
	if m.sel.Guild != m.lastGuild {
		m.sel.Channel = 0
		m.sel.Scroll = 0
		m.lastGuild = m.sel.Guild
	}
	channels := m.guilds[m.sel.Guild].Channels
	if len(channels) == 0 {
		m.sel.Channel = 0
		return
	}
	m.sel.Channel = min(max(m.sel.Channel, 0), len(channels)-1)
}

func (m *Mirror) activeChannelLocked() (int64, bool) {
	if len(m.guilds) == 0 || m.sel.Guild >= len(m.guilds) {
		return 0, false
	}
	channels := m.guilds[m.sel.Guild].Channels
	if len(channels) == 0 || m.sel.Channel >= len(channels) {
		return 0, false
	}
	return channels[m.sel.Channel].ID, true
}

func (m *Mirror) clampScrollLocked(size int) {
	total := 0
	if id, ok := m.activeChannelLocked(); ok {
		total = len(m.histories[id])
	}
	m.sel.Scroll = min(max(m.sel.Scroll, 0), max(0, total-size))
}

func cloneGuilds(guilds []Guild) []Guild {
	return lo.Map(guilds, func(g Guild, _ int) Guild {
		g.Channels = slices.Clone(g.Channels)
		return g
	})
}
