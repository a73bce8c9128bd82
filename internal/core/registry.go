package core

import (
	"sync"

	"github.com/rs/zerolog"
)

// Roster is what a newly registered session learns about everyone online,
// itself included.
type Roster struct {
	Names []string
	Voice []string
}

// Registry is the set of connected sessions. Every method holds one
// exclusive lock for its full duration, so a broadcast is never interleaved
// with a register or unregister. Lock order is registry then session.
type Registry struct {
	mu       sync.Mutex
	sessions []*Session
	log      *zerolog.Logger
}

// NewRegistry creates an empty registry. A nil logger disables logging.
func NewRegistry(logger *zerolog.Logger) *Registry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Registry{log: logger}
}

// Register adds s and returns the roster as of the registration.
func (r *Registry) Register(s *Session) Roster {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(s) < 0 {
		r.sessions = append(r.sessions, s)
	}
	return Roster{Names: r.namesLocked(false), Voice: r.namesLocked(true)}
}

// Unregister removes s. It reports whether s was registered.
func (r *Registry) Unregister(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(s)
}

// Broadcast delivers ev to every registered session except exclude, in
// registration order. A session whose delivery fails is removed and closed
// in the same pass. It returns the number of successful deliveries.
func (r *Registry) Broadcast(ev Event, exclude *Session) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	delivered := 0
	kept := r.sessions[:0]
	for _, s := range r.sessions {
		if s == exclude {
			kept = append(kept, s)
			continue
		}
		if err := s.Send(ev); err != nil {
			r.log.Debug().Err(err).Str("session_id", s.ID).Msg("dropping session after failed delivery")
			s.inVoice = false
			_ = s.Close()
			continue
		}
		delivered++
		kept = append(kept, s)
	}
	clear(r.sessions[len(kept):])
	r.sessions = kept
	return delivered
}

// SetVoice records whether s is in the voice room. It reports false with
// no effect when s is not registered.
func (r *Registry) SetVoice(s *Session, joining bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.indexLocked(s) < 0 {
		return false
	}
	s.inVoice = joining
	return true
}

// Names returns the display names of registered sessions.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked(false)
}

// VoiceNames returns the display names of sessions in the voice room.
func (r *Registry) VoiceNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.namesLocked(true)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Contains reports whether s is registered.
func (r *Registry) Contains(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexLocked(s) >= 0
}

func (r *Registry) indexLocked(s *Session) int {
	for i, cur := range r.sessions {
		if cur == s {
			return i
		}
	}
	return -1
}

func (r *Registry) removeLocked(s *Session) bool {
	i := r.indexLocked(s)
	if i < 0 {
		return false
	}
	copy(r.sessions[i:], r.sessions[i+1:])
	r.sessions[len(r.sessions)-1] = nil
	r.sessions = r.sessions[:len(r.sessions)-1]
	s.inVoice = false
	return true
}

func (r *Registry) namesLocked(voiceOnly bool) []string {
	names := make([]string, 0, len(r.sessions))
	for _, s := range r.sessions {
		if voiceOnly && !s.inVoice {
			continue
		}
		names = append(names, s.Name())
	}
	return names
}
