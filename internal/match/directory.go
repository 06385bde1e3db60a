package match

import (
	"time"

	"github.com/park285/cheese-relay/internal/presence"
)

// Directory indexes live sessions by id in creation order. It is owned by the coordinator goroutine.
type Directory struct {
	sessions map[string]*Session
	order    []string
}

func NewDirectory() *Directory {
	return &Directory{sessions: make(map[string]*Session)}
}

func (d *Directory) Add(s *Session) error {
	if _, ok := d.sessions[s.ID]; ok {
		return ErrDuplicateID
	}
	d.sessions[s.ID] = s
	d.order = append(d.order, s.ID)
	return nil
}

func (d *Directory) Get(id string) (*Session, bool) {
	s, ok := d.sessions[id]
	return s, ok
}

func (d *Directory) Remove(id string) bool {
	if _, ok := d.sessions[id]; !ok {
		return false
	}
	delete(d.sessions, id)
	for i, v := range d.order {
		if v == id {
			d.order = append(d.order[:i:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

func (d *Directory) Len() int { return len(d.sessions) }

// All returns every session in creation order.
func (d *Directory) All() []*Session {
	out := make([]*Session, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.sessions[id])
	}
	return out
}

// ByParticipant returns the sessions where id holds a seat, oldest first.
func (d *Directory) ByParticipant(id presence.ConnID) []*Session {
	var out []*Session
	for _, sid := range d.order {
		if s := d.sessions[sid]; s.IsParticipant(id) {
			out = append(out, s)
		}
	}
	return out
}

// WithSpectator returns the sessions id is watching.
func (d *Directory) WithSpectator(id presence.ConnID) []*Session {
	var out []*Session
	for _, sid := range d.order {
		if s := d.sessions[sid]; s.IsSpectator(id) {
			out = append(out, s)
		}
	}
	return out
}

// ActiveFor resolves the session an event without a session id refers to:
// the newest playing session of id, else the newest stalled one, else the newest of any status.
func (d *Directory) ActiveFor(id presence.ConnID) (*Session, bool) {
	var stalled, latest *Session
	for i := len(d.order) - 1; i >= 0; i-- {
		s := d.sessions[d.order[i]]
		if !s.IsParticipant(id) {
			continue
		}
		switch s.Status {
		case StatusPlaying:
			return s, true
		case StatusStalled:
			if stalled == nil {
				stalled = s
			}
		default:
			if latest == nil {
				latest = s
			}
		}
	}
	if stalled != nil {
		return stalled, true
	}
	return latest, latest != nil
}

// Evict removes sessions that ended more than retention ago, and stalled sessions idle
// for longer than retention with no live seat. A non-positive retention disables eviction.
func (d *Directory) Evict(now time.Time, retention time.Duration, live func(presence.ConnID) bool) []string {
	if retention <= 0 {
		return nil
	}
	var evicted []string
	for _, s := range d.All() {
		switch {
		case s.Status.Terminal():
			if now.Sub(s.EndedAt) < retention {
				continue
			}
		case s.Status == StatusStalled:
			if now.Sub(s.LastActivity) < retention {
				continue
			}
			if live != nil && (live(s.White.Conn) || live(s.Black.Conn)) {
				continue
			}
		default:
			continue
		}
		d.Remove(s.ID)
		evicted = append(evicted, s.ID)
	}
	return evicted
}
