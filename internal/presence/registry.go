// Package presence tracks live connections and their display names.
package presence

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ConnID identifies one transport link. Values are never reused.
type ConnID string

// NewConnID returns a fresh random identifier.
func NewConnID() ConnID { return ConnID(uuid.NewString()) }

// Short is the first six characters of the identifier, used in default names and session ids.
func (id ConnID) Short() string {
	s := strings.ReplaceAll(string(id), "-", "")
	if len(s) > 6 {
		return s[:6]
	}
	return s
}

type Entry struct {
	ID          ConnID
	Name        string
	ConnectedAt time.Time
}

// Registry is owned by the coordinator goroutine and is not safe for concurrent use.
type Registry struct {
	nameMax int
	entries map[ConnID]*Entry
}

func NewRegistry(nameMax int) *Registry {
	if nameMax <= 0 {
		nameMax = 20
	}
	return &Registry{nameMax: nameMax, entries: make(map[ConnID]*Entry)}
}

// Register adds id with a default display name. Registering a live id again keeps its entry.
func (r *Registry) Register(id ConnID, now time.Time) *Entry {
	if e, ok := r.entries[id]; ok {
		return e
	}
	e := &Entry{ID: id, Name: r.truncate("Guest-" + id.Short()), ConnectedAt: now}
	r.entries[id] = e
	return e
}

func (r *Registry) Remove(id ConnID) bool {
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

func (r *Registry) IsLive(id ConnID) bool {
	_, ok := r.entries[id]
	return ok
}

// Name returns the display name, or the raw identifier once the connection is gone.
func (r *Registry) Name(id ConnID) string {
	if e, ok := r.entries[id]; ok {
		return e.Name
	}
	return string(id)
}

// SetName stores a trimmed name cut to the configured rune bound. Blank names are ignored.
func (r *Registry) SetName(id ConnID, name string) (string, bool) {
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return e.Name, false
	}
	e.Name = r.truncate(name)
	return e.Name, true
}

func (r *Registry) Count() int { return len(r.entries) }

// IDs lists live connections in connect order.
func (r *Registry) IDs() []ConnID {
	all := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].ConnectedAt.Equal(all[j].ConnectedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].ConnectedAt.Before(all[j].ConnectedAt)
	})
	out := make([]ConnID, len(all))
	for i, e := range all {
		out[i] = e.ID
	}
	return out
}

func (r *Registry) truncate(s string) string {
	if utf8.RuneCountInString(s) <= r.nameMax {
		return s
	}
	runes := []rune(s)
	return string(runes[:r.nameMax])
}
