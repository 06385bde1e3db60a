package coordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-relay/internal/presence"
	"github.com/park285/cheese-relay/internal/protocol"
)

type sent struct {
	to presence.ConnID
	ev protocol.ServerEvent
}

type recorder struct {
	mu   sync.Mutex
	msgs []sent
}

func (r *recorder) Send(to presence.ConnID, ev protocol.ServerEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, sent{to: to, ev: ev})
}

func (r *recorder) to(id presence.ConnID) []protocol.ServerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.ServerEvent
	for _, m := range r.msgs {
		if m.to == id {
			out = append(out, m.ev)
		}
	}
	return out
}

// names lists event names sent to id, skipping player count broadcasts.
func (r *recorder) names(id presence.ConnID) []string {
	var out []string
	for _, ev := range r.to(id) {
		if _, ok := ev.(protocol.PlayerCount); ok {
			continue
		}
		out = append(out, ev.EventName())
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *recorder, *fakeClock) {
	t.Helper()
	rec := &recorder{}
	clk := &fakeClock{t: time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)}
	c := New(rec, append([]Option{WithClock(clk.now)}, opts...)...)
	return c, rec, clk
}

// pair connects x and y, pairs them under tc and returns the new session id.
func pair(t *testing.T, c *Coordinator, rec *recorder, x, y presence.ConnID, tc int) string {
	t.Helper()
	c.Connect(x)
	c.Connect(y)
	c.Handle(x, protocol.WantToPlay{TimeControl: tc})
	c.Handle(y, protocol.WantToPlay{TimeControl: tc})
	for _, ev := range rec.to(x) {
		if mf, ok := ev.(protocol.MatchFound); ok {
			rec.reset()
			return mf.SessionID
		}
	}
	t.Fatalf("no match_found for %s", x)
	return ""
}

func lastOf[T protocol.ServerEvent](t *testing.T, evs []protocol.ServerEvent) T {
	t.Helper()
	for i := len(evs) - 1; i >= 0; i-- {
		if v, ok := evs[i].(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("no %T among %d events", zero, len(evs))
	return zero
}

func equalNames(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
