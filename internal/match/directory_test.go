package match

import (
	"errors"
	"testing"
	"time"

	"github.com/park285/cheese-relay/internal/presence"
)

func addSession(t *testing.T, d *Directory, id string, white, black presence.ConnID, at time.Time) *Session {
	t.Helper()
	s := NewSession(id, 5, Participant{Conn: white}, Participant{Conn: black}, at)
	if err := d.Add(s); err != nil {
		t.Fatalf("Add %s: %v", id, err)
	}
	return s
}

func TestDirectoryLookups(t *testing.T) {
	d := NewDirectory()
	a := addSession(t, d, "a", "x", "y", t0)
	b := addSession(t, d, "b", "y", "x", t0.Add(time.Minute))
	addSession(t, d, "c", "p", "q", t0)

	if err := d.Add(a); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if got := d.ByParticipant("x"); len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("unexpected ByParticipant result")
	}
	b.AddSpectator("s")
	if got := d.WithSpectator("s"); len(got) != 1 || got[0] != b {
		t.Fatalf("unexpected WithSpectator result")
	}
	if !d.Remove("c") || d.Remove("c") || d.Len() != 2 {
		t.Fatalf("remove should succeed once")
	}
}

func TestActiveForPrefersPlaying(t *testing.T) {
	d := NewDirectory()
	old := addSession(t, d, "old", "x", "y", t0)
	finished := addSession(t, d, "finished", "x", "y", t0.Add(time.Minute))
	_ = finished.ReportCheckmate("x", White, t0)

	if got, ok := d.ActiveFor("x"); !ok || got != old {
		t.Fatalf("expected the playing session")
	}
	_ = old.ReportCheckmate("x", White, t0)
	if got, ok := d.ActiveFor("x"); !ok || got != finished {
		t.Fatalf("expected the newest session when none is playing")
	}
	if _, ok := d.ActiveFor("nobody"); ok {
		t.Fatalf("unknown connection has no session")
	}
}

func TestEvict(t *testing.T) {
	d := NewDirectory()
	done := addSession(t, d, "done", "x", "y", t0)
	_ = done.ReportCheckmate("x", White, t0)
	stalled := addSession(t, d, "stalled", "p", "q", t0)
	stalled.Disconnect("p")
	addSession(t, d, "live", "m", "n", t0)

	if got := d.Evict(t0.Add(time.Hour), 0, nil); got != nil {
		t.Fatalf("zero retention must disable eviction")
	}

	live := func(id presence.ConnID) bool { return id == "q" }
	got := d.Evict(t0.Add(time.Hour), 10*time.Minute, live)
	if len(got) != 1 || got[0] != "done" {
		t.Fatalf("only the finished session should go, got %v", got)
	}

	got = d.Evict(t0.Add(time.Hour), 10*time.Minute, func(presence.ConnID) bool { return false })
	if len(got) != 1 || got[0] != "stalled" {
		t.Fatalf("abandoned stalled session should go, got %v", got)
	}
	if _, ok := d.Get("live"); !ok {
		t.Fatalf("playing sessions are never evicted")
	}
}
