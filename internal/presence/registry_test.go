package presence

import (
	"strings"
	"testing"
	"time"
)

func TestRegisterAssignsDefaultName(t *testing.T) {
	r := NewRegistry(20)
	id := NewConnID()
	e := r.Register(id, time.Unix(100, 0))
	if !strings.HasPrefix(e.Name, "Guest-") {
		t.Fatalf("unexpected default name %q", e.Name)
	}
	if !r.IsLive(id) || r.Count() != 1 {
		t.Fatalf("connection should be live")
	}
	if again := r.Register(id, time.Unix(200, 0)); again != e {
		t.Fatalf("re-register should keep the entry")
	}
}

func TestSetNameTruncatesRunes(t *testing.T) {
	r := NewRegistry(5)
	id := ConnID("abc")
	r.Register(id, time.Now())

	got, ok := r.SetName(id, "  체스마스터입니다  ")
	if !ok {
		t.Fatalf("SetName should succeed")
	}
	if got != "체스마스터" {
		t.Fatalf("expected rune truncation, got %q", got)
	}
	if _, ok := r.SetName(id, "   "); ok {
		t.Fatalf("blank names should be ignored")
	}
	if r.Name(id) != "체스마스터" {
		t.Fatalf("blank name must not overwrite, got %q", r.Name(id))
	}
	if _, ok := r.SetName("missing", "x"); ok {
		t.Fatalf("unknown connection should not accept a name")
	}
}

func TestRemoveAndNameFallback(t *testing.T) {
	r := NewRegistry(20)
	r.Register("a", time.Unix(1, 0))
	r.Register("b", time.Unix(2, 0))
	if !r.Remove("a") || r.Remove("a") {
		t.Fatalf("remove should succeed once")
	}
	if r.Name("a") != "a" {
		t.Fatalf("gone connection should fall back to its id")
	}
	ids := r.IDs()
	if len(ids) != 1 || ids[0] != "b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestNewConnIDUnique(t *testing.T) {
	seen := make(map[ConnID]bool)
	for i := 0; i < 100; i++ {
		id := NewConnID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
