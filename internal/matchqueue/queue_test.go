package matchqueue

import (
	"errors"
	"testing"

	"github.com/park285/cheese-relay/internal/presence"
)

func allLive(presence.ConnID) bool { return true }

func TestFirstArrivalWaits(t *testing.T) {
	q := New([]int{5, 10, 15})
	if _, paired, err := q.EnqueueOrPair("x", 5, allLive); err != nil || paired {
		t.Fatalf("first arrival should wait: paired=%v err=%v", paired, err)
	}
	opp, paired, err := q.EnqueueOrPair("y", 5, allLive)
	if err != nil || !paired || opp != "x" {
		t.Fatalf("expected pairing with x, got %q paired=%v err=%v", opp, paired, err)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after pairing")
	}
}

func TestFIFOOrder(t *testing.T) {
	// seeded directly: through EnqueueOrPair a bucket rarely holds more than one waiter
	q := New([]int{5})
	q.buckets[5] = []presence.ConnID{"a", "b", "c"}
	opp, paired, _ := q.EnqueueOrPair("d", 5, allLive)
	if !paired || opp != "a" {
		t.Fatalf("d must pair with a, got %q", opp)
	}
	if w := q.Waiting(5); len(w) != 2 || w[0] != "b" || w[1] != "c" {
		t.Fatalf("unexpected remaining order %v", w)
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := New([]int{5})
	q.EnqueueOrPair("x", 5, allLive)
	if _, paired, _ := q.EnqueueOrPair("x", 5, allLive); paired {
		t.Fatalf("a connection must never pair with itself")
	}
	if w := q.Waiting(5); len(w) != 1 {
		t.Fatalf("expected one waiter, got %v", w)
	}
}

func TestSingleBucketPerConnection(t *testing.T) {
	q := New([]int{5, 10})
	q.EnqueueOrPair("x", 5, allLive)
	q.EnqueueOrPair("x", 10, allLive)
	if len(q.Waiting(5)) != 0 || len(q.Waiting(10)) != 1 {
		t.Fatalf("x should only wait under 10: 5=%v 10=%v", q.Waiting(5), q.Waiting(10))
	}
}

func TestDeadWaitersAreSkipped(t *testing.T) {
	q := New([]int{5})
	q.buckets[5] = []presence.ConnID{"gone1", "gone2", "alive"}
	live := func(id presence.ConnID) bool { return id == "alive" || id == "z" }
	opp, paired, _ := q.EnqueueOrPair("z", 5, live)
	if !paired || opp != "alive" {
		t.Fatalf("expected pairing with alive, got %q", opp)
	}

	q.buckets[5] = []presence.ConnID{"gone1"}
	if _, paired, _ := q.EnqueueOrPair("z", 5, live); paired {
		t.Fatalf("no live waiter, z should queue")
	}
	if w := q.Waiting(5); len(w) != 1 || w[0] != "z" {
		t.Fatalf("stale waiter should be discarded, got %v", w)
	}
}

func TestUnsupportedTimeControl(t *testing.T) {
	q := New([]int{5, 10, 15})
	if _, _, err := q.EnqueueOrPair("x", 7, allLive); !errors.Is(err, ErrUnsupportedTimeControl) {
		t.Fatalf("expected ErrUnsupportedTimeControl, got %v", err)
	}
	if q.Len() != 0 {
		t.Fatalf("rejected request must not change the queue")
	}
}

func TestRemove(t *testing.T) {
	q := New([]int{5})
	q.EnqueueOrPair("x", 5, allLive)
	if !q.Remove("x") || q.Remove("x") {
		t.Fatalf("remove should succeed once")
	}
	if got := q.TimeControls(); len(got) != 1 || got[0] != 5 {
		t.Fatalf("unexpected time controls %v", got)
	}
}
