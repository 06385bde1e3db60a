package match

import (
	"errors"
	"testing"
	"time"
)

func TestStallClaimBeforeThreshold(t *testing.T) {
	s := newTestSession()
	ev := StallEvaluator{Threshold: 2 * time.Minute}
	_, err := ev.Claim(s, "x", t0.Add(119*time.Second))
	if !errors.Is(err, ErrStallTooEarly) {
		t.Fatalf("expected ErrStallTooEarly, got %v", err)
	}
	var early *StallTooEarlyError
	if !errors.As(err, &early) || early.Idle != 119*time.Second {
		t.Fatalf("expected idle detail, got %v", err)
	}
	if s.Status != StatusPlaying {
		t.Fatalf("rejected claim must not change status")
	}
}

func TestStallClaimAtThreshold(t *testing.T) {
	s := newTestSession()
	ev := StallEvaluator{Threshold: 2 * time.Minute}
	c, err := ev.Claim(s, "y", t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if c != Black || s.Status != StatusTimeout || s.Winner != Black || s.Method != MethodStall {
		t.Fatalf("unexpected result color=%s session=%+v", c, s)
	}
}

func TestStallClaimAgainstDisconnectedOpponent(t *testing.T) {
	s := newTestSession()
	s.Disconnect("y")
	c, err := StallEvaluator{}.Claim(s, "x", t0.Add(DefaultStallThreshold))
	if err != nil || c != White {
		t.Fatalf("claim on a stalled session should succeed: %s %v", c, err)
	}
}

func TestStallClaimRejections(t *testing.T) {
	s := newTestSession()
	ev := StallEvaluator{Threshold: time.Minute}
	if _, err := ev.Claim(s, "z", t0.Add(time.Hour)); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("outsider claim should fail, got %v", err)
	}
	_ = s.ReportCheckmate("x", White, t0)
	if _, err := ev.Claim(s, "y", t0.Add(time.Hour)); !errors.Is(err, ErrNotClaimable) {
		t.Fatalf("finished session cannot be claimed, got %v", err)
	}
}
