package match

import (
	"errors"
	"testing"
	"time"
)

func TestDrawFlow(t *testing.T) {
	s := newTestSession()
	if err := s.Propose("x", OfferDraw); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	res, err := s.Respond("y", OfferDraw, true, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if !res.Accepted || res.Proposer != "x" {
		t.Fatalf("unexpected resolution %+v", res)
	}
	if s.Status != StatusDraw || s.WinnerLabel() != "Draw" || s.Method != MethodAgreement {
		t.Fatalf("session should be drawn: %+v", s)
	}
	if s.Offer.Pending() {
		t.Fatalf("offer must be cleared")
	}
}

func TestDeclineClearsOffer(t *testing.T) {
	s := newTestSession()
	_ = s.Propose("y", OfferDraw)
	res, err := s.Respond("x", OfferDraw, false, t0)
	if err != nil || res.Accepted {
		t.Fatalf("expected decline, got %+v %v", res, err)
	}
	if s.Status != StatusPlaying || s.Offer.Pending() {
		t.Fatalf("decline should only clear the offer")
	}
}

func TestSecondOfferRejected(t *testing.T) {
	s := newTestSession()
	_ = s.Propose("x", OfferDraw)
	if err := s.Propose("y", OfferTakeback); !errors.Is(err, ErrOfferPending) {
		t.Fatalf("expected ErrOfferPending, got %v", err)
	}
	if s.Offer.Kind != OfferDraw || s.Offer.Proposer != "x" {
		t.Fatalf("pending offer must be unchanged: %+v", s.Offer)
	}
}

func TestRespondWithoutMatchingOffer(t *testing.T) {
	s := newTestSession()
	if _, err := s.Respond("y", OfferDraw, true, t0); !errors.Is(err, ErrNoOfferPending) {
		t.Fatalf("expected ErrNoOfferPending, got %v", err)
	}
	_ = s.Propose("x", OfferTakeback)
	if _, err := s.Respond("y", OfferDraw, true, t0); !errors.Is(err, ErrNoOfferPending) {
		t.Fatalf("kind mismatch should be rejected, got %v", err)
	}
	if _, err := s.Respond("x", OfferTakeback, true, t0); !errors.Is(err, ErrOwnOffer) {
		t.Fatalf("proposer cannot answer, got %v", err)
	}
	if _, err := s.Respond("z", OfferTakeback, true, t0); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("outsider cannot answer, got %v", err)
	}
	if s.Status != StatusPlaying || s.Offer.Kind != OfferTakeback {
		t.Fatalf("rejected responses must not change state")
	}
}

func TestTakebackWithShortHistoryDeclines(t *testing.T) {
	s := newTestSession()
	_ = s.Propose("x", OfferTakeback)
	res, err := s.Respond("y", OfferTakeback, true, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}
	if res.Accepted || !errors.Is(res.Reason, ErrNoHistory) {
		t.Fatalf("expected decline with ErrNoHistory, got %+v", res)
	}
	if s.Position != StartPosition || s.Turn != White || !s.LastActivity.Equal(t0) {
		t.Fatalf("position and turn must be unchanged")
	}
}

func TestTakebackRoundTrip(t *testing.T) {
	s := newTestSession()
	_ = s.ApplyMove("x", "after-e4", Black, "e4", t0.Add(time.Second))
	_ = s.ApplyMove("y", "after-e5", White, "e5", t0.Add(2*time.Second))
	before := s.Position

	_ = s.Propose("y", OfferTakeback)
	res, err := s.Respond("x", OfferTakeback, true, t0.Add(3*time.Second))
	if err != nil || !res.Accepted {
		t.Fatalf("takeback failed: %+v %v", res, err)
	}
	if s.Position != "after-e4" || s.Turn != White || len(s.History) != 2 || len(s.SAN) != 1 {
		t.Fatalf("unexpected rollback state: pos=%s turn=%s hist=%v san=%v", s.Position, s.Turn, s.History, s.SAN)
	}
	if !s.LastActivity.Equal(t0.Add(3 * time.Second)) {
		t.Fatalf("takeback should reset the idle clock")
	}

	_ = s.ApplyMove("y", "after-e5", White, "e5", t0.Add(4*time.Second))
	if s.Position != before || len(s.History) != 3 {
		t.Fatalf("re-applying the move should restore the position")
	}
}

func TestOfferStatusGates(t *testing.T) {
	s := newTestSession()
	if err := s.Propose("x", OfferRematch); !errors.Is(err, ErrNotFinished) {
		t.Fatalf("rematch during play should fail, got %v", err)
	}
	_ = s.ReportCheckmate("x", White, t0)
	if err := s.Propose("x", OfferDraw); !errors.Is(err, ErrNotPlaying) {
		t.Fatalf("draw after the end should fail, got %v", err)
	}
	if err := s.Propose("y", OfferRematch); err != nil {
		t.Fatalf("rematch after the end should succeed, got %v", err)
	}
	res, err := s.Respond("x", OfferRematch, true, t0)
	if err != nil || !res.Accepted || res.Kind != OfferRematch {
		t.Fatalf("unexpected rematch resolution %+v %v", res, err)
	}
	if s.Status != StatusCheckmate {
		t.Fatalf("old session must keep its terminal status")
	}
}

func TestRematchOnlyOnce(t *testing.T) {
	s := newTestSession()
	_ = s.ReportCheckmate("x", White, t0)
	if err := s.Propose("y", OfferRematch); err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if _, err := s.Respond("x", OfferRematch, true, t0); err != nil {
		t.Fatalf("Respond: %v", err)
	}
	s.MarkRematched("m_next")
	if err := s.Propose("x", OfferRematch); !errors.Is(err, ErrRematched) {
		t.Fatalf("second rematch should be refused, got %v", err)
	}
	if s.Status != StatusCheckmate {
		t.Fatalf("old session must keep its terminal status, got %s", s.Status)
	}
}
