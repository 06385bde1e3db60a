package match

import (
	"time"

	"github.com/park285/cheese-relay/internal/presence"
)

// Resolution is the outcome of answering an offer.
type Resolution struct {
	Kind      OfferKind
	Proposer  presence.ConnID
	Responder presence.ConnID
	Accepted  bool
	// Reason is set when an acceptance had to be turned into a decline.
	Reason error
}

// Propose fills the offer slot. Draw and takeback need a session in play; rematch needs a finished one.
func (s *Session) Propose(from presence.ConnID, kind OfferKind) error {
	if !s.IsParticipant(from) {
		return ErrNotParticipant
	}
	if s.Offer.Pending() {
		return ErrOfferPending
	}
	switch kind {
	case OfferDraw, OfferTakeback:
		if s.Status != StatusPlaying {
			return ErrNotPlaying
		}
	case OfferRematch:
		if !s.Status.Terminal() {
			return ErrNotFinished
		}
		if s.RematchedTo != "" {
			return ErrRematched
		}
	default:
		return ErrUnknownOffer
	}
	s.Offer = Offer{Kind: kind, Proposer: from}
	return nil
}

// Respond answers the pending offer of the given kind and clears the slot.
// An accepted draw finishes the session; an accepted takeback rolls back one position
// and keeps the relayed turn. A rematch is only marked accepted; the caller creates the new session.
func (s *Session) Respond(from presence.ConnID, kind OfferKind, accepted bool, now time.Time) (Resolution, error) {
	if !s.IsParticipant(from) {
		return Resolution{}, ErrNotParticipant
	}
	if !s.Offer.Pending() || s.Offer.Kind != kind {
		return Resolution{}, ErrNoOfferPending
	}
	if s.Offer.Proposer == from {
		return Resolution{}, ErrOwnOffer
	}
	res := Resolution{Kind: kind, Proposer: s.Offer.Proposer, Responder: from, Accepted: accepted}
	s.Offer = Offer{}
	if !accepted {
		return res, nil
	}

	switch kind {
	case OfferDraw:
		s.finish(StatusDraw, "", MethodAgreement, now)
	case OfferTakeback:
		if !s.rollback(now) {
			res.Accepted = false
			res.Reason = ErrNoHistory
		}
	}
	return res, nil
}

// MarkRematched links the finished session to its successor. Further rematch offers are refused.
func (s *Session) MarkRematched(next string) {
	s.RematchedTo = next
}

func (s *Session) rollback(now time.Time) bool {
	if len(s.History) < 2 {
		return false
	}
	s.History = s.History[:len(s.History)-1]
	if n := len(s.SAN); n > 0 {
		s.SAN = s.SAN[:n-1]
	}
	s.Position = s.History[len(s.History)-1]
	s.LastActivity = now
	return true
}
