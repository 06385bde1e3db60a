// Package match owns the per-session state machine: moves, offers, spectators and stall claims.
package match

import (
	"strings"

	"github.com/park285/cheese-relay/internal/presence"
)

// Color identifies a seat.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// ParseColor accepts white/black and the w/b shorthand, case-insensitively.
func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	default:
		return "", false
	}
}

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// Short is the one-letter side-to-move form used on the wire.
func (c Color) Short() string {
	if c == Black {
		return "b"
	}
	return "w"
}

// Status is the session lifecycle state.
type Status string

const (
	StatusPlaying   Status = "playing"
	StatusDraw      Status = "draw"
	StatusCheckmate Status = "checkmate"
	StatusTimeout   Status = "timeout"
	StatusStalled   Status = "stalled-disconnect"
)

// Terminal reports an absorbing state.
func (s Status) Terminal() bool {
	return s == StatusDraw || s == StatusCheckmate || s == StatusTimeout
}

type OfferKind string

const (
	OfferNone     OfferKind = ""
	OfferDraw     OfferKind = "draw"
	OfferTakeback OfferKind = "takeback"
	OfferRematch  OfferKind = "rematch"
)

// Offer is the single proposal slot of a session.
type Offer struct {
	Kind     OfferKind
	Proposer presence.ConnID
}

func (o Offer) Pending() bool { return o.Kind != OfferNone }

// Participant is one seat. Token lets a new connection take the seat over.
type Participant struct {
	Conn  presence.ConnID
	Name  string
	Token string
}

// StartPosition is the opaque initial position relayed to both seats.
const StartPosition = "start"

// Result methods recorded on terminal sessions.
const (
	MethodCheckmate = "checkmate"
	MethodFlag      = "flag"
	MethodAgreement = "agreement"
	MethodStall     = "stall"
)

var (
	ErrNotParticipant = errf("connection is not a participant of the session")
	ErrNotPlaying     = errf("session is not in play")
	ErrOfferPending   = errf("another offer is already pending")
	ErrNoOfferPending = errf("no matching offer is pending")
	ErrOwnOffer       = errf("proposer cannot answer its own offer")
	ErrNotFinished    = errf("session has not finished")
	ErrNoHistory      = errf("no move to take back")
	ErrStallTooEarly  = errf("stall threshold not reached")
	ErrNotClaimable   = errf("session cannot be claimed in its current state")
	ErrDuplicateID    = errf("session id already registered")
	ErrUnknownOffer   = errf("unknown offer kind")
	ErrRematched      = errf("session has already been rematched")
	ErrNotOwnClock    = errf("participants may only report their own clock")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
