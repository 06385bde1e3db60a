// Package protocol defines the closed set of client and server events and their JSON envelope.
package protocol

import (
	"github.com/park285/cheese-relay/internal/match"
)

// Client event names.
const (
	EventWantToPlay       = "want_to_play"
	EventSyncState        = "sync_state"
	EventGameOver         = "game_over"
	EventTimeOut          = "time_out"
	EventDrawOffer        = "draw_offer"
	EventDrawResponse     = "draw_response"
	EventTakebackRequest  = "takeback_request"
	EventTakebackResponse = "takeback_response"
	EventRematchRequest   = "rematch_request"
	EventRematchResponse  = "rematch_response"
	EventClaimStall       = "claim_win_on_stall"
	EventSpectate         = "spectate"
	EventReconnect        = "reconnect_match"
	EventSetName          = "set_name"
	EventChat             = "chat_message"
)

// ClientEvent is implemented only by the types in this file.
type ClientEvent interface {
	EventName() string
	clientEvent()
}

type WantToPlay struct {
	TimeControl int
}

// SyncState reports the position after a move and the side to move next.
// Move is the UCI move and is only required when the relay validates moves.
type SyncState struct {
	SessionID string
	Position  string
	Turn      match.Color
	Move      string
}

type GameOver struct {
	SessionID string
	Winner    match.Color
}

type TimeOut struct {
	SessionID string
	Loser     match.Color
	Winner    match.Color
}

type OfferProposal struct {
	SessionID string
	Kind      match.OfferKind
}

type OfferResponse struct {
	SessionID string
	Kind      match.OfferKind
	Accepted  bool
}

type ClaimStall struct {
	SessionID string
}

type Spectate struct {
	SessionID string
}

type Reconnect struct {
	SessionID string
	Token     string
}

type SetName struct {
	Name string
}

type Chat struct {
	SessionID string
	Text      string
}

func (WantToPlay) EventName() string { return EventWantToPlay }
func (SyncState) EventName() string  { return EventSyncState }
func (GameOver) EventName() string   { return EventGameOver }
func (TimeOut) EventName() string    { return EventTimeOut }
func (ClaimStall) EventName() string { return EventClaimStall }
func (Spectate) EventName() string   { return EventSpectate }
func (Reconnect) EventName() string  { return EventReconnect }
func (SetName) EventName() string    { return EventSetName }
func (Chat) EventName() string       { return EventChat }

func (e OfferProposal) EventName() string {
	switch e.Kind {
	case match.OfferTakeback:
		return EventTakebackRequest
	case match.OfferRematch:
		return EventRematchRequest
	default:
		return EventDrawOffer
	}
}

func (e OfferResponse) EventName() string {
	switch e.Kind {
	case match.OfferTakeback:
		return EventTakebackResponse
	case match.OfferRematch:
		return EventRematchResponse
	default:
		return EventDrawResponse
	}
}

func (WantToPlay) clientEvent()    {}
func (SyncState) clientEvent()     {}
func (GameOver) clientEvent()      {}
func (TimeOut) clientEvent()       {}
func (OfferProposal) clientEvent() {}
func (OfferResponse) clientEvent() {}
func (ClaimStall) clientEvent()    {}
func (Spectate) clientEvent()      {}
func (Reconnect) clientEvent()     {}
func (SetName) clientEvent()       {}
func (Chat) clientEvent()          {}
