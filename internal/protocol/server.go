package protocol

import (
	"encoding/json"

	"github.com/park285/cheese-relay/internal/match"
)

// ServerEvent is a typed outbound payload.
type ServerEvent interface {
	EventName() string
}

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Encode renders ev as an envelope frame.
func Encode(ev ServerEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: ev.EventName(), Payload: payload})
}

type Connected struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
}

type PlayerCount struct {
	Count int `json:"count"`
}

type MatchFound struct {
	SessionID    string      `json:"sessionId"`
	OpponentID   string      `json:"opponentId"`
	OpponentName string      `json:"opponentName"`
	Color        match.Color `json:"color"`
	TimeControl  int         `json:"timeControl"`
	Token        string      `json:"token"`
	Status       string      `json:"status,omitempty"`
}

type StateSync struct {
	SessionID string `json:"sessionId"`
	Position  string `json:"position"`
	Turn      string `json:"turn"`
	Status    string `json:"status,omitempty"`
}

// GameOverNotice carries the winner color, or "Draw".
type GameOverNotice struct {
	SessionID string `json:"sessionId"`
	Winner    string `json:"winner"`
}

type TimeOutNotice struct {
	SessionID string      `json:"sessionId"`
	Loser     match.Color `json:"loser"`
	Winner    match.Color `json:"winner"`
}

// OfferNotice is sent to the other participant only.
type OfferNotice struct {
	Kind      match.OfferKind `json:"-"`
	SessionID string          `json:"sessionId"`
	From      string          `json:"from"`
}

type OfferDeclined struct {
	Kind      match.OfferKind `json:"-"`
	SessionID string          `json:"sessionId"`
	By        string          `json:"by"`
	Reason    string          `json:"reason,omitempty"`
}

type OfferRejected struct {
	SessionID string          `json:"sessionId"`
	Kind      match.OfferKind `json:"kind"`
	Reason    string          `json:"reason"`
}

type StallClaimRejected struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type OpponentDisconnected struct {
	SessionID string      `json:"sessionId"`
	Color     match.Color `json:"color"`
}

type OpponentReconnected struct {
	SessionID string      `json:"sessionId"`
	Color     match.Color `json:"color"`
}

type SpectateJoined struct {
	SessionID   string `json:"sessionId"`
	White       string `json:"white"`
	Black       string `json:"black"`
	TimeControl int    `json:"timeControl"`
	Position    string `json:"position"`
	Turn        string `json:"turn"`
	Status      string `json:"status"`
}

type SpectateError struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type ReconnectError struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// RequestRejected answers a malformed or misrouted request.
type RequestRejected struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

type ChatMessage struct {
	SessionID string `json:"sessionId"`
	From      string `json:"from"`
	Text      string `json:"text"`
}

type WantToPlayRejected struct {
	TimeControl int    `json:"timeControl"`
	Reason      string `json:"reason"`
}

func (Connected) EventName() string            { return "connected" }
func (PlayerCount) EventName() string          { return "total_players_count_change" }
func (MatchFound) EventName() string           { return "match_found" }
func (StateSync) EventName() string            { return "sync_state_from_server" }
func (GameOverNotice) EventName() string       { return "game_over_from_server" }
func (TimeOutNotice) EventName() string        { return "time_out_from_server" }
func (e OfferNotice) EventName() string        { return string(e.Kind) + "_offer_from_server" }
func (e OfferDeclined) EventName() string      { return string(e.Kind) + "_declined" }
func (OfferRejected) EventName() string        { return "offer_rejected" }
func (StallClaimRejected) EventName() string   { return "stall_claim_rejected" }
func (OpponentDisconnected) EventName() string { return "opponent_disconnected" }
func (OpponentReconnected) EventName() string  { return "opponent_reconnected" }
func (SpectateJoined) EventName() string       { return "spectate_joined" }
func (SpectateError) EventName() string        { return "spectate_error" }
func (ReconnectError) EventName() string       { return "reconnect_error" }
func (RequestRejected) EventName() string      { return "request_rejected" }
func (ChatMessage) EventName() string          { return "chat_message_from_server" }
func (WantToPlayRejected) EventName() string   { return "want_to_play_rejected" }
