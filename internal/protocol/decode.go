package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/park285/cheese-relay/internal/match"
)

// DecodeError describes a frame that could not be turned into a ClientEvent.
type DecodeError struct {
	Event   string
	Reason  string
	Unknown bool
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return "decode: " + e.Reason
	}
	return fmt.Sprintf("decode %s: %s", e.Event, e.Reason)
}

func malformed(event, reason string) error { return &DecodeError{Event: event, Reason: reason} }

// Decode parses one {"event","payload"} frame. Payloads accept both the bare value
// form and the object form for every event.
func Decode(raw []byte) (ClientEvent, error) {
	if !gjson.ValidBytes(raw) {
		return nil, malformed("", "invalid json")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, malformed("", "frame is not an object")
	}
	name := strings.TrimSpace(root.Get("event").String())
	if name == "" {
		return nil, malformed("", "missing event name")
	}
	p := root.Get("payload")

	switch name {
	case EventWantToPlay:
		return decodeWantToPlay(p)
	case EventSyncState:
		return decodeSyncState(p)
	case EventGameOver:
		return decodeGameOver(p)
	case EventTimeOut:
		return decodeTimeOut(p)
	case EventDrawOffer:
		return OfferProposal{SessionID: sessionID(p), Kind: match.OfferDraw}, nil
	case EventTakebackRequest:
		return OfferProposal{SessionID: sessionID(p), Kind: match.OfferTakeback}, nil
	case EventRematchRequest:
		return OfferProposal{SessionID: sessionID(p), Kind: match.OfferRematch}, nil
	case EventDrawResponse:
		return decodeResponse(name, match.OfferDraw, p)
	case EventTakebackResponse:
		return decodeResponse(name, match.OfferTakeback, p)
	case EventRematchResponse:
		return decodeResponse(name, match.OfferRematch, p)
	case EventClaimStall:
		id := sessionRef(p)
		return ClaimStall{SessionID: id}, nil
	case EventSpectate:
		id := sessionRef(p)
		if id == "" {
			return nil, malformed(name, "sessionId is required")
		}
		return Spectate{SessionID: id}, nil
	case EventReconnect:
		id := sessionRef(p)
		if id == "" {
			return nil, malformed(name, "sessionId is required")
		}
		return Reconnect{SessionID: id, Token: strings.TrimSpace(p.Get("token").String())}, nil
	case EventSetName:
		n := textOf(p, "name")
		if strings.TrimSpace(n) == "" {
			return nil, malformed(name, "name is required")
		}
		return SetName{Name: n}, nil
	case EventChat:
		text := textOf(p, "text")
		if strings.TrimSpace(text) == "" {
			return nil, malformed(name, "text is required")
		}
		return Chat{SessionID: sessionID(p), Text: text}, nil
	default:
		return nil, &DecodeError{Event: name, Reason: "unknown event", Unknown: true}
	}
}

func decodeWantToPlay(p gjson.Result) (ClientEvent, error) {
	v := p
	if p.IsObject() {
		v = p.Get("timeControl")
	}
	switch v.Type {
	case gjson.Number:
		n := v.Int()
		if float64(n) != v.Num {
			return nil, malformed(EventWantToPlay, "timeControl must be a whole number")
		}
		return WantToPlay{TimeControl: int(n)}, nil
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return nil, malformed(EventWantToPlay, "timeControl must be a number")
		}
		return WantToPlay{TimeControl: n}, nil
	default:
		return nil, malformed(EventWantToPlay, "timeControl is required")
	}
}

func decodeSyncState(p gjson.Result) (ClientEvent, error) {
	if !p.IsObject() {
		return nil, malformed(EventSyncState, "payload must be an object")
	}
	pos := strings.TrimSpace(p.Get("position").String())
	if pos == "" {
		return nil, malformed(EventSyncState, "position is required")
	}
	turn, ok := match.ParseColor(p.Get("turn").String())
	if !ok {
		return nil, malformed(EventSyncState, "turn must be w or b")
	}
	return SyncState{
		SessionID: sessionID(p),
		Position:  pos,
		Turn:      turn,
		Move:      strings.TrimSpace(p.Get("move").String()),
	}, nil
}

func decodeGameOver(p gjson.Result) (ClientEvent, error) {
	v := p
	if p.IsObject() {
		v = p.Get("winner")
	}
	winner, ok := match.ParseColor(v.String())
	if !ok {
		return nil, malformed(EventGameOver, "winner must be white or black")
	}
	return GameOver{SessionID: sessionID(p), Winner: winner}, nil
}

func decodeTimeOut(p gjson.Result) (ClientEvent, error) {
	if !p.IsObject() {
		return nil, malformed(EventTimeOut, "payload must be an object")
	}
	loser, hasLoser := match.ParseColor(p.Get("loser").String())
	winner, hasWinner := match.ParseColor(p.Get("winner").String())
	switch {
	case hasLoser && hasWinner:
		if loser == winner {
			return nil, malformed(EventTimeOut, "loser and winner must differ")
		}
	case hasLoser:
		winner = loser.Opponent()
	case hasWinner:
		loser = winner.Opponent()
	default:
		return nil, malformed(EventTimeOut, "loser or winner is required")
	}
	return TimeOut{SessionID: sessionID(p), Loser: loser, Winner: winner}, nil
}

func decodeResponse(name string, kind match.OfferKind, p gjson.Result) (ClientEvent, error) {
	v := p
	if p.IsObject() {
		v = p.Get("accepted")
	}
	if v.Type != gjson.True && v.Type != gjson.False {
		return nil, malformed(name, "accepted must be a boolean")
	}
	return OfferResponse{SessionID: sessionID(p), Kind: kind, Accepted: v.Bool()}, nil
}

// sessionID reads the optional sessionId of an object payload.
func sessionID(p gjson.Result) string {
	if !p.IsObject() {
		return ""
	}
	return strings.TrimSpace(p.Get("sessionId").String())
}

// sessionRef accepts a bare session id string or an object carrying sessionId.
func sessionRef(p gjson.Result) string {
	if p.Type == gjson.String {
		return strings.TrimSpace(p.Str)
	}
	return sessionID(p)
}

func textOf(p gjson.Result, field string) string {
	if p.IsObject() {
		return p.Get(field).String()
	}
	if p.Type == gjson.String {
		return p.Str
	}
	return ""
}
