package coordinator

import (
	"errors"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/park285/cheese-relay/internal/match"
	"github.com/park285/cheese-relay/internal/obslog"
	"github.com/park285/cheese-relay/internal/presence"
	"github.com/park285/cheese-relay/internal/protocol"
	"github.com/park285/cheese-relay/internal/results"
	"github.com/park285/cheese-relay/internal/rules"
)

// Handle applies one decoded client event. Events from unknown connections are dropped.
func (c *Coordinator) Handle(id presence.ConnID, ev protocol.ClientEvent) {
	if !c.conns.IsLive(id) {
		return
	}
	switch e := ev.(type) {
	case protocol.WantToPlay:
		c.wantToPlay(id, e)
	case protocol.SyncState:
		c.syncState(id, e)
	case protocol.GameOver:
		c.gameOver(id, e)
	case protocol.TimeOut:
		c.timeOut(id, e)
	case protocol.OfferProposal:
		c.propose(id, e)
	case protocol.OfferResponse:
		c.respond(id, e)
	case protocol.ClaimStall:
		c.claimStall(id, e)
	case protocol.Spectate:
		c.spectate(id, e)
	case protocol.Reconnect:
		c.reconnect(id, e)
	case protocol.SetName:
		c.setName(id, e)
	case protocol.Chat:
		c.chat(id, e)
	default:
		c.send(id, protocol.RequestRejected{Event: ev.EventName(), Reason: c.text("request.unknown_event", nil)})
	}
}

// RejectMalformed answers a frame that failed to decode.
func (c *Coordinator) RejectMalformed(id presence.ConnID, err error) {
	if !c.conns.IsLive(id) {
		return
	}
	var de *protocol.DecodeError
	if !errors.As(err, &de) {
		c.send(id, protocol.RequestRejected{Reason: c.text("request.malformed", map[string]any{"Event": "frame"})})
		return
	}
	reason := c.text("request.malformed", map[string]any{"Event": de.Event})
	if de.Unknown {
		reason = c.text("request.unknown_event", nil)
	}
	obslog.L().Debug("relay_request_malformed", zap.String("conn_id", string(id)), zap.String("event", de.Event), zap.String("detail", de.Reason))
	c.send(id, protocol.RequestRejected{Event: de.Event, Reason: reason})
}

// resolve finds the session an event refers to. An empty sessionID picks the caller's
// most relevant session. On failure the message key of the reason is returned.
func (c *Coordinator) resolve(id presence.ConnID, sessionID string) (*match.Session, string) {
	if sessionID == "" {
		s, ok := c.sessions.ActiveFor(id)
		if !ok {
			return nil, "request.missing_session"
		}
		return s, ""
	}
	s, ok := c.sessions.Get(sessionID)
	if !ok {
		return nil, "request.session_not_found"
	}
	if !s.IsParticipant(id) {
		return nil, "request.not_participant"
	}
	return s, ""
}

func (c *Coordinator) rejectRequest(id presence.ConnID, event, key string) {
	c.send(id, protocol.RequestRejected{Event: event, Reason: c.text(key, nil)})
}

func (c *Coordinator) wantToPlay(id presence.ConnID, e protocol.WantToPlay) {
	if !c.queue.Supports(e.TimeControl) {
		c.send(id, protocol.WantToPlayRejected{
			TimeControl: e.TimeControl,
			Reason: c.text("queue.unsupported_time_control", map[string]any{
				"TimeControl": e.TimeControl,
				"Supported":   c.supportedList(),
			}),
		})
		return
	}
	opp, paired, err := c.queue.EnqueueOrPair(id, e.TimeControl, c.conns.IsLive)
	if err != nil {
		obslog.L().Warn("relay_queue_error", zap.String("conn_id", string(id)), zap.Int("time_control", e.TimeControl), zap.Error(err))
		return
	}
	if !paired {
		obslog.L().Info("relay_queue_wait", zap.String("conn_id", string(id)), zap.Int("time_control", e.TimeControl))
		return
	}
	if _, err := c.startSession(opp, id, e.TimeControl, ""); err != nil {
		reject := protocol.WantToPlayRejected{TimeControl: e.TimeControl, Reason: c.text("queue.match_failed", nil)}
		c.send(opp, reject)
		c.send(id, reject)
	}
}

// startSession registers a new session and sends both seats their assignment and the initial state.
func (c *Coordinator) startSession(white, black presence.ConnID, tc int, rematchOf string) (*match.Session, error) {
	now := c.now()
	s := match.NewSession(c.newID(tc, white, black, now), tc,
		match.Participant{Conn: white, Name: c.conns.Name(white)},
		match.Participant{Conn: black, Name: c.conns.Name(black)},
		now)
	s.RematchOf = rematchOf
	if err := c.sessions.Add(s); err != nil {
		obslog.L().Error("relay_match_create_error", zap.String("session_id", s.ID), zap.Error(err))
		return nil, err
	}
	c.sendAssignment(s, match.White)
	c.sendAssignment(s, match.Black)
	obslog.L().Info("relay_match_create",
		zap.String("session_id", s.ID),
		zap.Int("time_control", tc),
		zap.String("white_id", string(white)),
		zap.String("black_id", string(black)),
		zap.String("rematch_of", rematchOf),
	)
	return s, nil
}

func (c *Coordinator) sendAssignment(s *match.Session, color match.Color) {
	seat, opp := s.Seat(color), s.Seat(color.Opponent())
	c.send(seat.Conn, protocol.MatchFound{
		SessionID:    s.ID,
		OpponentID:   string(opp.Conn),
		OpponentName: opp.Name,
		Color:        color,
		TimeControl:  s.TimeControl,
		Token:        seat.Token,
		Status:       string(s.Status),
	})
	c.send(seat.Conn, c.stateOf(s))
}

func (c *Coordinator) stateOf(s *match.Session) protocol.StateSync {
	return protocol.StateSync{SessionID: s.ID, Position: s.Position, Turn: s.Turn.Short(), Status: string(s.Status)}
}

func (c *Coordinator) syncState(id presence.ConnID, e protocol.SyncState) {
	s, key := c.resolve(id, e.SessionID)
	if s == nil {
		c.rejectRequest(id, e.EventName(), key)
		return
	}
	if s.Status != match.StatusPlaying {
		c.rejectRequest(id, e.EventName(), "request.not_active")
		return
	}
	mover, _ := s.ColorOf(id)

	san := ""
	if c.validateMoves {
		applied, err := c.rules.Validate(s.Position, e.Position, e.Move, mover.Short())
		if err == nil && applied.Turn != e.Turn.Short() {
			err = rules.ErrPositionMismatch
		}
		if err != nil {
			obslog.L().Info("relay_move_rejected", zap.String("session_id", s.ID), zap.String("conn_id", string(id)), zap.String("move", e.Move), zap.Error(err))
			c.rejectRequest(id, e.EventName(), moveRejectKey(err))
			return
		}
		san = applied.SAN
	} else if e.Move != "" {
		if applied, err := c.rules.Apply(s.Position, e.Move); err == nil && rules.SamePlacement(applied.FEN, e.Position) {
			san = applied.SAN
		}
	}

	if err := s.ApplyMove(id, e.Position, e.Turn, san, c.now()); err != nil {
		c.rejectRequest(id, e.EventName(), "request.not_active")
		return
	}
	c.fanout(s.Audience(id), protocol.StateSync{SessionID: s.ID, Position: s.Position, Turn: s.Turn.Short()})
	obslog.L().Info("relay_move",
		zap.String("session_id", s.ID),
		zap.String("conn_id", string(id)),
		zap.String("color", string(mover)),
		zap.String("turn", string(s.Turn)),
		zap.String("san", san),
		zap.Int("ply", len(s.History)-1),
	)
}

func moveRejectKey(err error) string {
	switch {
	case errors.Is(err, rules.ErrNotYourTurn):
		return "request.not_your_turn"
	case errors.Is(err, rules.ErrPositionMismatch):
		return "request.position_mismatch"
	default:
		return "request.illegal_move"
	}
}

func (c *Coordinator) gameOver(id presence.ConnID, e protocol.GameOver) {
	s, key := c.resolve(id, e.SessionID)
	if s == nil {
		c.rejectRequest(id, e.EventName(), key)
		return
	}
	if err := s.ReportCheckmate(id, e.Winner, c.now()); err != nil {
		c.rejectRequest(id, e.EventName(), "request.not_active")
		return
	}
	c.fanout(s.Audience(id), protocol.GameOverNotice{SessionID: s.ID, Winner: s.WinnerLabel()})
	c.finish(s)
}

func (c *Coordinator) timeOut(id presence.ConnID, e protocol.TimeOut) {
	s, key := c.resolve(id, e.SessionID)
	if s == nil {
		c.rejectRequest(id, e.EventName(), key)
		return
	}
	if err := s.ReportTimeout(id, e.Loser, c.now()); err != nil {
		key := "request.not_active"
		if errors.Is(err, match.ErrNotOwnClock) {
			key = "request.not_own_clock"
		}
		c.rejectRequest(id, e.EventName(), key)
		return
	}
	notice := protocol.TimeOutNotice{SessionID: s.ID, Loser: e.Loser, Winner: e.Winner}
	over := protocol.GameOverNotice{SessionID: s.ID, Winner: s.WinnerLabel()}
	for _, to := range s.Audience(id) {
		c.send(to, notice)
		c.send(to, over)
	}
	c.finish(s)
}

// finish logs a terminal session and hands it to the result sinks.
func (c *Coordinator) finish(s *match.Session) {
	obslog.L().Info("relay_match_end",
		zap.String("session_id", s.ID),
		zap.String("status", string(s.Status)),
		zap.String("winner", s.WinnerLabel()),
		zap.String("method", s.Method),
		zap.Int("ply", len(s.History)-1),
	)
	c.results.Submit(results.FromSession(s))
}

func (c *Coordinator) propose(id presence.ConnID, e protocol.OfferProposal) {
	s, key := c.resolve(id, e.SessionID)
	if s == nil {
		c.send(id, protocol.OfferRejected{SessionID: e.SessionID, Kind: e.Kind, Reason: c.text(key, nil)})
		return
	}
	color, _ := s.ColorOf(id)
	opp := s.Seat(color.Opponent())
	if !s.Present(color.Opponent()) || !c.conns.IsLive(opp.Conn) {
		c.send(id, protocol.OfferRejected{SessionID: s.ID, Kind: e.Kind, Reason: c.text("offer.opponent_absent", nil)})
		return
	}
	if err := s.Propose(id, e.Kind); err != nil {
		c.send(id, protocol.OfferRejected{SessionID: s.ID, Kind: e.Kind, Reason: c.text(offerRejectKey(err), nil)})
		return
	}
	c.send(opp.Conn, protocol.OfferNotice{Kind: e.Kind, SessionID: s.ID, From: c.conns.Name(id)})
	obslog.L().Info("relay_offer", zap.String("session_id", s.ID), zap.String("kind", string(e.Kind)), zap.String("proposer", string(id)))
}

func offerRejectKey(err error) string {
	switch {
	case errors.Is(err, match.ErrOfferPending):
		return "offer.pending"
	case errors.Is(err, match.ErrNotFinished):
		return "offer.not_finished"
	case errors.Is(err, match.ErrOwnOffer):
		return "offer.own_offer"
	case errors.Is(err, match.ErrRematched):
		return "offer.rematched"
	case errors.Is(err, match.ErrNotParticipant):
		return "request.not_participant"
	default:
		return "offer.not_playing"
	}
}

func (c *Coordinator) respond(id presence.ConnID, e protocol.OfferResponse) {
	s, key := c.resolve(id, e.SessionID)
	if s == nil {
		c.send(id, protocol.OfferRejected{SessionID: e.SessionID, Kind: e.Kind, Reason: c.text(key, nil)})
		return
	}
	res, err := s.Respond(id, e.Kind, e.Accepted, c.now())
	if err != nil {
		reason := c.text("offer.none_pending", map[string]any{"Kind": string(e.Kind)})
		if !errors.Is(err, match.ErrNoOfferPending) {
			reason = c.text(offerRejectKey(err), nil)
		}
		c.send(id, protocol.OfferRejected{SessionID: s.ID, Kind: e.Kind, Reason: reason})
		return
	}
	obslog.L().Info("relay_offer_resolve",
		zap.String("session_id", s.ID),
		zap.String("kind", string(res.Kind)),
		zap.Bool("accepted", res.Accepted),
		zap.String("responder", string(id)),
	)

	if !res.Accepted {
		reason := c.text("offer.declined", nil)
		if errors.Is(res.Reason, match.ErrNoHistory) {
			reason = c.text("offer.no_history", nil)
		}
		c.send(res.Proposer, protocol.OfferDeclined{Kind: res.Kind, SessionID: s.ID, By: c.conns.Name(id), Reason: reason})
		return
	}

	switch res.Kind {
	case match.OfferDraw:
		c.fanout(s.Audience(""), protocol.GameOverNotice{SessionID: s.ID, Winner: s.WinnerLabel()})
		c.finish(s)
	case match.OfferTakeback:
		c.fanout(s.Audience(""), protocol.StateSync{SessionID: s.ID, Position: s.Position, Turn: s.Turn.Short()})
	case match.OfferRematch:
		next, err := c.startSession(s.Black.Conn, s.White.Conn, s.TimeControl, s.ID)
		if err != nil {
			reject := protocol.OfferRejected{SessionID: s.ID, Kind: res.Kind, Reason: c.text("offer.rematch_failed", nil)}
			c.send(res.Proposer, reject)
			c.send(id, reject)
			return
		}
		s.MarkRematched(next.ID)
	}
}

func (c *Coordinator) claimStall(id presence.ConnID, e protocol.ClaimStall) {
	s, key := c.resolve(id, e.SessionID)
	if s == nil {
		c.send(id, protocol.StallClaimRejected{SessionID: e.SessionID, Reason: c.text(key, nil)})
		return
	}
	winner, err := c.stall.Claim(s, id, c.now())
	if err != nil {
		var early *match.StallTooEarlyError
		reason := c.text("stall.not_claimable", nil)
		if errors.As(err, &early) {
			reason = c.text("stall.too_early", map[string]any{
				"Idle":      early.Idle.Truncate(time.Second).String(),
				"Threshold": early.Threshold.String(),
			})
		}
		c.send(id, protocol.StallClaimRejected{SessionID: s.ID, Reason: reason})
		return
	}
	obslog.L().Info("relay_stall_claim", zap.String("session_id", s.ID), zap.String("claimant", string(id)), zap.String("winner", string(winner)))
	c.fanout(s.Audience(""), protocol.GameOverNotice{SessionID: s.ID, Winner: s.WinnerLabel()})
	c.finish(s)
}

func (c *Coordinator) spectate(id presence.ConnID, e protocol.Spectate) {
	s, ok := c.sessions.Get(e.SessionID)
	if !ok {
		c.send(id, protocol.SpectateError{SessionID: e.SessionID, Reason: c.text("spectate.not_found", nil)})
		return
	}
	s.AddSpectator(id)
	c.send(id, protocol.SpectateJoined{
		SessionID:   s.ID,
		White:       s.White.Name,
		Black:       s.Black.Name,
		TimeControl: s.TimeControl,
		Position:    s.Position,
		Turn:        s.Turn.Short(),
		Status:      string(s.Status),
	})
	c.send(id, c.stateOf(s))
	obslog.L().Info("relay_spectate", zap.String("session_id", s.ID), zap.String("conn_id", string(id)), zap.Int("spectators", len(s.Spectators())))
}

func (c *Coordinator) reconnect(id presence.ConnID, e protocol.Reconnect) {
	s, ok := c.sessions.Get(e.SessionID)
	if !ok {
		c.send(id, protocol.ReconnectError{SessionID: e.SessionID, Reason: c.text("reconnect.not_found", nil)})
		return
	}
	if color, ok := s.ColorOf(id); ok {
		c.sendAssignment(s, color)
		return
	}
	if e.Token == "" {
		c.send(id, protocol.ReconnectError{SessionID: s.ID, Reason: c.text("request.not_participant", nil)})
		return
	}
	color, ok := s.SeatForToken(e.Token)
	if !ok {
		c.send(id, protocol.ReconnectError{SessionID: s.ID, Reason: c.text("reconnect.bad_token", nil)})
		return
	}
	if !s.Vacant(color, c.conns.IsLive) {
		c.send(id, protocol.ReconnectError{SessionID: s.ID, Reason: c.text("reconnect.seat_occupied", nil)})
		return
	}
	previous := s.Seat(color).Conn
	resumed := s.Rebind(color, id, c.now())
	c.fanout(s.Audience(id), protocol.OpponentReconnected{SessionID: s.ID, Color: color})
	c.sendAssignment(s, color)
	obslog.L().Info("relay_reconnect",
		zap.String("session_id", s.ID),
		zap.String("color", string(color)),
		zap.String("conn_id", string(id)),
		zap.String("previous_conn_id", string(previous)),
		zap.Bool("resumed", resumed),
	)
}

func (c *Coordinator) setName(id presence.ConnID, e protocol.SetName) {
	if name, ok := c.conns.SetName(id, e.Name); ok {
		obslog.L().Debug("relay_set_name", zap.String("conn_id", string(id)), zap.String("name", name))
	}
}

func (c *Coordinator) chat(id presence.ConnID, e protocol.Chat) {
	s, key := c.resolve(id, e.SessionID)
	if s == nil {
		c.rejectRequest(id, e.EventName(), key)
		return
	}
	text := e.Text
	if utf8.RuneCountInString(text) > c.chatMax {
		text = string([]rune(text)[:c.chatMax])
	}
	c.fanout(s.Audience(""), protocol.ChatMessage{SessionID: s.ID, From: c.conns.Name(id), Text: text})
}
