package match

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/park285/cheese-relay/internal/presence"
)

// Session is one paired game. It is owned by the coordinator goroutine.
type Session struct {
	ID          string
	TimeControl int
	White       Participant
	Black       Participant

	Position string
	Turn     Color
	// History holds the initial position followed by one entry per accepted move.
	History []string
	// SAN is aligned with History[1:]; entries are empty when the move was not validated.
	SAN []string

	Status Status
	Winner Color
	Method string
	Offer  Offer

	CreatedAt    time.Time
	LastActivity time.Time
	EndedAt      time.Time
	RematchOf    string
	// RematchedTo is the id of the session created by an accepted rematch.
	RematchedTo  string

	absent     map[Color]bool
	spectators map[presence.ConnID]struct{}
	specOrder  []presence.ConnID
}

// NewSession starts a session in play from the initial position. Empty tokens are generated.
func NewSession(id string, timeControl int, white, black Participant, now time.Time) *Session {
	if white.Token == "" {
		white.Token = secureRandSuffix(12)
	}
	if black.Token == "" {
		black.Token = secureRandSuffix(12)
	}
	return &Session{
		ID:           id,
		TimeControl:  timeControl,
		White:        white,
		Black:        black,
		Position:     StartPosition,
		Turn:         White,
		History:      []string{StartPosition},
		Status:       StatusPlaying,
		CreatedAt:    now,
		LastActivity: now,
		absent:       make(map[Color]bool, 2),
		spectators:   make(map[presence.ConnID]struct{}),
	}
}

// MakeID derives a session id from both seats, the time control and the creation time.
func MakeID(timeControl int, white, black presence.ConnID, now time.Time) string {
	return fmt.Sprintf("m_%d_%s_%s_%s%s", timeControl, white.Short(), black.Short(),
		strconv.FormatInt(now.UnixNano(), 36), secureRandSuffix(2))
}

func (s *Session) ColorOf(id presence.ConnID) (Color, bool) {
	switch id {
	case s.White.Conn:
		return White, true
	case s.Black.Conn:
		return Black, true
	default:
		return "", false
	}
}

func (s *Session) IsParticipant(id presence.ConnID) bool {
	_, ok := s.ColorOf(id)
	return ok
}

// Seat returns the participant holding color c.
func (s *Session) Seat(c Color) *Participant {
	if c == Black {
		return &s.Black
	}
	return &s.White
}

// Opponent returns the seat across from id.
func (s *Session) Opponent(id presence.ConnID) (Participant, bool) {
	c, ok := s.ColorOf(id)
	if !ok {
		return Participant{}, false
	}
	return *s.Seat(c.Opponent()), true
}

// Participants returns white then black.
func (s *Session) Participants() []presence.ConnID {
	return []presence.ConnID{s.White.Conn, s.Black.Conn}
}

// Present reports whether the seat has not disconnected since it was last bound.
func (s *Session) Present(c Color) bool { return !s.absent[c] }

// SeatForToken finds the seat a reconnect token belongs to.
func (s *Session) SeatForToken(token string) (Color, bool) {
	if token == "" {
		return "", false
	}
	switch token {
	case s.White.Token:
		return White, true
	case s.Black.Token:
		return Black, true
	default:
		return "", false
	}
}

// ApplyMove records a reported position. The position is trusted; san may be empty.
func (s *Session) ApplyMove(from presence.ConnID, position string, turn Color, san string, now time.Time) error {
	if !s.IsParticipant(from) {
		return ErrNotParticipant
	}
	if s.Status != StatusPlaying {
		return ErrNotPlaying
	}
	s.Position = position
	s.Turn = turn
	s.History = append(s.History, position)
	s.SAN = append(s.SAN, san)
	s.LastActivity = now
	return nil
}

// ReportCheckmate ends the session with the declared winner.
func (s *Session) ReportCheckmate(from presence.ConnID, winner Color, now time.Time) error {
	if !s.IsParticipant(from) {
		return ErrNotParticipant
	}
	if s.Status != StatusPlaying {
		return ErrNotPlaying
	}
	s.finish(StatusCheckmate, winner, MethodCheckmate, now)
	return nil
}

// ReportTimeout ends the session after the reporter's own clock ran out. The opponent wins.
func (s *Session) ReportTimeout(from presence.ConnID, loser Color, now time.Time) error {
	c, ok := s.ColorOf(from)
	if !ok {
		return ErrNotParticipant
	}
	if s.Status != StatusPlaying {
		return ErrNotPlaying
	}
	if loser != c {
		return ErrNotOwnClock
	}
	s.finish(StatusTimeout, loser.Opponent(), MethodFlag, now)
	return nil
}

func (s *Session) finish(status Status, winner Color, method string, now time.Time) {
	s.Status = status
	s.Winner = winner
	s.Method = method
	s.Offer = Offer{}
	s.EndedAt = now
}

// Disconnect marks the seat of id absent. A session in play becomes stalled-disconnect;
// terminal sessions keep their status. Any pending offer is dropped.
func (s *Session) Disconnect(id presence.ConnID) (Color, bool) {
	c, ok := s.ColorOf(id)
	if !ok {
		return "", false
	}
	s.absent[c] = true
	s.Offer = Offer{}
	if s.Status == StatusPlaying {
		s.Status = StatusStalled
	}
	return c, true
}

// Vacant reports whether seat c may be taken over: its holder left, or live says the
// holder's connection is gone.
func (s *Session) Vacant(c Color, live func(presence.ConnID) bool) bool {
	if !s.Present(c) {
		return true
	}
	return live != nil && !live(s.Seat(c).Conn)
}

// Rebind moves seat c to a new connection. When no seat remains absent a stalled session
// resumes play and the idle clock restarts. It reports whether play resumed.
func (s *Session) Rebind(c Color, id presence.ConnID, now time.Time) bool {
	seat := s.Seat(c)
	seat.Conn = id
	s.absent[c] = false
	s.RemoveSpectator(id)
	if s.Status != StatusStalled || s.absent[c.Opponent()] {
		return false
	}
	s.Status = StatusPlaying
	s.LastActivity = now
	return true
}

// AddSpectator joins id to the audience. Participants are never added.
func (s *Session) AddSpectator(id presence.ConnID) bool {
	if s.IsParticipant(id) {
		return false
	}
	if _, ok := s.spectators[id]; ok {
		return false
	}
	s.spectators[id] = struct{}{}
	s.specOrder = append(s.specOrder, id)
	return true
}

func (s *Session) RemoveSpectator(id presence.ConnID) bool {
	if _, ok := s.spectators[id]; !ok {
		return false
	}
	delete(s.spectators, id)
	for i, v := range s.specOrder {
		if v == id {
			s.specOrder = append(s.specOrder[:i:i], s.specOrder[i+1:]...)
			break
		}
	}
	return true
}

func (s *Session) IsSpectator(id presence.ConnID) bool {
	_, ok := s.spectators[id]
	return ok
}

// Spectators returns the audience in join order.
func (s *Session) Spectators() []presence.ConnID {
	out := make([]presence.ConnID, len(s.specOrder))
	copy(out, s.specOrder)
	return out
}

// Audience returns both seats followed by every spectator, minus skip.
func (s *Session) Audience(skip presence.ConnID) []presence.ConnID {
	out := make([]presence.ConnID, 0, 2+len(s.specOrder))
	for _, id := range s.Participants() {
		if id != skip {
			out = append(out, id)
		}
	}
	for _, id := range s.specOrder {
		if id != skip {
			out = append(out, id)
		}
	}
	return out
}

// WinnerLabel is the winner color, or "Draw" for a drawn session.
func (s *Session) WinnerLabel() string {
	if s.Status == StatusDraw {
		return "Draw"
	}
	return string(s.Winner)
}

// Summary is the public listing view of a session.
type Summary struct {
	ID          string    `json:"sessionId"`
	TimeControl int       `json:"timeControl"`
	White       string    `json:"white"`
	Black       string    `json:"black"`
	Position    string    `json:"position"`
	Turn        string    `json:"turn"`
	Status      Status    `json:"status"`
	Winner      string    `json:"winner,omitempty"`
	Moves       int       `json:"moves"`
	Spectators  int       `json:"spectators"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Session) Summary() Summary {
	out := Summary{
		ID:          s.ID,
		TimeControl: s.TimeControl,
		White:       s.White.Name,
		Black:       s.Black.Name,
		Position:    s.Position,
		Turn:        s.Turn.Short(),
		Status:      s.Status,
		Moves:       len(s.History) - 1,
		Spectators:  len(s.specOrder),
		CreatedAt:   s.CreatedAt,
	}
	if s.Status.Terminal() {
		out.Winner = s.WinnerLabel()
	}
	return out
}

// secureRandSuffix returns n random bytes hex-encoded, falling back to the clock when crypto fails.
func secureRandSuffix(n int) string {
	if n <= 0 {
		n = 3
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err == nil {
		return hex.EncodeToString(b)
	}
	return fmt.Sprintf("%x", time.Now().UnixNano()%1_000_000)
}
