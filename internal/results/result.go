// Package results records finished sessions to outbound sinks. Nothing here is read back
// to restore relay state.
package results

import (
	"context"
	"time"

	"github.com/park285/cheese-relay/internal/match"
)

// Result is the record of one finished session.
type Result struct {
	SessionID     string    `json:"sessionId"`
	TimeControl   int       `json:"timeControl"`
	WhiteID       string    `json:"whiteId"`
	WhiteName     string    `json:"whiteName"`
	BlackID       string    `json:"blackId"`
	BlackName     string    `json:"blackName"`
	Status        string    `json:"status"`
	Winner        string    `json:"winner"`
	Method        string    `json:"method"`
	Moves         int       `json:"moves"`
	SAN           []string  `json:"san,omitempty"`
	FinalPosition string    `json:"finalPosition"`
	RematchOf     string    `json:"rematchOf,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt"`
}

// FromSession snapshots a terminal session. SAN is kept only when every move has one.
func FromSession(s *match.Session) Result {
	r := Result{
		SessionID:     s.ID,
		TimeControl:   s.TimeControl,
		WhiteID:       string(s.White.Conn),
		WhiteName:     s.White.Name,
		BlackID:       string(s.Black.Conn),
		BlackName:     s.Black.Name,
		Status:        string(s.Status),
		Winner:        winnerToken(s),
		Method:        s.Method,
		Moves:         len(s.History) - 1,
		FinalPosition: s.Position,
		RematchOf:     s.RematchOf,
		StartedAt:     s.CreatedAt,
		EndedAt:       s.EndedAt,
	}
	complete := len(s.SAN) > 0
	for _, san := range s.SAN {
		if san == "" {
			complete = false
			break
		}
	}
	if complete {
		r.SAN = append([]string(nil), s.SAN...)
	}
	return r
}

func winnerToken(s *match.Session) string {
	if s.Status == match.StatusDraw {
		return "draw"
	}
	return string(s.Winner)
}

// Duration is the wall time between pairing and the end of the session.
func (r Result) Duration() time.Duration {
	d := r.EndedAt.Sub(r.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// Sink stores or forwards results. Record may block; the Dispatcher calls it off the coordinator goroutine.
type Sink interface {
	Name() string
	Record(ctx context.Context, r Result) error
}
