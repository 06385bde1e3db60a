package match

import (
	"fmt"
	"time"

	"github.com/park285/cheese-relay/internal/presence"
)

// DefaultStallThreshold is the idle time after which a participant may claim the win.
const DefaultStallThreshold = 2 * time.Minute

// StallTooEarlyError carries the idle time measured at claim time.
type StallTooEarlyError struct {
	Idle      time.Duration
	Threshold time.Duration
}

func (e *StallTooEarlyError) Error() string {
	return fmt.Sprintf("stall threshold not reached: idle %s of %s", e.Idle, e.Threshold)
}

func (e *StallTooEarlyError) Is(target error) bool { return target == ErrStallTooEarly }

// StallEvaluator decides forfeit-by-inactivity claims. Idle time is measured on demand.
type StallEvaluator struct {
	Threshold time.Duration
}

// Claim grants the claimant's color the win when the session is playing or stalled-disconnect
// and no move was accepted for at least the threshold.
func (e StallEvaluator) Claim(s *Session, claimant presence.ConnID, now time.Time) (Color, error) {
	c, ok := s.ColorOf(claimant)
	if !ok {
		return "", ErrNotParticipant
	}
	if s.Status != StatusPlaying && s.Status != StatusStalled {
		return "", ErrNotClaimable
	}
	threshold := e.Threshold
	if threshold <= 0 {
		threshold = DefaultStallThreshold
	}
	idle := now.Sub(s.LastActivity)
	if idle < threshold {
		return "", &StallTooEarlyError{Idle: idle, Threshold: threshold}
	}
	s.finish(StatusTimeout, c, MethodStall, now)
	return c, nil
}
