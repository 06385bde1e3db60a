// Package rules checks reported moves against the chess rules engine and derives SAN.
package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrBadPosition      = errf("position is not a valid FEN")
	ErrIllegalMove      = errf("move is not legal in the current position")
	ErrNotYourTurn      = errf("it is not the mover's turn")
	ErrPositionMismatch = errf("reported position does not follow from the move")
	ErrMissingMove      = errf("move is required when validation is enabled")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Applied is the engine's view of a position after one move.
type Applied struct {
	FEN string
	SAN string
	// Turn is the side to move afterwards, "w" or "b".
	Turn string
	// Outcome is white, black, draw, or empty while the game goes on.
	Outcome string
}

// Validator is stateless; the zero value is ready to use.
type Validator struct{}

// Apply plays uci on position. The opaque "start" position maps to the standard one.
func (Validator) Apply(position, uci string) (Applied, error) {
	game, err := gameFrom(position)
	if err != nil {
		return Applied{}, err
	}
	uci = strings.ToLower(strings.TrimSpace(uci))
	if uci == "" {
		return Applied{}, ErrMissingMove
	}
	before := game.Position()
	if err := game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, uci)
	}
	moves := game.Moves()
	if len(moves) == 0 {
		return Applied{}, ErrIllegalMove
	}
	out := Applied{
		FEN:  game.FEN(),
		SAN:  nchess.AlgebraicNotation{}.Encode(before, moves[len(moves)-1]),
		Turn: sideOf(game.Position().Turn()),
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		out.Outcome = "white"
	case nchess.BlackWon:
		out.Outcome = "black"
	case nchess.Draw:
		out.Outcome = "draw"
	}
	return out, nil
}

// Validate checks that mover ("w" or "b") is on move in prev, that uci is legal there,
// and that reported matches the resulting placement and side to move.
func (v Validator) Validate(prev, reported, uci, mover string) (Applied, error) {
	game, err := gameFrom(prev)
	if err != nil {
		return Applied{}, err
	}
	if side := sideOf(game.Position().Turn()); side != mover {
		return Applied{}, ErrNotYourTurn
	}
	applied, err := v.Apply(prev, uci)
	if err != nil {
		return Applied{}, err
	}
	if !SamePlacement(applied.FEN, reported) {
		return Applied{}, ErrPositionMismatch
	}
	return applied, nil
}

// SamePlacement compares piece placement and side to move, ignoring castling, en passant and clocks.
func SamePlacement(a, b string) bool {
	fa, fb := strings.Fields(normalize(a)), strings.Fields(normalize(b))
	if len(fa) < 2 || len(fb) < 2 {
		return false
	}
	return fa[0] == fb[0] && fa[1] == fb[1]
}

func normalize(position string) string {
	p := strings.TrimSpace(position)
	if p == "" || strings.EqualFold(p, "start") || strings.EqualFold(p, "startpos") {
		return StartFEN
	}
	return p
}

func gameFrom(position string) (*nchess.Game, error) {
	opt, err := nchess.FEN(normalize(position))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return nchess.NewGame(opt), nil
}

func sideOf(c nchess.Color) string {
	if c == nchess.Black {
		return "b"
	}
	return "w"
}
