package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schemaResults = `CREATE TABLE IF NOT EXISTS relay_results (
    session_id    TEXT PRIMARY KEY,
    white_id      TEXT NOT NULL,
    white_name    TEXT NOT NULL,
    black_id      TEXT NOT NULL,
    black_name    TEXT NOT NULL,
    time_control  INTEGER NOT NULL,
    status        TEXT NOT NULL,
    result        TEXT NOT NULL,
    result_method TEXT NOT NULL,
    move_count    INTEGER NOT NULL,
    moves_san     JSONB,
    pgn           TEXT,
    final_position TEXT,
    rematch_of    TEXT,
    started_at    TIMESTAMPTZ NOT NULL,
    ended_at      TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT NOT NULL
)`

// Repository upserts finished sessions into Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(ctx context.Context, databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Name() string { return "postgres" }

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the results table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	_, err := r.db.ExecContext(ctx, schemaResults)
	return err
}

func (r *Repository) Record(ctx context.Context, res Result) error {
	if r == nil || r.db == nil {
		return nil
	}
	pgnResult := mapResultToPGN(res.Winner)
	pgn := ""
	if len(res.SAN) > 0 {
		pgn = buildPGN(res, pgnResult)
	}
	var sanRaw any
	if len(res.SAN) > 0 {
		b, _ := json.Marshal(res.SAN)
		sanRaw = string(b)
	}

	q := `INSERT INTO relay_results (
        session_id, white_id, white_name, black_id, black_name,
        time_control, status, result, result_method, move_count,
        moves_san, pgn, final_position, rematch_of,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17
      ) ON CONFLICT (session_id) DO UPDATE SET
        status=EXCLUDED.status,
        result=EXCLUDED.result,
        result_method=EXCLUDED.result_method,
        move_count=EXCLUDED.move_count,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        final_position=EXCLUDED.final_position,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		res.SessionID,
		res.WhiteID, res.WhiteName,
		res.BlackID, res.BlackName,
		res.TimeControl, res.Status, res.Winner, res.Method, res.Moves,
		sanRaw, pgn, res.FinalPosition, res.RematchOf,
		res.StartedAt, res.EndedAt, res.Duration().Milliseconds(),
	)
	return err
}

func mapResultToPGN(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(r Result, pgnResult string) string {
	var b strings.Builder
	date := r.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Relay PvP\"]\n")
	b.WriteString("[Site \"cheese-relay\"]\n")
	fmt.Fprintf(&b, "[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day())
	fmt.Fprintf(&b, "[White \"%s\"]\n", sanitizePGN(r.WhiteName))
	fmt.Fprintf(&b, "[Black \"%s\"]\n", sanitizePGN(r.BlackName))
	if r.TimeControl > 0 {
		fmt.Fprintf(&b, "[TimeControl \"%d\"]\n", r.TimeControl*60)
	}
	if m := strings.TrimSpace(r.Method); m != "" {
		fmt.Fprintf(&b, "[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(m)))
	}
	fmt.Fprintf(&b, "[Result \"%s\"]\n\n", pgnResult)

	for i := 0; i < len(r.SAN); i += 2 {
		fmt.Fprintf(&b, "%d. %s", i/2+1, strings.TrimSpace(r.SAN[i]))
		if i+1 < len(r.SAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(r.SAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
