package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/tidwall/gjson"

	"github.com/park285/cheese-relay/internal/match"
)

var t0 = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func sampleResult(id string) Result {
	return Result{
		SessionID:   id,
		TimeControl: 5,
		WhiteID:     "x",
		WhiteName:   "Xavier",
		BlackID:     "y",
		BlackName:   "Yu\"na",
		Status:      "checkmate",
		Winner:      "black",
		Method:      "checkmate",
		Moves:       4,
		SAN:         []string{"f3", "e5", "g4", "Qh4#"},
		StartedAt:   t0,
		EndedAt:     t0.Add(90 * time.Second),
	}
}

func TestFromSession(t *testing.T) {
	s := match.NewSession("m1", 10, match.Participant{Conn: "x", Name: "X"}, match.Participant{Conn: "y", Name: "Y"}, t0)
	_ = s.ApplyMove("x", "p1", match.Black, "e4", t0)
	_ = s.ApplyMove("y", "p2", match.White, "", t0)
	_ = s.Propose("x", match.OfferDraw)
	_, _ = s.Respond("y", match.OfferDraw, true, t0.Add(time.Minute))

	r := FromSession(s)
	if r.Winner != "draw" || r.Method != match.MethodAgreement || r.Moves != 2 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.SAN != nil {
		t.Fatalf("incomplete SAN must be dropped, got %v", r.SAN)
	}
	if r.Duration() != time.Minute {
		t.Fatalf("unexpected duration %s", r.Duration())
	}
}

func TestBuildPGN(t *testing.T) {
	r := sampleResult("m1")
	pgn := buildPGN(r, mapResultToPGN(r.Winner))
	for _, want := range []string{
		`[Black "Yu'na"]`,
		`[TimeControl "300"]`,
		`[Result "0-1"]`,
		"1. f3 e5 2. g4 Qh4# 0-1",
	} {
		if !strings.Contains(pgn, want) {
			t.Fatalf("pgn missing %q:\n%s", want, pgn)
		}
	}
	if mapResultToPGN("draw") != "1/2-1/2" || mapResultToPGN("") != "*" {
		t.Fatalf("unexpected result mapping")
	}
}

func TestRedisArchive(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	a := NewRedisArchive(rdb)
	defer a.Close()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if err := a.Record(ctx, sampleResult(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := a.Record(ctx, sampleResult("m1")); err != nil {
		t.Fatalf("Record again: %v", err)
	}

	got, err := a.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 || got[0].SessionID != "m1" || got[1].SessionID != "m3" {
		t.Fatalf("unexpected recent order: %+v", got)
	}
	if ttl := mr.TTL(keyResult("m2")); ttl != ttlResult {
		t.Fatalf("expected %s ttl, got %s", ttlResult, ttl)
	}

	mr.Del(keyResult("m3"))
	got, _ = a.Recent(ctx, 10)
	if len(got) != 2 {
		t.Fatalf("expired entries should be skipped, got %d", len(got))
	}
	if r, err := a.Load(ctx, "missing"); err != nil || r != nil {
		t.Fatalf("missing result should be nil, nil: %v %v", r, err)
	}
}

func TestOpenRedisArchiveParsesURL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	a, err := OpenRedisArchive(context.Background(), fmt.Sprintf("redis://%s/2", mr.Addr()))
	if err != nil {
		t.Fatalf("OpenRedisArchive: %v", err)
	}
	defer a.Close()
	if _, err := OpenRedisArchive(context.Background(), "http://localhost"); err == nil {
		t.Fatalf("non-redis scheme must fail")
	}
}

type recordingSink struct {
	mu   sync.Mutex
	name string
	got  []string
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Record(_ context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r.SessionID)
	return s.err
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func TestDispatcherDeliversToEverySink(t *testing.T) {
	ok := &recordingSink{name: "ok"}
	failing := &recordingSink{name: "failing", err: errors.New("boom")}
	d := NewDispatcher(8, ok, nil, failing)
	if d.Sinks() != 2 {
		t.Fatalf("nil sinks should be skipped")
	}
	d.Start()
	for _, id := range []string{"a", "b"} {
		if !d.Submit(sampleResult(id)) {
			t.Fatalf("submit %s failed", id)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := ok.ids(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if len(failing.ids()) != 2 {
		t.Fatalf("a failing sink must not stop delivery")
	}
	if d.Submit(sampleResult("late")) {
		t.Fatalf("submit after close must fail")
	}
}

func TestDispatcherWithoutSinks(t *testing.T) {
	var nilD *Dispatcher
	if nilD.Submit(sampleResult("x")) {
		t.Fatalf("nil dispatcher accepts nothing")
	}
	d := NewDispatcher(1)
	if d.Submit(sampleResult("x")) {
		t.Fatalf("dispatcher without sinks accepts nothing")
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestWebhookRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "sessionId").String() != "m1" || r.Header.Get("X-Relay") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithWebhookRetry(3), WithWebhookHeader("X-Relay", "1"))
	if err := hook.Record(context.Background(), sampleResult("m1")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
}

func TestWebhookDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	hook := NewWebhook(srv.URL, WithWebhookTimeout(2*time.Second))
	if err := hook.Record(context.Background(), sampleResult("m1")); err == nil {
		t.Fatalf("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}
