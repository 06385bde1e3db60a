// Package wsserver carries the relay over websockets: one socket per connection id,
// plus a few read-only HTTP endpoints answered through the coordinator.
package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/park285/cheese-relay/internal/coordinator"
	"github.com/park285/cheese-relay/internal/match"
	"github.com/park285/cheese-relay/internal/obslog"
	"github.com/park285/cheese-relay/internal/presence"
	"github.com/park285/cheese-relay/internal/results"
)

// Relay is the coordinator boundary the server talks to.
type Relay interface {
	Connect(ctx context.Context, id presence.ConnID) error
	Disconnect(ctx context.Context, id presence.ConnID) error
	Deliver(ctx context.Context, id presence.ConnID, raw []byte) error
	Sessions(ctx context.Context) ([]match.Summary, error)
	Stats(ctx context.Context) (coordinator.Stats, error)
}

// ResultLister serves recently finished sessions.
type ResultLister interface {
	Recent(ctx context.Context, n int) ([]results.Result, error)
}

type Options struct {
	Addr           string
	AllowedOrigins []string
	SendBuffer     int
	ReadTimeout    time.Duration
	PingInterval   time.Duration
}

type Server struct {
	opts    Options
	relay   Relay
	hub     *Hub
	archive ResultLister
	http    *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Server)

// WithArchive enables GET /results.
func WithArchive(a ResultLister) Option {
	return func(s *Server) { s.archive = a }
}

func New(relay Relay, hub *Hub, opts Options, options ...Option) *Server {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{opts: opts, relay: relay, hub: hub, ctx: ctx, cancel: cancel}
	for _, o := range options {
		o(s)
	}
	s.http = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.ctx },
	}
	return s
}

// Handler routes /ws and the JSON endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /sessions", s.handleSessions)
	mux.HandleFunc("GET /results", s.handleResults)
	return withRequestLog(mux)
}

// ListenAndServe blocks until the listener fails or Shutdown is called.
func (s *Server) ListenAndServe() error {
	obslog.L().Info("relay_http_listen", zap.String("addr", s.opts.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting, closes every socket with going-away and waits for the
// per-connection goroutines to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.hub.closeAll(websocket.StatusGoingAway, "server shutdown")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		obslog.L().Info("relay_http_shutdown")
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			return opts
		}
	}
	opts.OriginPatterns = s.opts.AllowedOrigins
	return opts
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, s.acceptOptions())
	if err != nil {
		obslog.L().Warn("relay_ws_accept_error", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	s.wg.Add(1)
	defer s.wg.Done()

	id := presence.NewConnID()
	c := newConn(s.ctx, id, ws, s.opts)
	s.hub.add(c)
	defer s.hub.remove(id)

	if err := s.relay.Connect(c.ctx, id); err != nil {
		obslog.L().Error("relay_ws_register_error", zap.String("conn_id", string(id)), zap.Error(err))
		_ = ws.Close(websocket.StatusTryAgainLater, "relay unavailable")
		return
	}
	obslog.L().Info("relay_ws_open", zap.String("conn_id", string(id)), zap.String("remote", r.RemoteAddr))

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		c.writePump()
	}()
	go func() {
		defer pumps.Done()
		c.pingLoop()
	}()

	readErr := c.readPump(func(ctx context.Context, raw []byte) error {
		return s.relay.Deliver(ctx, id, raw)
	})
	c.shutdown(websocket.StatusNormalClosure, "")
	pumps.Wait()

	obslog.L().Info("relay_ws_close",
		zap.String("conn_id", string(id)),
		zap.String("status", websocket.CloseStatus(readErr).String()),
		zap.NamedError("reason", readErr),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.relay.Disconnect(ctx, id); err != nil {
		obslog.L().Debug("relay_ws_unregister_error", zap.String("conn_id", string(id)), zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	st, err := s.relay.Stats(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"players":  st.Players,
		"waiting":  st.Waiting,
		"sessions": st.Sessions,
		"sockets":  s.hub.Len(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	sums, err := s.relay.Sessions(ctx)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sums})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "result archive is not configured"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, 100)
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	list, err := s.archive.Recent(ctx, limit)
	if err != nil {
		obslog.L().Warn("relay_results_read_error", zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "result archive unavailable"})
		return
	}
	if list == nil {
		list = []results.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": list})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Debug("relay_http_write_error", zap.Error(err))
	}
}

func withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		obslog.L().Debug("relay_http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}
