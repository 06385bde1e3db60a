// Package coordinator applies client events to the registries and sessions and decides
// who hears about each change. All methods on Coordinator must run on one goroutine; Runner
// provides that boundary.
package coordinator

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-relay/internal/match"
	"github.com/park285/cheese-relay/internal/matchqueue"
	"github.com/park285/cheese-relay/internal/msgcat"
	"github.com/park285/cheese-relay/internal/obslog"
	"github.com/park285/cheese-relay/internal/presence"
	"github.com/park285/cheese-relay/internal/protocol"
	"github.com/park285/cheese-relay/internal/results"
	"github.com/park285/cheese-relay/internal/rules"
)

// Outbox delivers server events to a connection. Send must not block.
type Outbox interface {
	Send(to presence.ConnID, ev protocol.ServerEvent)
}

type Coordinator struct {
	out     Outbox
	now     func() time.Time
	newID   func(tc int, white, black presence.ConnID, now time.Time) string
	catalog *msgcat.Catalog
	results *results.Dispatcher

	rules         rules.Validator
	validateMoves bool
	chatMax       int
	retention     time.Duration
	timeControls  []int
	nameMax       int

	conns    *presence.Registry
	queue    *matchqueue.Queue
	sessions *match.Directory
	stall    match.StallEvaluator
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionIDs replaces the session id generator.
func WithSessionIDs(fn func(tc int, white, black presence.ConnID, now time.Time) string) Option {
	return func(c *Coordinator) {
		if fn != nil {
			c.newID = fn
		}
	}
}

func WithCatalog(cat *msgcat.Catalog) Option {
	return func(c *Coordinator) {
		if cat != nil {
			c.catalog = cat
		}
	}
}

func WithResults(d *results.Dispatcher) Option {
	return func(c *Coordinator) { c.results = d }
}

// WithValidation makes sync_state carry a legal UCI move that produces the reported position.
func WithValidation(on bool) Option {
	return func(c *Coordinator) { c.validateMoves = on }
}

func WithTimeControls(tcs []int) Option {
	return func(c *Coordinator) {
		if len(tcs) > 0 {
			c.timeControls = append([]int(nil), tcs...)
		}
	}
}

func WithStallThreshold(d time.Duration) Option {
	return func(c *Coordinator) { c.stall.Threshold = d }
}

func WithNameMax(n int) Option {
	return func(c *Coordinator) { c.nameMax = n }
}

func WithChatMax(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.chatMax = n
		}
	}
}

// WithRetention enables eviction of finished sessions older than d. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(c *Coordinator) { c.retention = d }
}

func New(out Outbox, opts ...Option) *Coordinator {
	c := &Coordinator{
		out:          out,
		now:          time.Now,
		newID:        match.MakeID,
		chatMax:      500,
		timeControls: []int{5, 10, 15},
		nameMax:      20,
		stall:        match.StallEvaluator{Threshold: match.DefaultStallThreshold},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.catalog == nil {
		c.catalog = msgcat.MustDefault()
	}
	c.conns = presence.NewRegistry(c.nameMax)
	c.queue = matchqueue.New(c.timeControls)
	c.sessions = match.NewDirectory()
	return c
}

// Connect registers id, greets it and broadcasts the new player count.
func (c *Coordinator) Connect(id presence.ConnID) {
	e := c.conns.Register(id, c.now())
	c.send(id, protocol.Connected{ConnectionID: string(id), Name: e.Name})
	obslog.L().Info("relay_connect", zap.String("conn_id", string(id)), zap.Int("players", c.conns.Count()))
	c.broadcastCount()
}

// Disconnect purges id from the queue, stalls its sessions in play, tells the rest of each
// session's audience, drops it from every spectator set and removes the registry entry last.
func (c *Coordinator) Disconnect(id presence.ConnID) {
	if !c.conns.IsLive(id) {
		return
	}
	c.queue.Remove(id)

	for _, s := range c.sessions.ByParticipant(id) {
		color, ok := s.Disconnect(id)
		if !ok {
			continue
		}
		c.fanout(s.Audience(id), protocol.OpponentDisconnected{SessionID: s.ID, Color: color})
		obslog.L().Info("relay_participant_disconnect",
			zap.String("session_id", s.ID),
			zap.String("conn_id", string(id)),
			zap.String("color", string(color)),
			zap.String("status", string(s.Status)),
		)
	}
	for _, s := range c.sessions.WithSpectator(id) {
		s.RemoveSpectator(id)
	}

	c.conns.Remove(id)
	obslog.L().Info("relay_disconnect", zap.String("conn_id", string(id)), zap.Int("players", c.conns.Count()))
	c.broadcastCount()
}

// Sweep evicts expired sessions and returns their ids.
func (c *Coordinator) Sweep() []string {
	evicted := c.sessions.Evict(c.now(), c.retention, c.conns.IsLive)
	if len(evicted) > 0 {
		obslog.L().Info("relay_session_evict", zap.Strings("session_ids", evicted), zap.Int("remaining", c.sessions.Len()))
	}
	return evicted
}

// Sessions lists every known session for the lobby endpoint.
func (c *Coordinator) Sessions() []match.Summary {
	all := c.sessions.All()
	out := make([]match.Summary, 0, len(all))
	for _, s := range all {
		out = append(out, s.Summary())
	}
	return out
}

// Stats is a point-in-time view of the registries.
type Stats struct {
	Players  int `json:"players"`
	Waiting  int `json:"waiting"`
	Sessions int `json:"sessions"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{Players: c.conns.Count(), Waiting: c.queue.Len(), Sessions: c.sessions.Len()}
}

func (c *Coordinator) broadcastCount() {
	ev := protocol.PlayerCount{Count: c.conns.Count()}
	for _, id := range c.conns.IDs() {
		c.send(id, ev)
	}
}

func (c *Coordinator) send(to presence.ConnID, ev protocol.ServerEvent) {
	if c.out == nil || to == "" {
		return
	}
	c.out.Send(to, ev)
}

func (c *Coordinator) fanout(to []presence.ConnID, ev protocol.ServerEvent) {
	for _, id := range to {
		c.send(id, ev)
	}
}

func (c *Coordinator) text(key string, data any) string {
	return c.catalog.Text(key, data)
}

func (c *Coordinator) supportedList() string {
	tcs := c.queue.TimeControls()
	parts := make([]string, len(tcs))
	for i, tc := range tcs {
		parts[i] = strconv.Itoa(tc)
	}
	return strings.Join(parts, ",")
}
