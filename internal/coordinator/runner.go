package coordinator

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-relay/internal/match"
	"github.com/park285/cheese-relay/internal/obslog"
	"github.com/park285/cheese-relay/internal/presence"
	"github.com/park285/cheese-relay/internal/protocol"
)

var ErrStopped = errf("coordinator stopped")

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Runner is the single serializing boundary in front of a Coordinator. Every mutation
// is posted to one goroutine and handled to completion before the next.
type Runner struct {
	c     *Coordinator
	inbox chan func()
	done  chan struct{}
}

func NewRunner(c *Coordinator, buffer int) *Runner {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Runner{c: c, inbox: make(chan func(), buffer), done: make(chan struct{})}
}

// Run processes posted work until ctx ends. A panicking handler is logged and skipped.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	obslog.L().Info("relay_coordinator_start")
	for {
		select {
		case <-ctx.Done():
			obslog.L().Info("relay_coordinator_stop")
			return ctx.Err()
		case fn := <-r.inbox:
			r.exec(fn)
		}
	}
}

func (r *Runner) exec(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			obslog.L().Error("relay_handler_panic", zap.String("panic", fmt.Sprint(rec)), zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
}

// Post enqueues fn without waiting for it to run.
func (r *Runner) Post(ctx context.Context, fn func()) error {
	select {
	case r.inbox <- fn:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Query runs fn on the coordinator goroutine and waits for it to finish.
func (r *Runner) Query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := r.Post(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) Connect(ctx context.Context, id presence.ConnID) error {
	return r.Post(ctx, func() { r.c.Connect(id) })
}

func (r *Runner) Disconnect(ctx context.Context, id presence.ConnID) error {
	return r.Post(ctx, func() { r.c.Disconnect(id) })
}

// Deliver decodes raw on the caller's goroutine and posts the resulting event.
func (r *Runner) Deliver(ctx context.Context, id presence.ConnID, raw []byte) error {
	ev, err := protocol.Decode(raw)
	if err != nil {
		return r.Post(ctx, func() { r.c.RejectMalformed(id, err) })
	}
	return r.Post(ctx, func() { r.c.Handle(id, ev) })
}

func (r *Runner) Sessions(ctx context.Context) ([]match.Summary, error) {
	var out []match.Summary
	err := r.Query(ctx, func() { out = r.c.Sessions() })
	return out, err
}

func (r *Runner) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := r.Query(ctx, func() { out = r.c.Stats() })
	return out, err
}

// SweepEvery runs eviction on the coordinator goroutine at each interval until ctx ends.
func (r *Runner) SweepEvery(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-t.C:
			if err := r.Post(ctx, func() { r.c.Sweep() }); err != nil {
				return
			}
		}
	}
}
