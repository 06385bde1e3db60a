package relayclient_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/cheese-relay/internal/coordinator"
	"github.com/park285/cheese-relay/internal/match"
	"github.com/park285/cheese-relay/internal/protocol"
	"github.com/park285/cheese-relay/internal/relayclient"
	"github.com/park285/cheese-relay/internal/wsserver"
)

func startRelay(t *testing.T) string {
	t.Helper()
	hub := wsserver.NewHub()
	runner := coordinator.NewRunner(coordinator.New(hub), 64)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = runner.Run(ctx) }()

	srv := wsserver.New(runner, hub, wsserver.Options{AllowedOrigins: []string{"*"}})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = srv.Shutdown(sctx)
		ts.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

type peer struct {
	c     *relayclient.Client
	inbox chan protocol.Envelope
}

func connect(t *testing.T, url string) *peer {
	t.Helper()
	p := &peer{c: relayclient.New(url), inbox: make(chan protocol.Envelope, 64)}
	p.c.OnMessage(func(env protocol.Envelope) { p.inbox <- env })
	require.NoError(t, p.c.Connect(context.Background()))
	t.Cleanup(func() { _ = p.c.Close(context.Background()) })
	return p
}

func (p *peer) send(t *testing.T, event string, payload any) {
	t.Helper()
	require.NoError(t, p.c.Send(context.Background(), event, payload))
}

func (p *peer) await(t *testing.T, event string, out any) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case env := <-p.inbox:
			if env.Event != event {
				continue
			}
			if out != nil {
				require.NoError(t, json.Unmarshal(env.Payload, out))
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for %s", event)
		}
	}
}

func TestSendRequiresConnection(t *testing.T) {
	c := relayclient.New("ws://127.0.0.1:1/ws")
	assert.Equal(t, relayclient.StateDisconnected, c.State())
	assert.ErrorIs(t, c.Send(context.Background(), protocol.EventWantToPlay, 5), relayclient.ErrNotConnected)
}

func TestReconnectWithTokenResumesSeat(t *testing.T) {
	url := startRelay(t)
	a, b := connect(t, url), connect(t, url)
	a.await(t, "connected", nil)
	b.await(t, "connected", nil)
	assert.Equal(t, relayclient.StateConnected, a.c.State())

	a.send(t, protocol.EventWantToPlay, 5)
	b.send(t, protocol.EventWantToPlay, map[string]any{"timeControl": 5})
	var ma, mb protocol.MatchFound
	a.await(t, "match_found", &ma)
	b.await(t, "match_found", &mb)
	require.Equal(t, ma.SessionID, mb.SessionID)
	require.NotEqual(t, ma.Color, mb.Color)

	require.NoError(t, b.c.Close(context.Background()))
	var gone protocol.OpponentDisconnected
	a.await(t, "opponent_disconnected", &gone)
	assert.Equal(t, mb.Color, gone.Color)

	b2 := connect(t, url)
	b2.await(t, "connected", nil)
	b2.send(t, protocol.EventReconnect, map[string]any{"sessionId": mb.SessionID, "token": mb.Token})

	var back protocol.OpponentReconnected
	a.await(t, "opponent_reconnected", &back)
	assert.Equal(t, mb.Color, back.Color)
	var again protocol.MatchFound
	b2.await(t, "match_found", &again)
	assert.Equal(t, mb.Color, again.Color)
	assert.Equal(t, string(match.StatusPlaying), again.Status)

	a.send(t, protocol.EventSyncState, map[string]any{"position": "fen-1", "turn": "b"})
	var st protocol.StateSync
	b2.await(t, "sync_state_from_server", &st)
	for st.Position != "fen-1" {
		b2.await(t, "sync_state_from_server", &st)
	}
	assert.Equal(t, "b", st.Turn)
}
