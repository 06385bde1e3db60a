package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/park285/cheese-relay/internal/protocol"
	"github.com/park285/cheese-relay/internal/relayclient"
)

func main() {
	baseURL := strings.TrimRight(os.Getenv("RELAY_BASE_URL"), "/")
	wsURL := os.Getenv("RELAY_WS_URL")
	tc := os.Getenv("RELAY_CHECK_TIME_CONTROL")
	name := os.Getenv("RELAY_CHECK_NAME")

	if baseURL == "" && wsURL == "" {
		log.Fatal("RELAY_BASE_URL or RELAY_WS_URL is required")
	}
	if wsURL == "" {
		wsURL = "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	}

	if baseURL != "" {
		hc := &http.Client{Timeout: 5 * time.Second}
		res, err := hc.Get(baseURL + "/healthz")
		if err != nil {
			log.Printf("/healthz error: %v", err)
		} else {
			log.Printf("/healthz: %s", res.Status)
			_ = res.Body.Close()
		}
	}

	ws := relayclient.New(wsURL, relayclient.WithReconnect(3, time.Second))
	ws.OnStateChange(func(state relayclient.State) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(env protocol.Envelope) {
		fmt.Printf("WS event=%s payload=%s\n", env.Event, env.Payload)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	if name != "" {
		if err := ws.Send(context.Background(), protocol.EventSetName, name); err != nil {
			log.Printf("set_name error: %v", err)
		}
	}
	if tc != "" {
		n, err := strconv.Atoi(tc)
		if err != nil {
			log.Printf("RELAY_CHECK_TIME_CONTROL must be a number: %v", err)
		} else if err := ws.Send(context.Background(), protocol.EventWantToPlay, n); err != nil {
			log.Printf("want_to_play error: %v", err)
		}
	}

	// observe for a short window
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}
