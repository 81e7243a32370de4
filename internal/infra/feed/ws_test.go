package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pairs_go/internal/event"
	"pairs_go/internal/infra"
)

func newBarServer(t *testing.T, subs chan<- subscribeMessage, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub subscribeMessage
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subs <- sub

		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection until the client leaves
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestWSFeed_RoutesBars(t *testing.T) {
	frames := []string{
		`{"type":"ack"}`,
		`{"pair":"AB","ts":"2024-01-01T00:00:00Z","px":10,"py":5}`,
		`not json`,
		`{"pair":"ZZ","ts":"2024-01-01T00:00:00Z","px":1,"py":1}`,
		`{"pair":"AB","ts":"2024-01-01T00:01:00Z","px":11,"py":5.5}`,
	}
	subs := make(chan subscribeMessage, 1)
	srv := newBarServer(t, subs, frames)
	defer srv.Close()

	router := NewRouter()
	inbox := make(chan event.Event, 10)
	router.Register("AB", inbox)

	m := &infra.Metrics{}
	f := NewWSFeed("ws"+strings.TrimPrefix(srv.URL, "http"), router, m, time.Second)
	if err := f.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer f.Disconnect()

	select {
	case sub := <-subs:
		if sub.Action != "subscribe" || len(sub.Pairs) != 1 || sub.Pairs[0] != "AB" {
			t.Errorf("Unexpected subscription: %+v", sub)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("No subscription received")
	}

	for i := 1; i <= 2; i++ {
		select {
		case ev := <-inbox:
			bar := ev.(*event.BarEvent)
			if bar.Seq != uint64(i) {
				t.Errorf("bar %d has seq %d", i, bar.Seq)
			}
			if i == 2 && bar.Bar.PriceX != 11 {
				t.Errorf("PriceX = %v, want 11", bar.Bar.PriceX)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for bar %d", i)
		}
	}

	if !f.IsConnected() {
		t.Error("Expected feed to be connected")
	}
	if got := m.Snapshot().ActiveConnections; got != 1 {
		t.Errorf("ActiveConnections = %d, want 1", got)
	}

	f.Disconnect()
	if f.IsConnected() {
		t.Error("Expected feed to be disconnected")
	}
	if got := m.Snapshot().ActiveConnections; got != 0 {
		t.Errorf("ActiveConnections after disconnect = %d, want 0", got)
	}
}

func TestWSFeed_HandleMessage(t *testing.T) {
	router := NewRouter()
	inbox := make(chan event.Event, 1)
	router.Register("AB", inbox)
	f := NewWSFeed("ws://unused", router, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	f.startForwarders(ctx)
	defer func() {
		cancel()
		f.wg.Wait()
	}()

	msg, _ := json.Marshal(map[string]any{"pair": "AB", "ts": "2024-01-01T00:00:00Z", "px": 3.0, "py": 1.5})
	if err := f.handleMessage(ctx, msg); err != nil {
		t.Fatalf("handleMessage failed: %v", err)
	}
	select {
	case ev := <-inbox:
		bar := ev.(*event.BarEvent)
		if bar.PairID != "AB" || bar.Bar.PriceY != 1.5 {
			t.Errorf("Unexpected event: %+v", bar)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Bar was not forwarded")
	}

	if err := f.handleMessage(ctx, []byte(`{"pair":"AB","ts":"yesterday"}`)); err == nil {
		t.Error("Expected a decode error for a bad timestamp")
	}
	err := f.handleMessage(ctx, []byte(`{"pair":"ZZ","ts":"2024-01-01T00:00:00Z","px":1,"py":1}`))
	if !errors.Is(err, ErrUnknownPair) {
		t.Errorf("Expected ErrUnknownPair, got %v", err)
	}
}

func TestWSFeed_SlowPairDoesNotBlockOthers(t *testing.T) {
	router := NewRouter()
	stuck := make(chan event.Event) // Never read
	cd := make(chan event.Event, 10)
	router.Register("AB", stuck)
	router.Register("CD", cd)
	f := NewWSFeed("ws://unused", router, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	f.startForwarders(ctx)

	for i := 0; i < 3; i++ {
		msg := fmt.Sprintf(`{"pair":"AB","ts":"2024-01-01T00:0%d:00Z","px":10,"py":5}`, i)
		if err := f.handleMessage(ctx, []byte(msg)); err != nil {
			t.Fatalf("handleMessage AB failed: %v", err)
		}
	}
	if err := f.handleMessage(ctx, []byte(`{"pair":"CD","ts":"2024-01-01T00:00:00Z","px":7,"py":3}`)); err != nil {
		t.Fatalf("handleMessage CD failed: %v", err)
	}

	select {
	case ev := <-cd:
		if bar := ev.(*event.BarEvent); bar.PairID != "CD" || bar.Seq != 1 {
			t.Errorf("Unexpected event: %+v", bar)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("CD was held back by the blocked AB sequencer")
	}

	// Cancelling releases the forwarder blocked on AB
	cancel()
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Forwarders did not stop")
	}
}
