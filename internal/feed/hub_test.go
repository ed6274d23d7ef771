package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/stats"
)

var feedDay = calendar.Day{Year: 2026, Month: time.October, Day: 17}

func startHub(t *testing.T, greeting *Message) (*Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	hub := NewHub(nil, nil)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, greeting)
	}))
	t.Cleanup(func() {
		cancel()
		server.Close()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPublishReachesSubscribers(t *testing.T) {
	hub, url := startHub(t, nil)
	a := dial(t, url)
	b := dial(t, url)
	waitForClients(t, hub, 2)

	hub.Publish(feedDay, stats.Snapshot{TotalPlayers: 3, AverageScore: 1.67, TopScore: 3})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if msg.Type != MessageTypeStats || msg.Date != "2026-10-17" {
			t.Errorf("unexpected frame %+v", msg)
		}
		if msg.Stats.TotalPlayers != 3 || msg.Stats.TopScore != 3 || msg.Stats.Percentile != nil {
			t.Errorf("unexpected stats %+v", msg.Stats)
		}
	}
}

func TestGreetingSentOnConnect(t *testing.T) {
	greeting := NewStatsMessage(feedDay, stats.Snapshot{TotalPlayers: 9})
	_, url := startHub(t, &greeting)

	conn := dial(t, url)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if msg.Stats.TotalPlayers != 9 {
		t.Errorf("greeting = %+v", msg)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t, nil)
	conn := dial(t, url)
	waitForClients(t, hub, 1)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()
	waitForClients(t, hub, 0)
}

func TestServeWSBeforeRun(t *testing.T) {
	hub := NewHub(nil, nil)
	rec := httptest.NewRecorder()
	hub.ServeWS(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil), nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://coindle.example"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if !check(req) {
		t.Error("requests without Origin should pass")
	}
	req.Header.Set("Origin", "https://coindle.example")
	if !check(req) {
		t.Error("allowed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Error("foreign origin accepted")
	}

	if !originChecker([]string{"*"})(req) {
		t.Error("wildcard should accept any origin")
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	hub := NewHub(nil, nil)
	// Nobody is draining; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(hub.broadcast)+10; i++ {
			hub.Publish(feedDay, stats.Snapshot{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
}
