// Package feed pushes the day's stats to websocket subscribers after every accepted score.
package feed

import (
	"context"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/MJE43/coindle/internal/calendar"
	"github.com/MJE43/coindle/internal/stats"
)

// MessageTypeStats is the only message the feed sends.
const MessageTypeStats = "stats"

// Message is the JSON frame sent to subscribers.
type Message struct {
	Type      string         `json:"type"`
	Date      string         `json:"date"`
	Stats     stats.Snapshot `json:"stats"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewStatsMessage builds a stats frame for day.
func NewStatsMessage(day calendar.Day, summary stats.Snapshot) Message {
	return Message{
		Type:      MessageTypeStats,
		Date:      day.String(),
		Stats:     summary,
		Timestamp: time.Now().UTC(),
	}
}

// Hub tracks subscribers and fans messages out to them.
type Hub struct {
	logger   *log.Logger
	upgrader websocket.Upgrader

	clients   map[*Client]struct{}
	clientsMu sync.RWMutex

	broadcast chan Message
	done      chan struct{}
	ctx       context.Context
	ready     chan struct{}
	once      sync.Once
}

// NewHub creates a hub. allowedOrigins limits the websocket Origin header; empty or "*"
// allows any origin.
func NewHub(logger *log.Logger, allowedOrigins []string) *Hub {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	h := &Hub{
		logger:    logger,
		clients:   make(map[*Client]struct{}),
		broadcast: make(chan Message, 256),
		done:      make(chan struct{}),
		ready:     make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run fans out broadcasts until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	h.once.Do(func() {
		h.ctx = ctx
		close(h.ready)
	})
	defer close(h.done)

	h.logger.Printf("feed_started")
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// Publish queues the day's summary for every subscriber. Its signature matches
// stats.Listener. When the queue is full the update is dropped; the next one supersedes it.
func (h *Hub) Publish(day calendar.Day, summary stats.Snapshot) {
	select {
	case h.broadcast <- NewStatsMessage(day, summary):
	default:
		h.logger.Printf("feed_dropped reason=buffer_full date=%s", day)
	}
}

// ServeWS upgrades the request and subscribes the connection. greeting, if not nil, is sent
// first so new subscribers see the current numbers without waiting for a submission.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, greeting *Message) {
	select {
	case <-h.ready:
	default:
		http.Error(w, "feed not running", http.StatusServiceUnavailable)
		return
	}
	select {
	case <-h.done:
		http.Error(w, "feed stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("feed_upgrade_failed remote=%s error=%q", r.RemoteAddr, err)
		return
	}

	c := newClient(uuid.New().String(), conn, h)
	if greeting != nil {
		c.trySend(*greeting)
	}
	h.registerClient(c)

	// The hub context outlives the request.
	go c.writePump(h.ctx, h.logger)
	go c.readPump(h.logger)
}

// ClientCount returns the number of connected subscribers.
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Printf("feed_client_connected id=%s total=%d", c.ID, n)
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.clientsMu.Unlock()

	if ok {
		h.logger.Printf("feed_client_disconnected id=%s total=%d", c.ID, n)
	}
}

func (h *Hub) fanOut(msg Message) {
	// Sends happen under the read lock so unregisterClient cannot close a channel mid-send.
	var slow []*Client
	h.clientsMu.RLock()
	for c := range h.clients {
		if !c.trySend(msg) {
			slow = append(slow, c)
		}
	}
	h.clientsMu.RUnlock()

	for _, c := range slow {
		h.logger.Printf("feed_client_slow id=%s action=disconnect", c.ID)
		h.unregisterClient(c)
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.logger.Printf("feed_stopped")
}
