// Package hub is the push channel to companion apps: every connected
// WebSocket client gets the plane roster on connect and after every change,
// plus a HIT notice when this plane fires.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/aeroduel/plane/pkg/streaming"
)

const (
	sendChSize     = 64
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 25 * time.Second
	maxMessageSize = 1024
)

// CommandFunc handles a text command sent by a client.
type CommandFunc func(cmd string)

// Hub tracks connected clients and fans messages out to them.
type Hub struct {
	roster   func() streaming.Roster
	logger   *slog.Logger
	upgrader ws.Upgrader

	mu        sync.Mutex
	clients   map[*client]struct{}
	onCommand CommandFunc
	closed    bool
}

// New creates a hub. roster is called for every snapshot push and must be
// safe to call from any goroutine.
func New(roster func() streaming.Roster, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		roster: roster,
		logger: logger,
		upgrader: ws.Upgrader{
			// companion apps connect over the plane's own access point
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// OnCommand sets the handler for MATCH_START and MATCH_END commands.
func (h *Hub) OnCommand(fn CommandFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommand = fn
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	c := newClient(conn, h.logger)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		return
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("WebSocket client connected", "remote", r.RemoteAddr, "clients", count)

	if msg, err := h.rosterMessage(); err == nil {
		c.enqueue(msg)
	}

	go c.writeLoop()
	c.readLoop(h.handleCommand)

	h.remove(c)
	h.logger.Info("WebSocket client disconnected", "remote", r.RemoteAddr)
}

// PushHit notifies every client that this plane fired.
func (h *Hub) PushHit() {
	h.broadcast([]byte(streaming.TextHit))
}

// PushSnapshot sends the current roster to every client.
func (h *Hub) PushSnapshot() {
	msg, err := h.rosterMessage()
	if err != nil {
		h.logger.Error("Failed to encode roster", "error", err)
		return
	}
	h.broadcast(msg)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}

func (h *Hub) rosterMessage() ([]byte, error) {
	return json.Marshal(h.roster())
}

// broadcast queues msg for every client. Clients too slow to keep up are dropped.
func (h *Hub) broadcast(msg []byte) {
	h.mu.Lock()
	var slow []*client
	for c := range h.clients {
		if !c.enqueue(msg) {
			slow = append(slow, c)
			delete(h.clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range slow {
		h.logger.Warn("Dropping slow WebSocket client")
		c.close()
	}
}

func (h *Hub) handleCommand(cmd string) {
	cmd = strings.TrimSpace(cmd)
	switch cmd {
	case streaming.CmdMatchStart, streaming.CmdMatchEnd:
	default:
		h.logger.Debug("Ignoring WebSocket message", "message", cmd)
		return
	}

	h.mu.Lock()
	fn := h.onCommand
	h.mu.Unlock()

	if fn == nil {
		h.logger.Warn("No command handler", "command", cmd)
		return
	}
	h.logger.Info("WebSocket command", "command", cmd)
	fn(cmd)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}
