// Package stream pushes enriched readings to connected WebSocket clients as they are ingested.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"smartair-guardian/internal/readings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 5 * time.Second
	broadcastQueue = 256
)

// MetricsInterface receives the connected client count.
type MetricsInterface interface {
	StreamClientsSet(int)
}

// client is the write side of a WebSocket connection.
type client interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Hub fans out readings to WebSocket clients. Broadcast never blocks the caller; when the
// queue is full the reading is dropped for streaming only.
type Hub struct {
	upgrader  websocket.Upgrader
	clients   map[client]bool
	clientsMu sync.RWMutex
	broadcast chan readings.Enriched
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	metrics   MetricsInterface
}

// NewHub creates a hub and starts its broadcaster. metrics may be nil.
func NewHub(metrics MetricsInterface) *Hub {
	h := &Hub{
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:   make(map[client]bool),
		broadcast: make(chan readings.Enriched, broadcastQueue),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		metrics:   metrics,
	}
	go h.run()
	return h
}

// Broadcast queues r for every connected client.
func (h *Hub) Broadcast(r readings.Enriched) {
	select {
	case h.broadcast <- r:
	case <-h.stop:
	default:
		log.Warn().Str("id", r.ID).Msg("Stream queue full, dropping reading")
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the broadcaster.
func (h *Hub) Close() {
	h.stopOnce.Do(func() {
		close(h.stop)
		<-h.done

		h.clientsMu.Lock()
		for client := range h.clients {
			client.Close()
		}
		h.clients = make(map[client]bool)
		h.clientsMu.Unlock()
		h.reportClients()
	})
}

// ServeHTTP upgrades the request and keeps the client registered until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.clientsMu.Lock()
	h.clients[conn] = true
	h.clientsMu.Unlock()
	h.reportClients()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Stream client connected")

	// Clients only listen; reading drains control frames and detects disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.clientsMu.Lock()
	delete(h.clients, conn)
	h.clientsMu.Unlock()
	h.reportClients()
	log.Debug().Str("remote", r.RemoteAddr).Msg("Stream client disconnected")
}

func (h *Hub) run() {
	defer close(h.done)
	for {
		select {
		case r := <-h.broadcast:
			h.send(r)
		case <-h.stop:
			return
		}
	}
}

// send writes r to a snapshot of the clients. Writes happen outside clientsMu so a slow client
// never blocks registration or Clients; only the broadcaster goroutine writes.
func (h *Hub) send(r readings.Enriched) {
	data, err := json.Marshal(r)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal reading for broadcast")
		return
	}

	h.clientsMu.RLock()
	targets := make([]client, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.clientsMu.RUnlock()

	var failed []client
	for _, c := range targets {
		c.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Warn().Err(err).Msg("Failed to send reading to stream client")
			c.Close()
			failed = append(failed, c)
		}
	}
	if len(failed) == 0 {
		return
	}

	h.clientsMu.Lock()
	for _, c := range failed {
		delete(h.clients, c)
	}
	h.clientsMu.Unlock()
	h.reportClients()
}

func (h *Hub) reportClients() {
	if h.metrics != nil {
		h.metrics.StreamClientsSet(h.Clients())
	}
}
