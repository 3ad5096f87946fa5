package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mqdeck/mqdeck/entity"
	"github.com/mqdeck/mqdeck/observability"
)

const maxWSConnections = 200

// snapshot is one WebSocket frame: the full row set of one collection.
// Clients replace their table wholesale, so frames are idempotent and
// a dropped frame costs nothing but staleness.
type snapshot struct {
	Collection string          `json:"collection"`
	Rows       []entity.Entity `json:"rows"`
	At         time.Time       `json:"at"`
}

// SnapshotHub fans collection snapshots out to connected browsers. One
// broadcaster goroutine serves every client; pollers push into it, so
// N clients never cause N broker fetches.
type SnapshotHub struct {
	// clients maps connection to the collection it watches; empty
	// string means all collections.
	clients    map[*websocket.Conn]string
	register   chan subscription
	unregister chan *websocket.Conn
	frames     chan snapshot
	mu         sync.RWMutex
	log        *slog.Logger
}

type subscription struct {
	conn       *websocket.Conn
	collection string
}

// NewSnapshotHub creates a hub.
func NewSnapshotHub(log *slog.Logger) *SnapshotHub {
	return &SnapshotHub{
		clients:    make(map[*websocket.Conn]string),
		register:   make(chan subscription),
		unregister: make(chan *websocket.Conn),
		frames:     make(chan snapshot, 16),
		log:        log,
	}
}

// Run is the hub's main loop; cancel ctx to shut down.
func (h *SnapshotHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case sub := <-h.register:
			h.mu.Lock()
			if len(h.clients) >= maxWSConnections {
				h.mu.Unlock()
				sub.conn.Close()
				h.log.Warn("websocket connection rejected", "limit", maxWSConnections)
				continue
			}
			h.clients[sub.conn] = sub.collection
			n := len(h.clients)
			h.mu.Unlock()
			observability.ConnectedViewers.Set(float64(n))
			h.log.Debug("viewer connected", "collection", sub.collection, "total", n)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			n := len(h.clients)
			h.mu.Unlock()
			observability.ConnectedViewers.Set(float64(n))

		case frame := <-h.frames:
			h.broadcast(frame)
		}
	}
}

func (h *SnapshotHub) broadcast(frame snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, watched := range h.clients {
		if watched != "" && watched != frame.Collection {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(frame); err != nil {
			h.log.Debug("websocket write failed", "error", err)
			go h.Unregister(conn)
		}
	}
}

func (h *SnapshotHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.log.Info("closing websocket hub", "clients", len(h.clients))
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]string)
	observability.ConnectedViewers.Set(0)
}

// Publish queues one snapshot for broadcast. It never blocks the
// poller: if the hub is backed up the frame is dropped and the next
// poll supersedes it anyway.
func (h *SnapshotHub) Publish(collection string, rows []entity.Entity) {
	select {
	case h.frames <- snapshot{Collection: collection, Rows: rows, At: time.Now()}:
	default:
	}
}

// Register adds a client watching one collection ("" for all).
func (h *SnapshotHub) Register(conn *websocket.Conn, collection string) {
	h.register <- subscription{conn: conn, collection: collection}
}

// Unregister removes a client.
func (h *SnapshotHub) Unregister(conn *websocket.Conn) {
	h.unregister <- conn
}

// ClientCount returns the number of connected clients.
func (h *SnapshotHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
