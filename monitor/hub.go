package monitor

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jxsl13/udprtt/server"
)

const (
	// DefaultBacklog is the number of events that may wait for the broadcast loop
	DefaultBacklog = 256

	writeWait = time.Second
)

var upg = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub broadcasts dispatcher events to every connected websocket client.
// It implements server.EventSink.
type Hub struct {
	logger     *log.Logger
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.Mutex

	// closed when Run returns
	done    chan struct{}
	dropped atomic.Int64
}

// NewHub creates a hub whose broadcast buffer holds backlog events.
func NewHub(backlog int, logger *log.Logger) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if logger == nil {
		logger = Logger
	}
	return &Hub{
		logger:     logger,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, backlog),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
}

// Run broadcasts events until ctx is done. All clients are closed when Run returns.
// It must not be called more than once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			client.Close()
			delete(h.clients, client)
		}
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Printf("New monitor client connected: %s\n", client.RemoteAddr())
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				err := client.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					h.logger.Printf("monitor client %s: %v\n", client.RemoteAddr(), err)
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues e for broadcasting. It never blocks, events are dropped
// while the broadcast buffer is full.
func (h *Hub) Publish(e server.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		h.logger.Printf("failed to encode event: %v\n", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.dropped.Add(1)
	}
}

// Clients returns the number of connected websocket clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns the number of events that did not fit into the broadcast buffer.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ServeWs upgrades the request to a websocket connection and registers it.
// The connection is unregistered as soon as the client closes it.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upg.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Println(err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// clients do not send anything, reading only detects the close
	go func() {
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
				return
			}
		}
	}()
}
