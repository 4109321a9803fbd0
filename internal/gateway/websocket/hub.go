// Package websocket carries the controller channel over websocket
// connections. Every text message is one or more controller lines.
package websocket

import (
	"context"
	"io"
	"sync"

	"wabridge/pkg/logger"
)

// Hub maintains the connected controllers. It implements
// controller.Transport: Send broadcasts a frame to every client and
// Receive yields lines from any client in arrival order.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Register requests from clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Frames bound for every client.
	broadcast chan []byte

	// Lines received from clients.
	incoming chan []byte

	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		incoming:   make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It returns after Close.
func (h *Hub) Run() {
	log := logger.Component("websocket")

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client_id", client.id).Msg("Controller connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			log.Info().Str("client_id", client.id).Msg("Controller disconnected")

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					log.Warn().Str("client_id", client.id).Msg("Client buffer full, frame dropped")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Send broadcasts one frame to all connected clients. With no client
// connected the frame is dropped.
func (h *Hub) Send(ctx context.Context, data []byte) error {
	frame := append([]byte(nil), data...)
	select {
	case h.broadcast <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return io.ErrClosedPipe
	}
}

// Receive returns the next line sent by any client.
func (h *Hub) Receive(ctx context.Context) ([]byte, error) {
	select {
	case line := <-h.incoming:
		return line, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.done:
		return nil, io.EOF
	}
}

// Close stops the hub and disconnects every client.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() { close(h.done) })
	return nil
}

// deliver queues a line from a client, waiting while the bridge is busy.
func (h *Hub) deliver(line []byte) bool {
	select {
	case h.incoming <- line:
		return true
	case <-h.done:
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
