// Package ws streams live simulation runs to browser clients over
// WebSocket and routes playback commands back to the player.
package ws

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Client represents a connected WebSocket client. dropped counts messages
// discarded because the client could not keep up with the step stream.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	dropped atomic.Int64
}

// trySend queues msg without blocking. A full buffer drops the message and
// bumps the client's drop counter; the stepping goroutine is never stalled
// by a slow consumer.
func (c *Client) trySend(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Hub manages WebSocket clients and fans out broadcast messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		if n := c.dropped.Load(); n > 0 {
			log.Printf("client disconnected, %d messages dropped", n)
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.trySend(msg)
	}
}

// BroadcastEnvelope marshals a typed envelope and fans it out.
func (h *Hub) BroadcastEnvelope(msgType string, payload any) error {
	msg, err := NewEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
