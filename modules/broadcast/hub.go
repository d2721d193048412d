package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"
)

// sendBufferSize is the number of frames queued per client before new
// frames are dropped.
const sendBufferSize = 64

// FrameWriter is the write side of a WebSocket connection.
type FrameWriter interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Envelope is the frame sent to clients for every server event.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Client represents a connected WebSocket client. All writes to the
// connection happen on the client's own write goroutine.
type Client struct {
	ID      string
	conn    FrameWriter
	send    chan []byte
	done    chan struct{}
	stopped chan struct{} // closed when writePump has returned
	once    sync.Once
}

// NewClient wraps conn for registration with the hub.
func NewClient(id string, conn FrameWriter) *Client {
	return &Client{
		ID:   id,
		conn: conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// writePump drains the send queue. Once done is closed no further frame is
// written, even if some are still queued.
func (c *Client) writePump() {
	defer close(c.stopped)
	for {
		select {
		case <-c.done:
			return
		default:
		}

		select {
		case data := <-c.send:
			select {
			case <-c.done:
				return
			default:
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("[hub] Failed to send to client %s: %v", c.ID, err)
				c.stop()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("[hub] Send buffer full for client %s, dropping frame", c.ID)
	}
}

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// shutdown stops the client and waits for an in-flight write to finish.
func (c *Client) shutdown() {
	c.stop()
	<-c.stopped
}

// Hub manages WebSocket connections and delivers frames to them.
type Hub struct {
	clients   map[string]*Client // clientID -> Client
	broadcast chan *BroadcastMessage
	done      chan struct{}
	mu        sync.RWMutex
}

// BroadcastMessage is a process-wide notice queued for the run loop.
type BroadcastMessage struct {
	Type    string
	Payload any
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		broadcast: make(chan *BroadcastMessage, 256),
		done:      make(chan struct{}),
	}
}

// Run delivers queued broadcasts until ctx is cancelled, then closes every
// client connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("[hub] Shutting down...")
			h.closeAllClients()
			close(h.done)
			return
		case msg := <-h.broadcast:
			h.EmitAll(msg.Type, msg.Payload)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

// closeAllClients closes all connected client connections.
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, client := range clients {
		client.shutdown()
		_ = client.conn.Close()
	}
}

// Register adds a client and starts its write goroutine. A client
// registered under an existing id replaces the old one.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	old, replaced := h.clients[client.ID]
	h.clients[client.ID] = client
	go client.writePump()
	h.mu.Unlock()

	if replaced {
		old.shutdown()
	}
	log.Printf("[hub] Client %s registered", client.ID)
}

// Unregister removes a client. Frames still queued for it are discarded.
// When Unregister returns the client's connection is no longer written to.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	client, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()

	if ok {
		client.shutdown()
		log.Printf("[hub] Client %s unregistered", clientID)
	}
}

// Send queues v, encoded as JSON, for one client.
func (h *Hub) Send(clientID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[hub] Failed to marshal frame for %s: %v", clientID, err)
		return
	}

	h.mu.RLock()
	client, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	client.enqueue(data)
}

// Emit queues an event for one client.
func (h *Hub) Emit(clientID, event string, payload any) {
	h.Send(clientID, Envelope{Type: event, Payload: payload})
}

// EmitAll queues an event for every connected client.
func (h *Hub) EmitAll(event string, payload any) {
	data, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		log.Printf("[hub] Failed to marshal broadcast %s: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		client.enqueue(data)
	}
}

// Broadcast queues a process-wide event for the run loop.
func (h *Hub) Broadcast(msgType string, payload any) {
	select {
	case h.broadcast <- &BroadcastMessage{Type: msgType, Payload: payload}:
	case <-h.done:
	}
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
