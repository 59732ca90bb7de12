package api

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/eddielth/machine-bridge/logger"
	"github.com/eddielth/machine-bridge/sink"
)

const broadcastBuffer = 256

// Hub maintains the set of active live-feed clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	connected atomic.Int64
	dropped   atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.connected.Add(1)
			logger.Info("live client connected: %s", client.conn.RemoteAddr())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.remove(client)
				logger.Info("live client disconnected: %s", client.conn.RemoteAddr())
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					logger.Warn("live client %s is not keeping up, dropping it", client.conn.RemoteAddr())
					h.remove(client)
				}
			}
		}
	}
}

// join hands a new client to Run; it reports false once the hub has stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	h.connected.Add(-1)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.connected.Load())
}

// Broadcast queues an event for every client. It never blocks: when the
// queue is full the event is dropped.
func (h *Hub) Broadcast(e sink.Event) {
	message, err := json.Marshal(e)
	if err != nil {
		logger.Error("failed to encode live event: %v", err)
		return
	}

	select {
	case h.broadcast <- message:
	default:
		h.dropped.Add(1)
		logger.Warn("live feed queue full, event for reading %s dropped", e.Payload.ID)
	}
}
