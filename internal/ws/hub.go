package ws

import (
	"encoding/json"
	"sync"

	"gridwatch/internal/logger"
	"gridwatch/internal/model"
)

// Hub maintains the set of active clients and broadcasts alert events to
// them. Slow or gone clients are dropped rather than blocking the generator.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// Run dispatches register/unregister/broadcast events until the process
// exits. Call in its own goroutine.
func (h *Hub) Run() {
	log := logger.WithComponent("ws")
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debug().Str("remote", client.conn.RemoteAddr().String()).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastAlert sends an alert event to all connected clients.
func (h *Hub) BroadcastAlert(alert model.Alert) {
	message, err := json.Marshal(map[string]any{"type": "alert", "payload": alert})
	if err != nil {
		log := logger.WithComponent("ws")
		log.Error().Err(err).Msg("marshal alert for broadcast")
		return
	}
	select {
	case h.broadcast <- message:
	default:
		// Hub backlog full; the event stream is best-effort.
	}
}
