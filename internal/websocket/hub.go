package websocket

import (
	"encoding/json"

	"github.com/overachiever/overachiever-web/internal/logger"
)

// Hub fans events out to every live connection subscribed to a user.
// Delivery is best-effort: a slow or gone client misses events, consistent
// with this being a live progress feed rather than a durable log.
type Hub struct {
	clients    map[string]map[*Client]bool // keyed by steam id
	publish    chan userEvent
	register   chan *Client
	unregister chan *Client
	log        *logger.Log
}

type userEvent struct {
	userID string
	data   []byte
}

func NewHub() *Hub {
	return &Hub{
		publish:    make(chan userEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string]map[*Client]bool),
		log:        logger.New(),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.clients[client.steamID] == nil {
				h.clients[client.steamID] = make(map[*Client]bool)
			}
			h.clients[client.steamID][client] = true
			h.log.Debug("client connected: " + client.id)

		case client := <-h.unregister:
			if conns, ok := h.clients[client.steamID]; ok {
				if _, ok := conns[client]; ok {
					delete(conns, client)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.steamID)
					}
					h.log.Debug("client disconnected: " + client.id)
				}
			}

		case ev := <-h.publish:
			for client := range h.clients[ev.userID] {
				select {
				case client.send <- ev.data:
				default:
					close(client.send)
					delete(h.clients[ev.userID], client)
				}
			}
		}
	}
}

// Publish delivers event to every connection subscribed to userID. Events
// published sequentially reach each subscriber in publish order; the
// per-client buffered channel preserves it.
func (h *Hub) Publish(userID string, event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Error("failed to marshal event")
		return
	}
	h.publish <- userEvent{userID: userID, data: data}
}
