package ws

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/metrics"
)

// Hub manages all active WebSocket clients and routes conversation events to
// the clients subscribed to them. A user may hold several connections.
type Hub struct {
	clients map[uuid.UUID]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
	done       chan struct{}
}

type broadcastMsg struct {
	conversationID uuid.UUID
	data           []byte
	excludeID      *uuid.UUID // optional: skip this user (e.g. the typist)
	// revokeID, when set, unsubscribes that user instead of delivering data.
	revokeID *uuid.UUID
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		done:       make(chan struct{}),
	}
}

// Run is the Hub's event loop. It returns once ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for c := range conns {
					h.drop(c)
				}
			}
			return

		case client := <-h.register:
			conns, ok := h.clients[client.userID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[client.userID] = conns
			}
			conns[client] = struct{}{}
			metrics.WSConnected()
			log.Debug("ws client connected", "user", client.userID, "connections", len(conns))

		case client := <-h.unregister:
			if _, ok := h.clients[client.userID][client]; ok {
				h.drop(client)
				log.Debug("ws client disconnected", "user", client.userID)
			}

		case msg := <-h.broadcast:
			if msg.revokeID != nil {
				h.revoke(msg)
				continue
			}
			for userID, conns := range h.clients {
				if msg.excludeID != nil && userID == *msg.excludeID {
					continue
				}
				for client := range conns {
					if !client.IsSubscribed(msg.conversationID) {
						continue
					}
					select {
					case client.send <- msg.data:
					default:
						// Client buffer full - disconnect
						h.drop(client)
					}
				}
			}
		}
	}
}

// revoke unsubscribes every connection of the user and tells the ones that
// were subscribed.
func (h *Hub) revoke(msg *broadcastMsg) {
	for client := range h.clients[*msg.revokeID] {
		if !client.IsSubscribed(msg.conversationID) {
			continue
		}
		client.unsubscribe(msg.conversationID)
		select {
		case client.send <- msg.data:
		default:
			h.drop(client)
		}
	}
}

func (h *Hub) drop(c *Client) {
	conns := h.clients[c.userID]
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	c.close()
	metrics.WSDisconnected()
}

// Register hands a client to the event loop. It reports false once the hub
// has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// BroadcastToConversation sends an event to all subscribers of a
// conversation.
func (h *Hub) BroadcastToConversation(conversationID uuid.UUID, event *Event, excludeUserID *uuid.UUID) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("ws hub: marshal event", "type", event.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- &broadcastMsg{
		conversationID: conversationID,
		data:           data,
		excludeID:      excludeUserID,
	}:
	case <-h.done:
	}
}

// UnsubscribeUser removes userID's subscriptions to the conversation. It
// travels through the broadcast queue, so events published before it still
// reach the user and none published after it do.
func (h *Hub) UnsubscribeUser(conversationID, userID uuid.UUID, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Error("ws hub: marshal event", "type", event.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- &broadcastMsg{
		conversationID: conversationID,
		data:           data,
		revokeID:       &userID,
	}:
	case <-h.done:
	}
}
