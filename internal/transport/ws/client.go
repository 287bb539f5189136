package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/parley/pkg/apperr"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 4096
	sendBufSize    = 256
	requestTimeout = 5 * time.Second
)

// Conversations is what a client needs from the service layer: a
// membership check for subscriptions and the typing lease operations.
type Conversations interface {
	Authorize(ctx context.Context, userID, conversationID uuid.UUID) error
	StartTyping(ctx context.Context, userID, conversationID uuid.UUID) error
	StopTyping(ctx context.Context, userID, conversationID uuid.UUID) error
}

// Client represents a single WebSocket connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	convs  Conversations
	userID uuid.UUID

	subscriptions map[uuid.UUID]struct{}
	mu            sync.RWMutex

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, convs Conversations, userID uuid.UUID) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		convs:         convs,
		userID:        userID,
		subscriptions: make(map[uuid.UUID]struct{}),
		send:          make(chan []byte, sendBufSize),
		done:          make(chan struct{}),
	}
}

func (c *Client) IsSubscribed(conversationID uuid.UUID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.subscriptions[conversationID]
	return ok
}

func (c *Client) subscribe(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[conversationID] = struct{}{}
}

func (c *Client) unsubscribe(conversationID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, conversationID)
}

// ReadPump reads events from the connection until it closes or ctx ends.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	for {
		var event Event
		err := wsjson.Read(ctx, c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug("ws read error", "user", c.userID, "err", err)
			}
			return
		}

		c.handleEvent(ctx, &event)
	}
}

// WritePump writes queued events to the connection and keeps it alive.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				log.Debug("ws write error", "user", c.userID, "err", err)
				return
			}

		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("ws ping error", "user", c.userID, "err", err)
				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// close marks the client as dropped by the hub. send is never closed, so
// late writers cannot panic.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// handleEvent routes an incoming client event.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	if event.Type == EventTypePing {
		c.enqueue(&Event{Type: EventTypePong})
		return
	}

	if event.ConversationID == nil {
		c.sendError(string(apperr.CodeInvalidArgument), "conversation_id is required")
		return
	}
	convID := *event.ConversationID

	rctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch event.Type {
	case EventTypeSubscribe:
		if err := c.convs.Authorize(rctx, c.userID, convID); err != nil {
			c.sendServiceError(err)
			return
		}
		c.subscribe(convID)
		evt, _ := NewEvent(EventTypeSubscribed, &convID, nil)
		c.enqueue(evt)

	case EventTypeUnsubscribe:
		c.unsubscribe(convID)

	case EventTypeTypingStart:
		if err := c.convs.StartTyping(rctx, c.userID, convID); err != nil {
			c.sendServiceError(err)
		}

	case EventTypeTypingStop:
		if err := c.convs.StopTyping(rctx, c.userID, convID); err != nil {
			c.sendServiceError(err)
		}

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendServiceError(err error) {
	code := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		log.Error("ws request", "user", c.userID, "err", err)
	}
	c.sendError(string(code), apperr.MessageOf(err))
}

func (c *Client) sendError(code, message string) {
	evt, err := NewEvent(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.enqueue(evt)
}

// enqueue drops the event if the buffer is full.
func (c *Client) enqueue(evt *Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
	}
}
