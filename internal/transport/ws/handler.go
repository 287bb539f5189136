package ws

import (
	"net/http"
	"slices"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/vedran77/parley/internal/transport/http/middleware"
	"nhooyr.io/websocket"
)

// TokenParser validates an access token and returns its subject.
type TokenParser interface {
	ParseToken(token string) (uuid.UUID, error)
}

// ServeWS returns an HTTP handler that upgrades to WebSocket. Browsers
// cannot set headers on the upgrade, so the token may also arrive as the
// token or access_token query parameter.
func ServeWS(hub *Hub, tokens TokenParser, convs Conversations, origins []string) http.HandlerFunc {
	opts := &websocket.AcceptOptions{}
	if slices.Contains(origins, "*") {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = origins
	}

	return func(w http.ResponseWriter, r *http.Request) {
		tokenStr := r.URL.Query().Get("token")
		if tokenStr == "" {
			tokenStr, _ = middleware.BearerToken(r)
		}
		if tokenStr == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := tokens.ParseToken(tokenStr)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, opts)
		if err != nil {
			log.Warn("ws accept", "err", err)
			return
		}

		client := NewClient(hub, conn, convs, userID)
		if !hub.Register(client) {
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}

		ctx := r.Context()
		go client.WritePump(ctx)
		client.ReadPump(ctx)
	}
}
