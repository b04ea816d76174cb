package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/fernwood/sprout/internal/auth"
)

// Handler upgrades an authenticated request to a WebSocket connection scoped
// to the principal's family. Runs behind the auth middleware; anything
// without a principal is rejected.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // app is served same-origin or on a trusted LAN
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, p.ParentID)
		client.Run(r.Context())
	}
}
