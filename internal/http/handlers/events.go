package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Storefront embeds connect from arbitrary shop origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamEvents upgrades the connection and subscribes it to job updates. The
// read loop exists only to observe the close handshake.
func (a *App) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if a.Hub == nil {
		a.error(w, http.StatusNotFound, "not_found", "event streaming disabled")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("handlers: websocket upgrade failed")
		return
	}
	a.Hub.Register(conn)
	go func() {
		defer a.Hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
