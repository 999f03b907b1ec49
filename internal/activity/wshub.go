package activity

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// upgrader is shared across connections; CheckOrigin is permissive
// because the gateway's auth/identity gate runs before the WebSocket
// handshake, not at the transport layer.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// ServeWS upgrades an HTTP request to a WebSocket and streams matching
// feed events to the client until the connection closes.
func ServeWS(f *Feed, w http.ResponseWriter, r *http.Request, filter Filter, logger zerolog.Logger) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("activity: websocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := f.Subscribe(filter)
	defer unsubscribe()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
