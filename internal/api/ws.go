package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// watchAttempt streams snapshots to the presentation layer over a websocket,
// one message per state change (so the timer updates live every second). The
// stream closes when the engine is torn down or the client hangs up.
func (a *API) watchAttempt(c *gin.Context) {
	eng, ok := a.engine(c)
	if !ok {
		return
	}

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("api: ws upgrade failed", "attempt", eng.ID(), "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := eng.Subscribe()
	defer cancel()

	clientGone := make(chan struct{})

	// Reader exists only to observe the client closing; inbound messages are
	// not part of the protocol and are discarded.
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot, open := <-updates:
			if !open {
				// Engine torn down.
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt closed"))
				return
			}
			if err := conn.WriteJSON(snapshot); err != nil {
				slog.Warn("api: ws write failed", "attempt", eng.ID(), "error", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
