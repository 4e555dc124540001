package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

const (
	// eventWriteTimeout bounds one websocket write to a slow client.
	eventWriteTimeout = 5 * time.Second

	// eventPingInterval keeps idle connections alive through proxies.
	eventPingInterval = 30 * time.Second
)

// events streams workspace events as JSON text messages until the
// client goes away.
func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket accept failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	events, cancel := h.ws.Subscribe()
	defer cancel()

	// Reading is only needed to notice the close handshake.
	ctx := conn.CloseRead(r.Context())

	ping := time.NewTicker(eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := conn.Ping(pctx)
			pcancel()

			if err != nil {
				return
			}

		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "shutting down")
				return
			}

			data, err := json.Marshal(e)
			if err != nil {
				continue
			}

			wctx, wcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err = conn.Write(wctx, websocket.MessageText, data)
			wcancel()

			if err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				}

				return
			}
		}
	}
}
