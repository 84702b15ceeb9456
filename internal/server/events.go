package server

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const streamBuffer = 512

// handleEvents streams every emitted event as a JSON frame. ?topics=a,b
// restricts the stream. Reads from the client are discarded.
func (r *Router) handleEvents(c *gin.Context) {
	var topics []string
	for _, t := range strings.Split(c.Query("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}
	// Subscribed before the handshake completes: anything emitted after the
	// client sees the upgrade is delivered.
	sub := r.deps.Events.Subscribe(streamBuffer, topics...)
	defer sub.Close()

	ws, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: wsOriginPatterns,
	})
	if err != nil {
		r.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer func() { _ = ws.CloseNow() }()

	ctx := ws.CloseRead(c.Request.Context())
	r.logger.Debug("event stream opened", "topics", topics)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.C:
			if !open {
				_ = ws.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, ws, ev)
			cancel()
			if err != nil {
				r.logger.Debug("event stream closed", "error", err)
				return
			}
		}
	}
}
