package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ideaflow/ideaflow/internal/notify"
	"github.com/ideaflow/ideaflow/internal/store"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the CORS layer.
	CheckOrigin: func(*http.Request) bool { return true },
}

// changeEvent turns a table commit into a broadcast. Entity ids are
// "kind:id" pairs.
func changeEvent(change store.Change) notify.Event {
	var ids []string
	for kind, changed := range change.Entities {
		for _, id := range changed {
			ids = append(ids, fmt.Sprintf("%s:%s", kind, id))
		}
	}
	return notify.Event{
		Type:      notify.TypeEntityChanged,
		Success:   true,
		EntityIDs: ids,
		Message:   fmt.Sprintf("version %d", change.Version),
	}
}

// WatchChanges broadcasts every table commit through the dispatcher until
// the returned function is called.
func (r *Router) WatchChanges() func() {
	if r.dispatcher == nil {
		return func() {}
	}
	return r.table.Subscribe(func(change store.Change) {
		r.dispatcher.Notify(changeEvent(change))
	})
}

// realtime streams the caller's notifications, and broadcasts, over a
// websocket. Anonymous callers receive broadcasts only.
func (r *Router) realtime(c *gin.Context) {
	if r.dispatcher == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "realtime updates disabled"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	events, cleanup := r.dispatcher.Subscribe(ctx, actorID(c))
	defer cleanup()

	// The read loop only serves control frames; it ends when the peer goes away.
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				r.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
