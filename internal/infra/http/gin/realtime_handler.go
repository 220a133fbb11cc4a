package ginserver

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"octopus/internal/infra/realtime"
)

const (
	streamWriteWait = 10 * time.Second
	streamPongWait  = 60 * time.Second
)

// RealtimeHandler streams conversation change notifications to a signed-in
// user over a websocket. Clients only listen; anything they send is discarded.
type RealtimeHandler struct {
	Hub      *realtime.Hub
	Origins  []string
	Logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewRealtimeHandler(hub *realtime.Hub, origins []string, logger *slog.Logger) *RealtimeHandler {
	h := &RealtimeHandler{Hub: hub, Origins: origins, Logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *RealtimeHandler) Stream(c *gin.Context) {
	p, ok := requirePrincipal(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("websocket upgrade failed", "user_id", p.UserID, "error", err)
		}
		return
	}
	client := h.Hub.Subscribe(p.UserID)
	go h.writePump(conn, client)
	h.readPump(conn, client)
}

func (h *RealtimeHandler) readPump(conn *websocket.Conn, client *realtime.Client) {
	defer func() {
		h.Hub.Unsubscribe(client)
		_ = conn.Close()
	}()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && h.Logger != nil {
				h.Logger.Debug("websocket closed", "user_id", client.UserID, "error", err)
			}
			return
		}
	}
}

func (h *RealtimeHandler) writePump(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(streamPongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// checkOrigin admits same-origin requests, requests without an Origin and the
// configured CORS origins. With no origins configured only same-origin
// browsers may open a stream.
func (h *RealtimeHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || containsWildcard(h.Origins) {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host == r.Host {
		return true
	}
	for _, allowed := range h.Origins {
		if allowed == origin {
			return true
		}
	}
	return false
}
