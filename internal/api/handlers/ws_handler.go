package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yoockh/madprep/internal/events"
	"github.com/yoockh/madprep/internal/models"
	"github.com/yoockh/madprep/internal/services"
	"github.com/yoockh/madprep/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
)

type WSHandler struct {
	svc      services.AnalysisService
	bus      events.Bus
	upgrader websocket.Upgrader
}

func NewWSHandler(svc services.AnalysisService, bus events.Bus) *WSHandler {
	return &WSHandler{
		svc: svc,
		bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict to ALLOWED_ORIGINS once the web client ships
		},
	}
}

type wsServerMsg struct {
	Type    string                  `json:"type"`
	Event   *events.Event           `json:"event,omitempty"`
	Session *models.AnalysisSession `json:"session,omitempty"`
	Code    utils.Code              `json:"code,omitempty"`
	Message string                  `json:"message,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// AnalysisWS streams stage transitions of one session. The current snapshot is
// sent first; the socket closes after the final snapshot of a terminal stage.
func (h *WSHandler) AnalysisWS(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	sessionID, ok := sessionIDParam(c, "WSHandler.AnalysisWS")
	if !ok {
		return
	}

	// ownership check before upgrading
	snap, err := h.svc.Get(c.Request.Context(), userID, sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// subscribe before the snapshot so no transition falls in between
	sub, err := h.bus.Subscribe(ctx, sessionID)
	if err != nil {
		_ = wc.writeJSON(wsServerMsg{Type: "error", Code: utils.CodeUnavailable, Message: "progress stream unavailable"})
		return
	}
	defer sub.Close()

	if snap, err = h.svc.Get(ctx, userID, sessionID); err != nil {
		_ = wc.writeJSON(wsServerMsg{Type: "error", Code: utils.CodeNotFound, Message: "session not found"})
		return
	}
	if err := wc.writeJSON(wsServerMsg{Type: "snapshot", Session: snap}); err != nil {
		return
	}
	if snap.Terminal() {
		return
	}

	// reader only services control frames; clients do not send commands
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			if err := wc.writeJSON(wsServerMsg{Type: ev.Type, Event: &ev}); err != nil {
				return
			}
			if !ev.Terminal {
				continue
			}
			if final, err := h.svc.Get(ctx, userID, sessionID); err == nil {
				_ = wc.writeJSON(wsServerMsg{Type: "snapshot", Session: final})
			}
			_ = wc.c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ev.Stage),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}
