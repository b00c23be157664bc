// internal/push/ws.go
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/rainbowcity/dialogue/internal/telemetry"
	"github.com/rainbowcity/dialogue/internal/types"
)

// WSSubscriber adapts a websocket connection to the Subscriber interface.
// Writes are mutex-guarded because websocket connections do not support
// concurrent writers.
type WSSubscriber struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func NewWSSubscriber(conn *websocket.Conn) *WSSubscriber {
	return &WSSubscriber{conn: conn}
}

func (w *WSSubscriber) Send(ctx context.Context, frame Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("connection closed")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (w *WSSubscriber) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close(websocket.StatusNormalClosure, "closing")
}

// WSHandler upgrades HTTP requests to dialogue subscriptions. The dialogue
// ID arrives as the "dialogue_id" query parameter.
type WSHandler struct {
	hub       *Hub
	dialogues types.DialogueStore
	logger    *zap.Logger
}

func NewWSHandler(hub *Hub, dialogues types.DialogueStore, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:       hub,
		dialogues: dialogues,
		logger:    telemetry.Component(logger, "push_ws"),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	dialogueID := types.DialogueID(r.URL.Query().Get("dialogue_id"))
	if dialogueID == "" {
		http.Error(w, "dialogue_id is required", http.StatusBadRequest)
		return
	}
	if _, err := h.dialogues.Get(r.Context(), dialogueID); err != nil {
		http.Error(w, "unknown dialogue", http.StatusNotFound)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	sub := NewWSSubscriber(conn)
	unsubscribe := h.hub.Subscribe(dialogueID, sub)
	defer func() {
		unsubscribe()
		sub.Close()
	}()

	h.logger.Info("subscriber connected",
		zap.String("dialogue_id", string(dialogueID)))

	// Hold the connection open; we only push, so reads just detect close.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			h.logger.Info("subscriber disconnected",
				zap.String("dialogue_id", string(dialogueID)))
			return
		}
	}
}
