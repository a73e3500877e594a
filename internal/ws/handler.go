package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/sensus-peek/internal/gesture"
	"github.com/DoyleJ11/sensus-peek/internal/hub"
	"github.com/DoyleJ11/sensus-peek/internal/screen"
	"github.com/DoyleJ11/sensus-peek/internal/session"
	"github.com/DoyleJ11/sensus-peek/internal/types"
)

// Sessions reports the logged-in performer.
type Sessions interface {
	Current() (session.Session, bool)
}

// Handler attaches a display to the logged-in user's peek screen.
func Handler(h *hub.Hub, sessions Sessions, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessions.Current()
		if !ok {
			http.Error(w, "not logged in", http.StatusUnauthorized)
			return
		}

		scr, err := h.Ensure(r.Context(), sess.UserID)
		if err != nil {
			http.Error(w, "screen unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan screen.Frame, 8)
		clientID := uuid.NewString()
		log := log.With(zap.String("client_id", clientID), zap.String("user_id", sess.UserID))

		if !send(r.Context(), scr, screen.Join{ClientID: clientID, Outbox: out}) {
			return
		}
		log.Info("display joined")
		defer func() {
			send(context.Background(), scr, screen.Leave{ClientID: clientID})
			log.Info("display left")
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case <-writeCtx.Done():
					return
				case f, ok := <-out:
					if !ok {
						// The screen dropped us or shut down.
						conn.Close(websocket.StatusGoingAway, "screen closed")
						return
					}
					msg := types.ServerMessage{Type: "Frame", Version: f.Version, Frame: &f}
					payload, _ := json.Marshal(msg)
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					err := conn.Write(ctx, websocket.MessageText, payload)
					cancel()
					if err != nil {
						return
					}
				}
			}
		}()

		// Reads have no deadline; pings detect dead displays.
		go keepAlive(writeCtx, conn, log)

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("display read ended", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			in, ok := ToInput(cm)
			if !ok {
				writeError(r.Context(), conn, "unknown type")
				continue
			}

			if !send(r.Context(), scr, screen.Touch{Input: in}) {
				return
			}
		}
	}
}

const pingInterval = 30 * time.Second

func keepAlive(ctx context.Context, conn *websocket.Conn, log *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Info("display stopped answering pings", zap.Error(err))
					conn.Close(websocket.StatusGoingAway, "ping timeout")
				}
				return
			}
		}
	}
}

// ToInput maps a display message onto a gesture input.
func ToInput(m types.ClientMessage) (gesture.Input, bool) {
	var typ gesture.InputType
	switch m.Type {
	case "touchstart":
		typ = gesture.InTouchStart
	case "touchmove":
		typ = gesture.InTouchMove
	case "touchend":
		typ = gesture.InTouchEnd
	case "touchcancel":
		typ = gesture.InTouchCancel
	default:
		return gesture.Input{}, false
	}

	in := gesture.Input{Type: typ, Touches: make([]float64, 0, len(m.Touches))}
	for _, p := range m.Touches {
		in.Touches = append(in.Touches, p.Y)
	}
	if m.TS > 0 {
		in.At = time.UnixMilli(m.TS)
	}
	return in, true
}

func send(ctx context.Context, scr *screen.Screen, m screen.Msg) bool {
	select {
	case scr.Inbox() <- m:
		return true
	case <-scr.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: "Error", Error: msg})
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
