package hub

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/sensus-peek/internal/screen"
)

// Factory builds the screen for a user. It is called on the hub goroutine.
type Factory func(ctx context.Context, userID string) (*screen.Screen, error)

type HubMsg interface{ isHubMsg() }

type Result struct {
	Screen *screen.Screen
	Err    error
}

type EnsureScreen struct {
	UserID string
	Reply  chan Result
}

type GetScreen struct {
	UserID string
	Reply  chan *screen.Screen
}

type RemoveScreen struct {
	UserID string
}

type ShutdownHub struct {
	Done chan struct{} // closed once every screen has stopped; may be nil
}

func (EnsureScreen) isHubMsg() {}
func (GetScreen) isHubMsg()    {}
func (RemoveScreen) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

// Hub owns one peek screen per logged-in user.
type Hub struct {
	inbox   chan HubMsg
	screens map[string]*screen.Screen
	factory Factory
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, factory Factory, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		screens: make(map[string]*screen.Screen),
		factory: factory,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Ensure is the request/reply form of EnsureScreen.
func (h *Hub) Ensure(ctx context.Context, userID string) (*screen.Screen, error) {
	reply := make(chan Result, 1)
	select {
	case h.inbox <- EnsureScreen{UserID: userID, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.Screen, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the user's screen or nil.
func (h *Hub) Get(ctx context.Context, userID string) *screen.Screen {
	reply := make(chan *screen.Screen, 1)
	select {
	case h.inbox <- GetScreen{UserID: userID, Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case scr := <-reply:
		return scr
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case EnsureScreen:
				if scr := h.live(msg.UserID); scr != nil {
					msg.Reply <- Result{Screen: scr}
					break
				}
				scr, err := h.factory(h.ctx, msg.UserID)
				if err != nil {
					h.log.Warn("screen start failed", zap.String("user_id", msg.UserID), zap.Error(err))
					msg.Reply <- Result{Err: err}
					break
				}
				h.screens[msg.UserID] = scr
				h.log.Info("screen started", zap.String("user_id", msg.UserID))
				msg.Reply <- Result{Screen: scr}

			case GetScreen:
				msg.Reply <- h.live(msg.UserID) // May be nil

			case RemoveScreen:
				if scr := h.screens[msg.UserID]; scr != nil {
					select {
					case scr.Inbox() <- screen.Shutdown{}:
					case <-scr.Done():
					}
					delete(h.screens, msg.UserID)
					h.log.Info("screen removed", zap.String("user_id", msg.UserID))
				}

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				if msg.Done != nil {
					close(msg.Done)
				}
				return
			}
		}
	}
}

// live drops a screen whose loop already exited.
func (h *Hub) live(userID string) *screen.Screen {
	scr := h.screens[userID]
	if scr == nil {
		return nil
	}
	select {
	case <-scr.Done():
		delete(h.screens, userID)
		return nil
	default:
		return scr
	}
}

func (h *Hub) shutdown() {
	for _, scr := range h.screens {
		select {
		case scr.Inbox() <- screen.Shutdown{}:
		case <-scr.Done():
		}
	}
	for id, scr := range h.screens {
		<-scr.Done()
		delete(h.screens, id)
	}
}
