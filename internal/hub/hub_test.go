package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/sensus-peek/internal/command"
	"github.com/DoyleJ11/sensus-peek/internal/gesture"
	"github.com/DoyleJ11/sensus-peek/internal/peek"
	"github.com/DoyleJ11/sensus-peek/internal/screen"
	"github.com/DoyleJ11/sensus-peek/internal/store"
)

type nopSource struct {
	ch   chan store.Snapshot
	once sync.Once
}

func (s *nopSource) Start(context.Context, string) (*store.Subscription, error) {
	return &store.Subscription{C: s.ch}, nil
}
func (s *nopSource) Stop()                                              { s.once.Do(func() { close(s.ch) }) }
func (s *nopSource) Latest() store.Snapshot                             { return store.Snapshot{} }
func (s *nopSource) EditNote(context.Context, peek.Note) error          { return nil }
func (s *nopSource) EditScreen(context.Context, *string, *string) error { return nil }
func (s *nopSource) ClearNote(context.Context) error                    { return nil }
func (s *nopSource) ClearScreen(context.Context) error                  { return nil }
func (s *nopSource) ClearSpectator(context.Context) error               { return nil }
func (s *nopSource) ClearAll(context.Context) error                     { return nil }

type nopDispatcher struct{}

func (nopDispatcher) Send(string, command.Command) {}

func factory(calls *int) Factory {
	return func(ctx context.Context, userID string) (*screen.Screen, error) {
		*calls++
		if userID == "broken" {
			return nil, errors.New("backend down")
		}
		deps := screen.Deps{Source: &nopSource{ch: make(chan store.Snapshot)}, Dispatcher: nopDispatcher{}}
		return screen.New(ctx, userID, gesture.DefaultConfig(), deps)
	}
}

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	calls := 0
	h := NewHub(ctx, factory(&calls), zap.NewNop())
	defer func() {
		done := make(chan struct{})
		h.Inbox() <- ShutdownHub{Done: done}
		<-done
	}()

	s1, err := h.Ensure(ctx, "alice")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	s2, err := h.Ensure(ctx, "alice")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	s3 := h.Get(ctx, "alice")

	if s1 == nil || s1 != s2 || s2 != s3 {
		t.Fatalf("expected same screen pointer")
	}
	if calls != 1 {
		t.Fatalf("factory called %d times, want 1", calls)
	}
	if h.Get(ctx, "bob") != nil {
		t.Fatalf("expected no screen for bob")
	}
}

func TestHub_EnsureReportsFactoryError(t *testing.T) {
	calls := 0
	h := NewHub(context.Background(), factory(&calls), zap.NewNop())
	defer func() { h.Inbox() <- ShutdownHub{} }()

	if _, err := h.Ensure(context.Background(), "broken"); err == nil {
		t.Fatalf("expected factory error")
	}
	if h.Get(context.Background(), "broken") != nil {
		t.Fatalf("failed screen must not be registered")
	}
}

func TestHub_RemoveShutsScreenDown(t *testing.T) {
	calls := 0
	h := NewHub(context.Background(), factory(&calls), zap.NewNop())
	defer func() { h.Inbox() <- ShutdownHub{} }()

	scr, err := h.Ensure(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	h.Inbox() <- RemoveScreen{UserID: "alice"}

	select {
	case <-scr.Done():
	case <-time.After(time.Second):
		t.Fatalf("screen still running after remove")
	}
	if h.Get(context.Background(), "alice") != nil {
		t.Fatalf("expected screen removed")
	}
}

func TestHub_ShutdownStopsEveryScreen(t *testing.T) {
	calls := 0
	h := NewHub(context.Background(), factory(&calls), zap.NewNop())

	a, _ := h.Ensure(context.Background(), "alice")
	b, _ := h.Ensure(context.Background(), "bob")

	done := make(chan struct{})
	h.Inbox() <- ShutdownHub{Done: done}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("hub did not shut down")
	}
	for _, scr := range []*screen.Screen{a, b} {
		select {
		case <-scr.Done():
		default:
			t.Fatalf("screen %s still running", scr.UserID())
		}
	}
}
