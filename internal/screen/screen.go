package screen

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/sensus-peek/internal/blob"
	"github.com/DoyleJ11/sensus-peek/internal/command"
	"github.com/DoyleJ11/sensus-peek/internal/gesture"
	"github.com/DoyleJ11/sensus-peek/internal/hero"
	"github.com/DoyleJ11/sensus-peek/internal/peek"
	"github.com/DoyleJ11/sensus-peek/internal/store"
	"github.com/DoyleJ11/sensus-peek/internal/timer"
)

type Msg interface{ isScreenMsg() }

// Touch carries one pointer event from a display.
type Touch struct {
	Input gesture.Input
}

func (Touch) isScreenMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Frame // where this display receives frames
}

func (Join) isScreenMsg() {}

type Leave struct{ ClientID string }

func (Leave) isScreenMsg() {}

type Shutdown struct{}

func (Shutdown) isScreenMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isScreenMsg() {}

type timerFired struct {
	Kind gesture.TimerKind
	Gen  uint64
}

func (timerFired) isScreenMsg() {}

type dataUpdate struct {
	Snap store.Snapshot
}

func (dataUpdate) isScreenMsg() {}

// Source is the polling store as seen by a screen and the HTTP layer.
type Source interface {
	Start(ctx context.Context, userID string) (*store.Subscription, error)
	Stop()
	Latest() store.Snapshot

	EditNote(ctx context.Context, edit peek.Note) error
	EditScreen(ctx context.Context, contact, url *string) error
	ClearNote(ctx context.Context) error
	ClearScreen(ctx context.Context) error
	ClearSpectator(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

type Dispatcher interface {
	Send(userID string, cmd command.Command)
}

// Recorder is the part of the journal a screen writes to. May be nil.
type Recorder interface {
	RecordReveal(userID string, h hero.Hero)
	RecordNavigate(userID string)
}

type Deps struct {
	Source     Source
	Dispatcher Dispatcher
	Recorder   Recorder
	Log        *zap.Logger
}

// Frame is everything a display needs to render the peek screen.
// Navigate and Vibrate describe one-shot effects of the frame that carries them.
type Frame struct {
	Version       int            `json:"version"`
	Seq           uint64         `json:"seq"`
	Revealed      bool           `json:"revealed"`
	Hero          hero.Hero      `json:"hero"`
	Spectator     peek.Spectator `json:"spectator"`
	Note          peek.Note      `json:"note"`
	Screen        peek.Screen    `json:"screen"`
	ScreenshotURL string         `json:"screenshot_url,omitempty"`
	Navigate      bool           `json:"navigate,omitempty"`
	Vibrate       []int          `json:"vibrate,omitempty"`
}

type View struct {
	Version    int
	NumClients int
	Phase      gesture.Phase
	TapCount   int
	Hero       hero.Hero
	Seq        uint64
}

type Screen struct {
	userID  string
	inbox   chan Msg
	cfg     gesture.Config
	deps    Deps
	log     *zap.Logger
	gesture gesture.State
	timers  map[gesture.TimerKind]*timer.Timer
	data    store.Snapshot
	hero    hero.Kind
	version int
	clients map[string]chan Frame
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New starts polling for userID and the screen's event loop.
func New(parent context.Context, userID string, cfg gesture.Config, deps Deps) (*Screen, error) {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	sub, err := deps.Source.Start(ctx, userID)
	if err != nil {
		cancel()
		return nil, err
	}

	s := &Screen{
		userID:  userID,
		inbox:   make(chan Msg, 64),
		cfg:     cfg,
		deps:    deps,
		log:     deps.Log.With(zap.String("user_id", userID)),
		gesture: gesture.NewState(),
		timers: map[gesture.TimerKind]*timer.Timer{
			gesture.TimerLongPress:   {},
			gesture.TimerTapDebounce: {},
		},
		clients: make(map[string]chan Frame),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go s.forward(sub.C)
	go s.loop()
	return s, nil
}

// Expose the inbox so the ws layer and tests can send messages.
func (s *Screen) Inbox() chan<- Msg { return s.inbox }

func (s *Screen) UserID() string { return s.userID }

// Data returns the store behind this screen for edits and clears.
func (s *Screen) Data() Source { return s.deps.Source }

// Done is closed once the loop has shut down.
func (s *Screen) Done() <-chan struct{} { return s.done }

// post delivers m unless the screen is already gone.
func (s *Screen) post(m Msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Screen) forward(updates <-chan store.Snapshot) {
	for snap := range updates {
		if !s.post(dataUpdate{Snap: snap}) {
			return
		}
	}
}

func (s *Screen) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.clients[msg.ClientID] = msg.Outbox
				msg.Outbox <- s.frame()

			case Leave:
				if ch, ok := s.clients[msg.ClientID]; ok {
					close(ch)
					delete(s.clients, msg.ClientID)
				}

			case Touch:
				s.apply(msg.Input)

			case timerFired:
				t := s.timers[msg.Kind]
				if t == nil || !t.Live(msg.Gen) {
					break // re-armed or disarmed after this fire was queued
				}
				t.Settle(msg.Gen)
				s.apply(gesture.Input{Type: gesture.InTimerFired, Timer: msg.Kind, At: time.Now()})

			case dataUpdate:
				s.update(msg.Snap)

			case GetState:
				msg.Reply <- View{
					Version:    s.version,
					NumClients: len(s.clients),
					Phase:      s.gesture.Phase,
					TapCount:   s.gesture.TapCount,
					Hero:       hero.Build(s.hero, s.data.Note, s.data.Screen),
					Seq:        s.data.Seq,
				}

			case Shutdown:
				s.shutdown()
				return
			}
		}
	}
}

func (s *Screen) apply(in gesture.Input) {
	if in.At.IsZero() {
		in.At = time.Now()
	}
	effects, next := gesture.Apply(s.cfg, s.gesture, in)
	wasRevealed := s.gesture.Revealed()
	s.gesture = next

	var navigate bool
	var vibrate []int
	for _, e := range effects {
		switch e.Type {
		case gesture.EffArmTimer:
			kind := e.Timer
			s.timers[kind].Arm(e.Delay, func(gen uint64) {
				s.post(timerFired{Kind: kind, Gen: gen})
			})
		case gesture.EffDisarmTimer:
			s.timers[e.Timer].Disarm()
		case gesture.EffReveal:
			if s.deps.Recorder != nil {
				s.deps.Recorder.RecordReveal(s.userID, hero.Build(s.hero, s.data.Note, s.data.Screen))
			}
		case gesture.EffConceal:
		case gesture.EffNavigate:
			navigate = true
			if s.deps.Recorder != nil {
				s.deps.Recorder.RecordNavigate(s.userID)
			}
		case gesture.EffDispatch:
			s.log.Debug("dispatch", zap.String("command", string(e.Command)))
			s.deps.Dispatcher.Send(s.userID, e.Command)
		case gesture.EffHaptic:
			vibrate = gesture.HapticPattern
		}
	}

	if wasRevealed == s.gesture.Revealed() && !navigate && vibrate == nil {
		return
	}
	s.version++
	f := s.frame()
	f.Navigate = navigate
	f.Vibrate = vibrate
	s.broadcast(f)
}

func (s *Screen) update(next store.Snapshot) {
	prev := s.data
	if prev.Seq == 0 && s.hero == hero.KindNone {
		s.hero = hero.Initial(next.Note, next.Screen)
	} else {
		s.hero = hero.Select(prev.Note, prev.Screen, next.Note, next.Screen, s.hero)
	}
	s.data = next
	s.version++
	s.broadcast(s.frame())
}

func (s *Screen) frame() Frame {
	f := Frame{
		Version:   s.version,
		Seq:       s.data.Seq,
		Revealed:  s.gesture.Revealed(),
		Hero:      hero.Build(s.hero, s.data.Note, s.data.Screen),
		Spectator: s.data.Spectator,
		Note:      s.data.Note,
		Screen:    s.data.Screen,
	}
	if s.data.Screenshot != "" {
		f.ScreenshotURL = BlobPath(s.data.Screenshot)
	}
	return f
}

// BlobPath is where the engine serves a screenshot handle.
func BlobPath(h blob.Handle) string { return "/blobs/" + string(h) }

func (s *Screen) shutdown() {
	for _, t := range s.timers {
		t.Disarm()
	}
	s.cancel()
	s.deps.Source.Stop()
	for id, ch := range s.clients {
		close(ch) // no more frames
		delete(s.clients, id)
	}
}

func (s *Screen) broadcast(f Frame) {
	for id, ch := range s.clients {
		select {
		case ch <- f:
		default:
			// Display is slow/full, drop it.
			close(ch)
			delete(s.clients, id)
			s.log.Info("dropped slow display", zap.String("client_id", id))
		}
	}
}
