package gesture

import (
	"sort"
	"testing"
	"time"

	"github.com/DoyleJ11/sensus-peek/internal/command"
)

// sim drives Apply with a virtual clock and interprets timer effects the way
// the screen loop does.
type sim struct {
	t        *testing.T
	cfg      Config
	state    State
	now      time.Time
	timers   map[TimerKind]time.Time
	revealed bool
	commands []command.Command
	haptics  int
	navs     int
	everRev  bool
}

func newSim(t *testing.T, cfg Config) *sim {
	return &sim{
		t:      t,
		cfg:    cfg,
		state:  NewState(),
		now:    time.Date(2025, 1, 1, 20, 0, 0, 0, time.UTC),
		timers: map[TimerKind]time.Time{},
	}
}

func (s *sim) send(in Input) {
	in.At = s.now
	effects, next := Apply(s.cfg, s.state, in)
	s.state = next
	for _, e := range effects {
		switch e.Type {
		case EffArmTimer:
			s.timers[e.Timer] = s.now.Add(e.Delay)
		case EffDisarmTimer:
			delete(s.timers, e.Timer)
		case EffReveal:
			s.revealed = true
			s.everRev = true
		case EffConceal:
			s.revealed = false
		case EffNavigate:
			s.navs++
		case EffDispatch:
			s.commands = append(s.commands, e.Command)
		case EffHaptic:
			s.haptics++
		}
	}
}

// advance moves the clock, firing due timers in deadline order.
func (s *sim) advance(d time.Duration) {
	target := s.now.Add(d)
	for {
		kinds := make([]TimerKind, 0, len(s.timers))
		for k, at := range s.timers {
			if !at.After(target) {
				kinds = append(kinds, k)
			}
		}
		if len(kinds) == 0 {
			break
		}
		sort.Slice(kinds, func(i, j int) bool { return s.timers[kinds[i]].Before(s.timers[kinds[j]]) })
		k := kinds[0]
		s.now = s.timers[k]
		delete(s.timers, k)
		s.send(Input{Type: InTimerFired, Timer: k})
	}
	s.now = target
}

func (s *sim) down(ys ...float64) { s.send(Input{Type: InTouchStart, Touches: ys}) }
func (s *sim) move(ys ...float64) { s.send(Input{Type: InTouchMove, Touches: ys}) }
func (s *sim) up(ys ...float64)   { s.send(Input{Type: InTouchEnd, Touches: ys}) }

func (s *sim) tap() {
	s.down(300)
	s.advance(40 * time.Millisecond)
	s.up()
}

func TestTapBursts(t *testing.T) {
	for _, debounce := range []time.Duration{0, 260 * time.Millisecond, 350 * time.Millisecond} {
		cases := []struct {
			taps      int
			wantCmds  []command.Command
			immediate []command.Command // zero debounce fires double taps eagerly
		}{
			{taps: 1},
			{taps: 2, wantCmds: []command.Command{command.CmdScreenshot}},
			{taps: 3, wantCmds: []command.Command{command.CmdFinishEffect},
				immediate: []command.Command{command.CmdScreenshot, command.CmdFinishEffect}},
			{taps: 4, wantCmds: []command.Command{command.CmdFinishEffect},
				immediate: []command.Command{command.CmdScreenshot, command.CmdFinishEffect}},
		}

		for _, tc := range cases {
			name := debounce.String() + "/" + string(rune('0'+tc.taps)) + " taps"
			t.Run(name, func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.TapDebounce = debounce
				s := newSim(t, cfg)

				for i := 0; i < tc.taps; i++ {
					s.tap()
					s.advance(60 * time.Millisecond) // 100ms between taps
				}
				s.advance(time.Second)

				want := tc.wantCmds
				if debounce == 0 && tc.immediate != nil {
					want = tc.immediate
				}
				if len(s.commands) != len(want) {
					t.Fatalf("got commands %v, want %v", s.commands, want)
				}
				for i := range want {
					if s.commands[i] != want[i] {
						t.Fatalf("got commands %v, want %v", s.commands, want)
					}
				}
				if s.haptics != len(want) {
					t.Fatalf("got %d haptics, want %d", s.haptics, len(want))
				}
				if s.everRev {
					t.Fatalf("short taps must never reveal")
				}
			})
		}
	}
}

func TestTripleTapResetsCounter(t *testing.T) {
	s := newSim(t, DefaultConfig())
	for i := 0; i < 3; i++ {
		s.tap()
		s.advance(60 * time.Millisecond)
	}
	if s.state.TapCount != 0 {
		t.Fatalf("after triple tap: want TapCount=0, got %d", s.state.TapCount)
	}
}

func TestDoubleTapWithWideGapStillCounts(t *testing.T) {
	s := newSim(t, DefaultConfig())
	s.tap()
	s.advance(300 * time.Millisecond) // 340ms gap, inside the 350ms window
	s.tap()
	s.advance(time.Second)

	if len(s.commands) != 1 || s.commands[0] != command.CmdScreenshot {
		t.Fatalf("want one screenshot, got %v", s.commands)
	}
}

func TestSlowTapsDoNothing(t *testing.T) {
	s := newSim(t, DefaultConfig())
	for i := 0; i < 4; i++ {
		s.tap()
		s.advance(500 * time.Millisecond)
	}
	if len(s.commands) != 0 {
		t.Fatalf("want no commands, got %v", s.commands)
	}
}

func TestLongPressRevealsAndReleaseIsNotATap(t *testing.T) {
	s := newSim(t, DefaultConfig())

	s.tap()
	s.advance(60 * time.Millisecond)

	s.down(300)
	s.advance(149 * time.Millisecond)
	if s.revealed {
		t.Fatalf("revealed before the long-press threshold")
	}
	s.advance(2 * time.Millisecond)
	if !s.revealed || s.state.Phase != PhaseRevealed {
		t.Fatalf("want revealed after 150ms hold, phase=%v", s.state.Phase)
	}

	s.up()
	if s.revealed || s.state.Phase != PhaseIdle {
		t.Fatalf("release must conceal, phase=%v", s.state.Phase)
	}
	s.advance(time.Second)
	if len(s.commands) != 0 {
		t.Fatalf("long-press release counted as a tap: %v", s.commands)
	}
}

func TestSecondFingerBlocksReveal(t *testing.T) {
	s := newSim(t, DefaultConfig())

	s.down(300)
	s.advance(100 * time.Millisecond)
	s.down(300, 320)
	s.advance(500 * time.Millisecond)

	if s.everRev {
		t.Fatalf("two-finger contact must never reveal")
	}
	if s.state.Phase != PhaseTwoFinger {
		t.Fatalf("want two-finger tracking, got %v", s.state.Phase)
	}

	s.up(300)
	s.up()
	s.advance(time.Second)
	if len(s.commands) != 0 {
		t.Fatalf("two-finger release counted as a tap: %v", s.commands)
	}
}

func TestTwoFingerSwipeNavigatesOnce(t *testing.T) {
	s := newSim(t, DefaultConfig())

	s.down(100, 120)
	s.move(120, 140) // +20
	if s.navs != 0 {
		t.Fatalf("navigated below threshold")
	}
	s.move(160, 182) // +61
	s.move(200, 220)
	s.move(260, 280)
	s.up(260)
	s.up()

	if s.navs != 1 {
		t.Fatalf("want exactly one navigation, got %d", s.navs)
	}
}

func TestTwoFingerUpwardSwipeIsDiscarded(t *testing.T) {
	s := newSim(t, DefaultConfig())

	s.down(300, 320)
	s.move(100, 120)
	s.up()

	if s.navs != 0 || s.state.Phase != PhaseIdle {
		t.Fatalf("want discarded gesture, navs=%d phase=%v", s.navs, s.state.Phase)
	}
}

func TestTouchCancelResetsEverything(t *testing.T) {
	s := newSim(t, DefaultConfig())

	s.tap()
	s.advance(50 * time.Millisecond)
	s.down(300)
	s.advance(200 * time.Millisecond)
	if !s.revealed {
		t.Fatalf("setup: expected reveal")
	}

	s.send(Input{Type: InTouchCancel})
	if s.revealed || s.state != NewState() || len(s.timers) != 0 {
		t.Fatalf("cancel left state behind: revealed=%v state=%+v timers=%v", s.revealed, s.state, s.timers)
	}
}

func TestStaleLongPressFireIsIgnored(t *testing.T) {
	effects, next := Apply(DefaultConfig(), NewState(), Input{Type: InTimerFired, Timer: TimerLongPress})
	if len(effects) != 0 || next.Phase != PhaseIdle {
		t.Fatalf("long press fired while idle must be a no-op, got %v %v", effects, next.Phase)
	}
}
