package gesture

import (
	"time"

	"github.com/DoyleJ11/sensus-peek/internal/command"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseArmed     Phase = "armed"
	PhaseRevealed  Phase = "revealed"
	PhaseTwoFinger Phase = "two_finger"
)

type TimerKind string

const (
	TimerLongPress   TimerKind = "long_press"
	TimerTapDebounce TimerKind = "tap_debounce"
)

// HapticPattern is the vibration pattern sent with every dispatched command.
var HapticPattern = []int{30, 40, 30}

type Config struct {
	LongPress      time.Duration
	TapWindow      time.Duration
	TapDebounce    time.Duration // zero dispatches double taps immediately
	SwipeThreshold float64
}

func DefaultConfig() Config {
	return Config{
		LongPress:      150 * time.Millisecond,
		TapWindow:      350 * time.Millisecond,
		TapDebounce:    350 * time.Millisecond,
		SwipeThreshold: 50,
	}
}

type State struct {
	Phase       Phase
	StartY      float64
	SuppressTap bool
	TapCount    int
	LastTap     time.Time
}

func NewState() State { return State{Phase: PhaseIdle} }

func (s State) Revealed() bool { return s.Phase == PhaseRevealed }

type InputType string

const (
	InTouchStart  InputType = "TouchStart"
	InTouchMove   InputType = "TouchMove"
	InTouchEnd    InputType = "TouchEnd"
	InTouchCancel InputType = "TouchCancel"
	InTimerFired  InputType = "TimerFired"
)

// Input is one pointer event or timer fire. Touches lists the Y coordinate
// of every contact still on the surface.
type Input struct {
	Type    InputType
	Touches []float64
	At      time.Time
	Timer   TimerKind
}

type EffectType string

const (
	EffArmTimer    EffectType = "ArmTimer"
	EffDisarmTimer EffectType = "DisarmTimer"
	EffReveal      EffectType = "Reveal"
	EffConceal     EffectType = "Conceal"
	EffNavigate    EffectType = "Navigate"
	EffDispatch    EffectType = "Dispatch"
	EffHaptic      EffectType = "Haptic"
)

type Effect struct {
	Type    EffectType
	Timer   TimerKind
	Delay   time.Duration
	Command command.Command
}

/*
	Idle      --1 finger-->            Armed      (arm long press)
	Armed     --long press fired-->    Revealed
	Armed     --touchend-->            Idle       (tap)
	Revealed  --touchend-->            Idle       (no tap)
	any       --2 fingers-->           TwoFinger  (taps suppressed)
	TwoFinger --move past threshold--> Idle       (navigate, once)
	TwoFinger --touchend-->            Idle
	any       --touchcancel-->         Idle       (all timers cleared)
*/
func Apply(cfg Config, s State, in Input) ([]Effect, State) {
	switch in.Type {
	case InTouchStart:
		return touchStart(cfg, s, in)
	case InTouchMove:
		return touchMove(cfg, s, in)
	case InTouchEnd:
		return touchEnd(cfg, s, in)
	case InTouchCancel:
		return touchCancel(s)
	case InTimerFired:
		return timerFired(s, in)
	default:
		return nil, s
	}
}

func touchStart(cfg Config, s State, in Input) ([]Effect, State) {
	if len(in.Touches) == 0 {
		return nil, s
	}

	if len(in.Touches) >= 2 {
		effects := []Effect{{Type: EffDisarmTimer, Timer: TimerLongPress}}
		if s.Phase == PhaseRevealed {
			effects = append(effects, Effect{Type: EffConceal})
		}
		s.Phase = PhaseTwoFinger
		s.StartY = averageY(in.Touches)
		s.SuppressTap = true
		return effects, s
	}

	effects := []Effect{}
	if s.Phase == PhaseRevealed {
		effects = append(effects, Effect{Type: EffConceal})
	}
	s.Phase = PhaseArmed
	s.SuppressTap = false
	s.StartY = 0
	effects = append(effects, Effect{Type: EffArmTimer, Timer: TimerLongPress, Delay: cfg.LongPress})
	return effects, s
}

func touchMove(cfg Config, s State, in Input) ([]Effect, State) {
	if s.Phase != PhaseTwoFinger || len(in.Touches) < 2 {
		return nil, s
	}
	if averageY(in.Touches)-s.StartY <= cfg.SwipeThreshold {
		return nil, s
	}

	// Leaving TwoFinger here is what keeps navigation to once per gesture.
	s.Phase = PhaseIdle
	s.SuppressTap = true
	s.StartY = 0
	return []Effect{{Type: EffNavigate}}, s
}

func touchEnd(cfg Config, s State, in Input) ([]Effect, State) {
	switch s.Phase {
	case PhaseTwoFinger:
		s.Phase = PhaseIdle
		s.StartY = 0
		return nil, s

	case PhaseArmed:
		effects := []Effect{{Type: EffDisarmTimer, Timer: TimerLongPress}}
		s.Phase = PhaseIdle
		if s.SuppressTap {
			return effects, s
		}
		tapEffects, next := registerTap(cfg, s, in.At)
		return append(effects, tapEffects...), next

	case PhaseRevealed:
		s.Phase = PhaseIdle
		return []Effect{{Type: EffConceal}}, s

	default:
		return nil, s
	}
}

func touchCancel(s State) ([]Effect, State) {
	effects := []Effect{
		{Type: EffDisarmTimer, Timer: TimerLongPress},
		{Type: EffDisarmTimer, Timer: TimerTapDebounce},
	}
	if s.Phase == PhaseRevealed {
		effects = append(effects, Effect{Type: EffConceal})
	}
	return effects, NewState()
}

func timerFired(s State, in Input) ([]Effect, State) {
	switch in.Timer {
	case TimerLongPress:
		if s.Phase != PhaseArmed {
			return nil, s
		}
		s.Phase = PhaseRevealed
		return []Effect{{Type: EffReveal}}, s

	case TimerTapDebounce:
		if s.TapCount == 2 {
			s = resetTaps(s)
			return dispatch(command.CmdScreenshot), s
		}
		if s.TapCount != 1 {
			s = resetTaps(s)
		}
		return nil, s

	default:
		return nil, s
	}
}

func registerTap(cfg Config, s State, at time.Time) ([]Effect, State) {
	if !s.LastTap.IsZero() && at.Sub(s.LastTap) < cfg.TapWindow {
		s.TapCount++
	} else {
		s.TapCount = 1
	}
	s.LastTap = at

	if s.TapCount >= 3 {
		effects := []Effect{{Type: EffDisarmTimer, Timer: TimerTapDebounce}}
		return append(effects, dispatch(command.CmdFinishEffect)...), resetTaps(s)
	}

	if cfg.TapDebounce > 0 {
		return []Effect{{Type: EffArmTimer, Timer: TimerTapDebounce, Delay: cfg.TapDebounce}}, s
	}
	if s.TapCount == 2 {
		return dispatch(command.CmdScreenshot), s
	}
	return nil, s
}

func dispatch(cmd command.Command) []Effect {
	return []Effect{
		{Type: EffDispatch, Command: cmd},
		{Type: EffHaptic},
	}
}

func resetTaps(s State) State {
	s.TapCount = 0
	s.LastTap = time.Time{}
	return s
}

func averageY(touches []float64) float64 {
	if len(touches) == 1 {
		return touches[0]
	}
	return (touches[0] + touches[1]) / 2
}
