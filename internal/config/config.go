package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/DoyleJ11/sensus-peek/internal/gesture"
	"github.com/DoyleJ11/sensus-peek/internal/store"
)

type Config struct {
	Addr           string
	APIBase        string
	SessionFile    string
	JournalDSN     string
	LogLevel       string
	Dev            bool
	CommandTimeout time.Duration
	Store          store.Config
	Gesture        gesture.Config
}

// Load parses flags, falling back to SENSUS_* environment variables (a .env
// file in the working directory is read first) and then to defaults.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var policy string
	sd := store.DefaultConfig()
	gd := gesture.DefaultConfig()

	fs := flag.NewFlagSet("sensus", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", "", "Listen address")
	fs.StringVar(&cfg.APIBase, "api", "", "Sensus backend base URL")
	fs.StringVar(&cfg.SessionFile, "session", "", "Session file")
	fs.StringVar(&cfg.JournalDSN, "journal", "", "Postgres DSN for the performance journal (optional)")
	fs.StringVar(&cfg.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&cfg.Dev, "dev", false, "Development logging")
	fs.DurationVar(&cfg.Store.Interval, "poll", 0, "Poll interval")
	fs.StringVar(&policy, "screenshot-on-failure", "", "retain or clear")
	fs.DurationVar(&cfg.Gesture.LongPress, "long-press", 0, "Hold time before reveal")
	fs.DurationVar(&cfg.Gesture.TapWindow, "tap-window", 0, "Max gap between taps of one burst")
	fs.DurationVar(&cfg.Gesture.TapDebounce, "tap-debounce", -1, "Wait before dispatching a double tap (0 = immediate)")
	fs.Float64Var(&cfg.Gesture.SwipeThreshold, "swipe", 0, "Two-finger swipe distance in px")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg.Addr = firstNonEmpty(cfg.Addr, os.Getenv("SENSUS_ADDR"), ":8080")
	cfg.APIBase = firstNonEmpty(cfg.APIBase, os.Getenv("SENSUS_API_BASE"))
	if cfg.APIBase == "" {
		return Config{}, errors.New("backend URL required (use -api or SENSUS_API_BASE env)")
	}
	cfg.SessionFile = firstNonEmpty(cfg.SessionFile, os.Getenv("SENSUS_SESSION_FILE"), "sensus_session.yaml")
	cfg.JournalDSN = firstNonEmpty(cfg.JournalDSN, os.Getenv("SENSUS_JOURNAL_DSN"))
	cfg.LogLevel = firstNonEmpty(cfg.LogLevel, os.Getenv("SENSUS_LOG_LEVEL"), "info")
	if !cfg.Dev {
		cfg.Dev = os.Getenv("SENSUS_DEV") == "1" || os.Getenv("SENSUS_DEV") == "true"
	}

	var err error
	if cfg.CommandTimeout, err = envDuration("SENSUS_COMMAND_TIMEOUT", 0, 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.Store.Interval, err = envDuration("SENSUS_POLL_INTERVAL", cfg.Store.Interval, sd.Interval); err != nil {
		return Config{}, err
	}
	if cfg.Store.EditGrace, err = envDuration("SENSUS_EDIT_GRACE", 0, 3*cfg.Store.Interval); err != nil {
		return Config{}, err
	}
	switch p := store.ScreenshotPolicy(firstNonEmpty(policy, os.Getenv("SENSUS_SCREENSHOT_ON_FAILURE"), string(sd.Screenshot))); p {
	case store.PolicyRetain, store.PolicyClear:
		cfg.Store.Screenshot = p
	default:
		return Config{}, fmt.Errorf("invalid screenshot failure policy %q", p)
	}

	if cfg.Gesture.LongPress, err = envDuration("SENSUS_LONG_PRESS", cfg.Gesture.LongPress, gd.LongPress); err != nil {
		return Config{}, err
	}
	if cfg.Gesture.TapWindow, err = envDuration("SENSUS_TAP_WINDOW", cfg.Gesture.TapWindow, gd.TapWindow); err != nil {
		return Config{}, err
	}
	if cfg.Gesture.TapDebounce < 0 {
		// zero is a meaningful value here, so the flag default is -1
		if cfg.Gesture.TapDebounce, err = envDuration("SENSUS_TAP_DEBOUNCE", -1, gd.TapDebounce); err != nil {
			return Config{}, err
		}
	}
	if cfg.Gesture.SwipeThreshold <= 0 {
		cfg.Gesture.SwipeThreshold = gd.SwipeThreshold
		if v := os.Getenv("SENSUS_SWIPE_THRESHOLD"); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				return Config{}, errors.New("invalid SENSUS_SWIPE_THRESHOLD env variable")
			}
			cfg.Gesture.SwipeThreshold = f
		}
	}

	return cfg, nil
}

// envDuration returns flagVal when it was set, then the env variable, then def.
// A negative flagVal counts as unset; a positive one always wins.
func envDuration(key string, flagVal, def time.Duration) (time.Duration, error) {
	if flagVal > 0 {
		return flagVal, nil
	}
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		ms, convErr := strconv.Atoi(v)
		if convErr != nil {
			return 0, fmt.Errorf("invalid %s env variable: %w", key, err)
		}
		d = time.Duration(ms) * time.Millisecond
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s env variable: negative duration", key)
	}
	return d, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
