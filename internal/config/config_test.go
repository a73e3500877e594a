package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/sensus-peek/internal/store"
)

func TestLoad_RequiresBackend(t *testing.T) {
	t.Setenv("SENSUS_API_BASE", "")
	_, err := Load(nil)
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SENSUS_API_BASE", "https://api.example")
	t.Setenv("SENSUS_TAP_DEBOUNCE", "")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 1500*time.Millisecond, cfg.Store.Interval)
	assert.Equal(t, 4500*time.Millisecond, cfg.Store.EditGrace)
	assert.Equal(t, store.PolicyRetain, cfg.Store.Screenshot)
	assert.Equal(t, 150*time.Millisecond, cfg.Gesture.LongPress)
	assert.Equal(t, 350*time.Millisecond, cfg.Gesture.TapWindow)
	assert.Equal(t, 350*time.Millisecond, cfg.Gesture.TapDebounce)
	assert.Equal(t, 50.0, cfg.Gesture.SwipeThreshold)
	assert.Equal(t, 5*time.Second, cfg.CommandTimeout)
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("SENSUS_API_BASE", "https://api.example")
	t.Setenv("SENSUS_POLL_INTERVAL", "1000")
	t.Setenv("SENSUS_TAP_DEBOUNCE", "0s")
	t.Setenv("SENSUS_SCREENSHOT_ON_FAILURE", "clear")

	cfg, err := Load([]string{"-addr", ":9000", "-long-press", "180ms"})
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, time.Second, cfg.Store.Interval)
	assert.Equal(t, time.Duration(0), cfg.Gesture.TapDebounce)
	assert.Equal(t, store.PolicyClear, cfg.Store.Screenshot)
	assert.Equal(t, 180*time.Millisecond, cfg.Gesture.LongPress)
}

func TestLoad_RejectsBadPolicy(t *testing.T) {
	t.Setenv("SENSUS_API_BASE", "https://api.example")
	_, err := Load([]string{"-screenshot-on-failure", "sometimes"})
	assert.Error(t, err)
}
