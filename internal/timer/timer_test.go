package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recvGen(t *testing.T, ch <-chan uint64, within time.Duration) uint64 {
	t.Helper()
	select {
	case g := <-ch:
		return g
	case <-time.After(within):
		t.Fatalf("timed out waiting for timer fire")
		return 0
	}
}

func recvNoGen(t *testing.T, ch <-chan uint64, within time.Duration) {
	t.Helper()
	select {
	case g := <-ch:
		t.Fatalf("expected no fire within %v, got gen %d", within, g)
	case <-time.After(within):
	}
}

func TestTimer_Fires(t *testing.T) {
	var tm Timer
	fired := make(chan uint64, 1)

	gen := tm.Arm(10*time.Millisecond, func(g uint64) { fired <- g })
	got := recvGen(t, fired, 200*time.Millisecond)

	assert.Equal(t, gen, got)
	assert.True(t, tm.Live(got))
	tm.Settle(got)
	assert.False(t, tm.Live(got))
}

func TestTimer_DisarmPreventsFire(t *testing.T) {
	var tm Timer
	fired := make(chan uint64, 1)

	tm.Arm(20*time.Millisecond, func(g uint64) { fired <- g })
	tm.Disarm()
	tm.Disarm()

	recvNoGen(t, fired, 60*time.Millisecond)
}

func TestTimer_RearmInvalidatesOldGeneration(t *testing.T) {
	var tm Timer
	fired := make(chan uint64, 2)

	first := tm.Arm(time.Hour, func(g uint64) { fired <- g })
	second := tm.Arm(10*time.Millisecond, func(g uint64) { fired <- g })
	require.NotEqual(t, first, second)

	assert.False(t, tm.Live(first))
	assert.Equal(t, second, recvGen(t, fired, 200*time.Millisecond))
	recvNoGen(t, fired, 30*time.Millisecond)
}
