package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu    sync.Mutex
	calls []Command
	err   error
	block chan struct{}
}

func (f *fakeSender) SendCommand(ctx context.Context, userID string, cmd Command) error {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmd)
	return f.err
}

type fakeRecorder struct {
	mu   sync.Mutex
	errs []error
}

func (r *fakeRecorder) RecordCommand(_ context.Context, _ string, _ Command, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestDispatcher_SendIsFireAndForget(t *testing.T) {
	s := &fakeSender{block: make(chan struct{})}
	d := NewDispatcher(s, time.Second, zap.NewNop())

	done := make(chan struct{})
	go func() {
		d.Send("magician", CmdScreenshot)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("Send blocked on the network")
	}

	close(s.block)
	d.Wait()
	assert.Equal(t, []Command{CmdScreenshot}, s.calls)
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	s := &fakeSender{err: errors.New("connection refused")}
	rec := &fakeRecorder{}
	d := NewDispatcher(s, time.Second, zap.NewNop()).WithRecorder(rec)

	d.Send("magician", CmdFinishEffect)
	d.Send("magician", CmdFinishEffect)
	d.Wait()

	require.Len(t, s.calls, 2, "no retry: one call per Send")
	require.Len(t, rec.errs, 2)
	assert.Error(t, rec.errs[0])
}

func TestDispatcher_TimeoutBoundsSend(t *testing.T) {
	s := &fakeSender{block: make(chan struct{})}
	d := NewDispatcher(s, 20*time.Millisecond, zap.NewNop())

	d.Send("magician", CmdScreenshot)
	d.Wait()

	assert.Empty(t, s.calls)
}
