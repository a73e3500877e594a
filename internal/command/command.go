package command

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Command string

const (
	CmdScreenshot   Command = "screenshot"
	CmdFinishEffect Command = "finishEffect"
)

// Sender posts a command to the backend.
type Sender interface {
	SendCommand(ctx context.Context, userID string, cmd Command) error
}

// Recorder receives a line for every command handed to the dispatcher.
type Recorder interface {
	RecordCommand(ctx context.Context, userID string, cmd Command, sendErr error)
}

// Dispatcher sends commands fire-and-forget. A failed send is logged and
// dropped; there is no retry.
type Dispatcher struct {
	sender   Sender
	recorder Recorder
	timeout  time.Duration
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration, log *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{sender: sender, timeout: timeout, log: log}
}

// WithRecorder attaches a journal. Must be called before the first Send.
func (d *Dispatcher) WithRecorder(r Recorder) *Dispatcher {
	d.recorder = r
	return d
}

// Send returns immediately.
func (d *Dispatcher) Send(userID string, cmd Command) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.sender.SendCommand(ctx, userID, cmd)
		if err != nil {
			d.log.Warn("command dropped", zap.String("user", userID), zap.String("command", string(cmd)), zap.Error(err))
		} else {
			d.log.Debug("command sent", zap.String("user", userID), zap.String("command", string(cmd)))
		}
		if d.recorder != nil {
			d.recorder.RecordCommand(ctx, userID, cmd, err)
		}
	}()
}

// Wait blocks until every in-flight Send has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }
