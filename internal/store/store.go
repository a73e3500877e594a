package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/sensus-peek/internal/api"
	"github.com/DoyleJ11/sensus-peek/internal/blob"
	"github.com/DoyleJ11/sensus-peek/internal/peek"
)

var (
	ErrAlreadyStarted = errors.New("store already started")
	ErrStopped        = errors.New("store stopped")
	ErrNotStarted     = errors.New("store not started")
)

// ScreenshotPolicy decides what a failed screenshot download does to the
// blob currently on display.
type ScreenshotPolicy string

const (
	PolicyRetain ScreenshotPolicy = "retain"
	PolicyClear  ScreenshotPolicy = "clear"
)

type Config struct {
	Interval   time.Duration
	Screenshot ScreenshotPolicy
	EditGrace  time.Duration // how long a local edit survives without a server echo
}

func DefaultConfig() Config {
	return Config{
		Interval:   1500 * time.Millisecond,
		Screenshot: PolicyRetain,
		EditGrace:  4500 * time.Millisecond,
	}
}

// Backend is the slice of the REST API the store polls and writes through.
type Backend interface {
	DataPeek(ctx context.Context, userID string) (peek.Spectator, error)
	NotePeek(ctx context.Context, userID string) (peek.Note, error)
	ScreenPeek(ctx context.Context, userID string) (peek.Screen, error)
	Screenshot(ctx context.Context, userID string) (blob.Blob, error)

	UpdateNotePeek(ctx context.Context, userID string, n peek.Note) error
	UpdateScreenPeek(ctx context.Context, userID string, u api.ScreenUpdate) error
	ClearNotePeek(ctx context.Context, userID string) error
	ClearScreenPeek(ctx context.Context, userID string) error
	ClearDataPeek(ctx context.Context, userID string) error
	ClearAll(ctx context.Context, userID string) error
}

// Snapshot is an immutable merged view. Seq increases with every emission.
type Snapshot struct {
	Seq        uint64
	At         time.Time
	Spectator  peek.Spectator
	Note       peek.Note
	Screen     peek.Screen
	Screenshot blob.Handle
}

type Subscription struct {
	C     <-chan Snapshot
	store *Store
}

func (sub *Subscription) Stop() { sub.store.Stop() }

type pending[T any] struct {
	edit  T
	until time.Time
}

// Store polls one user's peek data and owns that user's screenshot blob.
type Store struct {
	backend Backend
	slot    *blob.Slot
	cfg     Config
	log     *zap.Logger
	now     func() time.Time

	mu            sync.Mutex
	userID        string
	started       bool
	stopped       bool
	cancel        context.CancelFunc
	done          chan struct{}
	out           chan Snapshot
	seq           uint64
	rev           uint64 // bumped by local edits and clears
	state         Snapshot
	pendingNote   *pending[peek.Note]
	pendingScreen *pending[peek.Screen]

	stopOnce sync.Once
}

func New(backend Backend, reg *blob.Registry, cfg Config, log *zap.Logger) *Store {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Screenshot == "" {
		cfg.Screenshot = def.Screenshot
	}
	if cfg.EditGrace <= 0 {
		cfg.EditGrace = 3 * cfg.Interval
	}
	return &Store{
		backend: backend,
		slot:    blob.NewSlot(reg),
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Start begins polling for userID. The first tick runs immediately.
func (s *Store) Start(parent context.Context, userID string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if s.started {
		return nil, ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(parent)
	s.started = true
	s.userID = userID
	s.cancel = cancel
	s.done = make(chan struct{})
	s.out = make(chan Snapshot, 1)

	go s.run(ctx, userID, s.out, s.done)
	return &Subscription{C: s.out, store: s}, nil
}

// Stop cancels polling, discards in-flight results and revokes the live
// screenshot handle. Safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
		s.slot.Close()
	})
}

// Latest returns the most recent merged snapshot.
func (s *Store) Latest() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) run(ctx context.Context, userID string, out chan Snapshot, done chan struct{}) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		s.out = nil // edits after this point only update Latest
		s.mu.Unlock()
		close(out)
	}()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.tick(ctx, userID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, userID)
		}
	}
}

// tick runs on the store goroutine only, so ticks never overlap.
func (s *Store) tick(ctx context.Context, userID string) {
	var (
		spectator                peek.Spectator
		note                     peek.Note
		screen                   peek.Screen
		specErr, noteErr, scrErr error
	)

	// Each leg keeps its own error so one failure never discards another leg.
	var g errgroup.Group
	g.Go(func() error {
		spectator, specErr = absentAsEmpty(s.backend.DataPeek(ctx, userID))
		return nil
	})
	g.Go(func() error {
		note, noteErr = absentAsEmpty(s.backend.NotePeek(ctx, userID))
		return nil
	})
	g.Go(func() error {
		screen, scrErr = absentAsEmpty(s.backend.ScreenPeek(ctx, userID))
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return
	}
	if err := multierr.Combine(specErr, noteErr, scrErr); err != nil {
		s.log.Warn("poll leg failed, keeping last known data", zap.String("user", userID), zap.Error(err))
	}
	if specErr != nil && noteErr != nil && scrErr != nil {
		return
	}

	now := s.now()
	s.mu.Lock()
	rev := s.rev
	next := s.state
	if specErr == nil {
		next.Spectator = spectator
	}
	if noteErr == nil {
		next.Note = s.reconcileNoteLocked(next.Note, note, now)
	}
	if scrErr == nil {
		next.Screen = s.reconcileScreenLocked(next.Screen, screen, now)
	}
	s.mu.Unlock()

	shot := s.fetchScreenshot(ctx, userID, next.Screen)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != rev {
		// A local edit or clear landed mid-tick. The slot is left alone so
		// the published handle stays live; the next tick picks the change up.
		return
	}
	next.Screenshot = s.applyScreenshotLocked(userID, shot)
	s.publishLocked(next, now)
}

type shotAction int

const (
	shotKeep shotAction = iota
	shotEvict
	shotInstall
)

type shotResult struct {
	action shotAction
	blob   blob.Blob
}

// fetchScreenshot downloads the screenshot when the screen says one exists.
// It only decides what to do with the slot; the slot changes under s.mu.
func (s *Store) fetchScreenshot(ctx context.Context, userID string, screen peek.Screen) shotResult {
	if !screen.HasScreenshot() {
		return shotResult{action: shotEvict}
	}

	b, err := s.backend.Screenshot(ctx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return shotResult{action: shotKeep}
		}
		if api.IsNotFound(err) || s.cfg.Screenshot == PolicyClear {
			s.log.Debug("screenshot cleared after failed download", zap.String("user", userID), zap.Error(err))
			return shotResult{action: shotEvict}
		}
		s.log.Warn("screenshot download failed, keeping last good", zap.String("user", userID), zap.Error(err))
		return shotResult{action: shotKeep}
	}
	return shotResult{action: shotInstall, blob: b}
}

func (s *Store) applyScreenshotLocked(userID string, shot shotResult) blob.Handle {
	switch shot.action {
	case shotEvict:
		if s.slot.Clear() {
			s.log.Debug("screenshot evicted", zap.String("user", userID))
		}
		return ""
	case shotInstall:
		h, changed, err := s.slot.Set(shot.blob)
		if err != nil {
			return ""
		}
		if changed {
			s.log.Debug("screenshot replaced", zap.String("user", userID), zap.String("handle", string(h)))
		}
		return h
	default:
		return s.slot.Current()
	}
}

func (s *Store) reconcileNoteLocked(prev, server peek.Note, now time.Time) peek.Note {
	p := s.pendingNote
	if p == nil {
		return server
	}
	if server.Covers(p.edit) || now.After(p.until) {
		s.pendingNote = nil
		return server
	}
	return peek.MergeNote(prev, server)
}

func (s *Store) reconcileScreenLocked(prev, server peek.Screen, now time.Time) peek.Screen {
	p := s.pendingScreen
	if p == nil {
		return server
	}
	if server.Covers(p.edit) || now.After(p.until) {
		s.pendingScreen = nil
		return server
	}
	merged := peek.MergeScreen(prev, server)
	// Presence of a screenshot always follows the server.
	merged.ScreenshotPath = server.ScreenshotPath
	return merged
}

// publishLocked stores next as the current state and hands it to the
// subscriber. The channel holds only the newest snapshot.
func (s *Store) publishLocked(next Snapshot, now time.Time) {
	s.seq++
	next.Seq = s.seq
	next.At = now
	s.state = next

	if s.out == nil || s.stopped {
		return
	}
	select {
	case s.out <- next:
	default:
		select {
		case <-s.out:
		default:
		}
		s.out <- next
	}
}

func absentAsEmpty[T any](v T, err error) (T, error) {
	if err != nil && api.IsNotFound(err) {
		var zero T
		return zero, nil
	}
	return v, err
}
