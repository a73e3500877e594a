// Package journal keeps a per-show log of reveals and commands so a
// performance can be reviewed afterwards. Writes are queued and never block
// the peek screen; a full queue drops entries.
package journal

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/sensus-peek/internal/command"
	"github.com/DoyleJ11/sensus-peek/internal/hero"
)

var ErrClosed = errors.New("journal closed")

type Kind string

const (
	KindReveal   Kind = "reveal"
	KindCommand  Kind = "command"
	KindNavigate Kind = "navigate"
)

type Entry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Kind      Kind      `gorm:"not null" json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	OK        bool      `json:"ok"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (Entry) TableName() string { return "peek_journal" }

type writer interface {
	write(ctx context.Context, batch []Entry) error
	recent(ctx context.Context, userID string, limit int) ([]Entry, error)
	close() error
}

type Journal struct {
	w     writer
	log   *zap.Logger
	queue chan Entry
	done  chan struct{}
	now   func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open connects to Postgres and migrates the journal table.
func Open(dsn string, log *zap.Logger) (*Journal, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, err
	}
	return newJournal(&gormWriter{db: db}, log, 256), nil
}

func newJournal(w writer, log *zap.Logger, size int) *Journal {
	j := &Journal{
		w:     w,
		log:   log,
		queue: make(chan Entry, size),
		done:  make(chan struct{}),
		now:   time.Now,
	}
	go j.loop()
	return j
}

func (j *Journal) loop() {
	defer close(j.done)
	for e := range j.queue {
		batch := []Entry{e}
	drain:
		for len(batch) < 64 {
			select {
			case more, ok := <-j.queue:
				if !ok {
					break drain
				}
				batch = append(batch, more)
			default:
				break drain
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := j.w.write(ctx, batch); err != nil {
			j.log.Warn("journal write failed", zap.Int("entries", len(batch)), zap.Error(err))
		}
		cancel()
	}
}

// Record queues e. It never blocks.
func (j *Journal) Record(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = j.now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}
	select {
	case j.queue <- e:
	default:
		j.log.Warn("journal queue full, entry dropped", zap.String("kind", string(e.Kind)))
	}
}

func (j *Journal) RecordCommand(_ context.Context, userID string, cmd command.Command, sendErr error) {
	j.Record(Entry{UserID: userID, Kind: KindCommand, Detail: string(cmd), OK: sendErr == nil})
}

func (j *Journal) RecordReveal(userID string, h hero.Hero) {
	j.Record(Entry{UserID: userID, Kind: KindReveal, Detail: string(h.Kind), OK: h.Kind != hero.KindNone})
}

func (j *Journal) RecordNavigate(userID string) {
	j.Record(Entry{UserID: userID, Kind: KindNavigate, OK: true})
}

func (j *Journal) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return j.w.recent(ctx, userID, limit)
}

// Close flushes queued entries and closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	j.closed = true
	close(j.queue)
	j.mu.Unlock()

	<-j.done
	return j.w.close()
}

type gormWriter struct {
	db *gorm.DB
}

func (g *gormWriter) write(ctx context.Context, batch []Entry) error {
	return g.db.WithContext(ctx).Create(&batch).Error
}

func (g *gormWriter) recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	var out []Entry
	err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (g *gormWriter) close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
