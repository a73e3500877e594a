package blob

import (
	"crypto/sha256"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrClosed = errors.New("blob slot closed")

// Handle names a live blob, the equivalent of a browser object URL.
type Handle string

const scheme = "blob:"

type Blob struct {
	Data        []byte
	ContentType string
}

// Registry holds every live blob so displays can fetch them by handle.
type Registry struct {
	mu    sync.RWMutex
	blobs map[Handle]Blob
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[Handle]Blob)}
}

func (r *Registry) Create(b Blob) Handle {
	h := Handle(scheme + uuid.NewString())
	r.mu.Lock()
	r.blobs[h] = b
	r.mu.Unlock()
	return h
}

// Revoke releases h. It reports false when h was not live.
func (r *Registry) Revoke(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[h]; !ok {
		return false
	}
	delete(r.blobs, h)
	return true
}

func (r *Registry) Get(h Handle) (Blob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[h]
	return b, ok
}

// Live returns the number of unrevoked handles.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// Slot owns at most one live handle. Replacing or clearing revokes the
// previous handle exactly once; Close revokes and refuses further use.
type Slot struct {
	mu     sync.Mutex
	reg    *Registry
	handle Handle
	sum    [sha256.Size]byte
	closed bool
}

func NewSlot(reg *Registry) *Slot {
	return &Slot{reg: reg}
}

// Set installs b unless it is byte-identical to the current blob. changed
// reports whether a new handle was issued.
func (s *Slot) Set(b Blob) (h Handle, changed bool, err error) {
	sum := sha256.Sum256(b.Data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	if s.handle != "" && s.sum == sum {
		return s.handle, false, nil
	}

	next := s.reg.Create(b)
	s.releaseLocked()
	s.handle = next
	s.sum = sum
	return next, true, nil
}

// Clear revokes the current handle. It reports whether one was live.
func (s *Slot) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked()
}

func (s *Slot) Current() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

func (s *Slot) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.releaseLocked()
	s.closed = true
}

func (s *Slot) releaseLocked() bool {
	if s.handle == "" {
		return false
	}
	s.reg.Revoke(s.handle)
	s.handle = ""
	s.sum = [sha256.Size]byte{}
	return true
}
