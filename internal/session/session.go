package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrNotLoggedIn = errors.New("not logged in")

// Session identifies the performer. It carries no token; the backend only
// knows user ids.
type Session struct {
	UserID string
}

// Persister keeps the user id across restarts.
type Persister interface {
	Load() (string, error)
	Save(userID string) error
	Clear() error
}

type Authenticator interface {
	Login(ctx context.Context, userID, password string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
}

type fileContents struct {
	UserID string `yaml:"sensus_user_id"`
}

// FileStore persists the user id in a small YAML file.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

func (f *FileStore) Load() (string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var c fileContents
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return "", err
	}
	return strings.TrimSpace(c.UserID), nil
}

func (f *FileStore) Save(userID string) error {
	raw, err := yaml.Marshal(fileContents{UserID: userID})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(f.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Manager is the explicit replacement for a global auth context: it is
// built once and handed to whoever needs the current user.
type Manager struct {
	store Persister
	auth  Authenticator

	mu      sync.RWMutex
	current string
}

// NewManager restores a persisted session if there is one.
func NewManager(store Persister, auth Authenticator) (*Manager, error) {
	id, err := store.Load()
	if err != nil {
		return nil, err
	}
	return &Manager{store: store, auth: auth, current: id}, nil
}

func (m *Manager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == "" {
		return Session{}, false
	}
	return Session{UserID: m.current}, true
}

func (m *Manager) Login(ctx context.Context, userID, password string) (Session, error) {
	userID = strings.TrimSpace(userID)
	if err := m.auth.Login(ctx, userID, password); err != nil {
		return Session{}, err
	}
	if err := m.store.Save(userID); err != nil {
		return Session{}, err
	}

	m.mu.Lock()
	m.current = userID
	m.mu.Unlock()
	return Session{UserID: userID}, nil
}

// Logout forgets the session. It returns the user that was logged in.
func (m *Manager) Logout() (string, error) {
	m.mu.Lock()
	prev := m.current
	m.current = ""
	m.mu.Unlock()
	return prev, m.store.Clear()
}

func (m *Manager) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	s, ok := m.Current()
	if !ok {
		return ErrNotLoggedIn
	}
	return m.auth.ChangePassword(ctx, s.UserID, oldPassword, newPassword)
}
