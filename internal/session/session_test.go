package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuth struct {
	password string
	changed  string
}

var errBadPassword = errors.New("incorrect password")

func (f *fakeAuth) Login(_ context.Context, _ string, password string) error {
	if password != f.password {
		return errBadPassword
	}
	return nil
}

func (f *fakeAuth) ChangePassword(_ context.Context, userID, oldPassword, newPassword string) error {
	if oldPassword != f.password {
		return errBadPassword
	}
	f.changed = userID + ":" + newPassword
	return nil
}

func TestFileStore_RoundTrip(t *testing.T) {
	fs := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.yaml"))

	id, err := fs.Load()
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, fs.Save("magician"))
	id, err = fs.Load()
	require.NoError(t, err)
	assert.Equal(t, "magician", id)

	require.NoError(t, fs.Clear())
	require.NoError(t, fs.Clear())
	id, _ = fs.Load()
	assert.Empty(t, id)
}

func TestManager_LoginPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	auth := &fakeAuth{password: "abracadabra"}

	m, err := NewManager(NewFileStore(path), auth)
	require.NoError(t, err)
	_, ok := m.Current()
	assert.False(t, ok)

	_, err = m.Login(context.Background(), "magician", "nope")
	assert.ErrorIs(t, err, errBadPassword)
	_, ok = m.Current()
	assert.False(t, ok, "failed login must not create a session")

	s, err := m.Login(context.Background(), " magician ", "abracadabra")
	require.NoError(t, err)
	assert.Equal(t, "magician", s.UserID)

	restarted, err := NewManager(NewFileStore(path), auth)
	require.NoError(t, err)
	s, ok = restarted.Current()
	require.True(t, ok)
	assert.Equal(t, "magician", s.UserID)

	prev, err := restarted.Logout()
	require.NoError(t, err)
	assert.Equal(t, "magician", prev)
	_, ok = restarted.Current()
	assert.False(t, ok)
}

func TestManager_ChangePasswordNeedsSession(t *testing.T) {
	auth := &fakeAuth{password: "old"}
	m, err := NewManager(NewFileStore(filepath.Join(t.TempDir(), "s.yaml")), auth)
	require.NoError(t, err)

	assert.ErrorIs(t, m.ChangePassword(context.Background(), "old", "new"), ErrNotLoggedIn)

	_, err = m.Login(context.Background(), "magician", "old")
	require.NoError(t, err)
	require.NoError(t, m.ChangePassword(context.Background(), "old", "new"))
	assert.Equal(t, "magician:new", auth.changed)
}
