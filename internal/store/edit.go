package store

import (
	"context"

	"github.com/DoyleJ11/sensus-peek/internal/api"
	"github.com/DoyleJ11/sensus-peek/internal/peek"
)

func (s *Store) user() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", ErrStopped
	}
	if !s.started {
		return "", ErrNotStarted
	}
	return s.userID, nil
}

// EditNote writes the note through to the backend and shows it right away.
// Until the server echoes it back, polls are merged with the sticky-field
// rule so a lagging empty field cannot wipe the edit.
func (s *Store) EditNote(ctx context.Context, edit peek.Note) error {
	userID, err := s.user()
	if err != nil {
		return err
	}
	if err := s.backend.UpdateNotePeek(ctx, userID, edit); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.rev++
	s.pendingNote = &pending[peek.Note]{edit: edit, until: now.Add(s.cfg.EditGrace)}
	next := s.state
	next.Note = peek.MergeNote(next.Note, edit)
	s.publishLocked(next, now)
	return nil
}

// EditScreen is EditNote for the text fields of the screen resource.
func (s *Store) EditScreen(ctx context.Context, contact, url *string) error {
	userID, err := s.user()
	if err != nil {
		return err
	}
	if err := s.backend.UpdateScreenPeek(ctx, userID, api.ScreenUpdate{Contact: contact, URL: url}); err != nil {
		return err
	}

	var edit peek.Screen
	if contact != nil {
		edit.Contact = *contact
	}
	if url != nil {
		edit.URL = *url
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.rev++
	s.pendingScreen = &pending[peek.Screen]{edit: edit, until: now.Add(s.cfg.EditGrace)}
	next := s.state
	next.Screen = peek.MergeScreen(next.Screen, edit)
	s.publishLocked(next, now)
	return nil
}

func (s *Store) ClearNote(ctx context.Context) error {
	return s.clear(ctx, s.backend.ClearNotePeek, func(next *Snapshot) {
		s.pendingNote = nil
		next.Note = peek.Note{}
	})
}

func (s *Store) ClearScreen(ctx context.Context) error {
	return s.clear(ctx, s.backend.ClearScreenPeek, func(next *Snapshot) {
		s.pendingScreen = nil
		next.Screen = peek.Screen{}
		s.slot.Clear()
		next.Screenshot = ""
	})
}

func (s *Store) ClearSpectator(ctx context.Context) error {
	return s.clear(ctx, s.backend.ClearDataPeek, func(next *Snapshot) {
		next.Spectator = peek.Spectator{}
	})
}

// ClearAll resets every resource for the user.
func (s *Store) ClearAll(ctx context.Context) error {
	return s.clear(ctx, s.backend.ClearAll, func(next *Snapshot) {
		s.pendingNote = nil
		s.pendingScreen = nil
		s.slot.Clear()
		*next = Snapshot{}
	})
}

func (s *Store) clear(ctx context.Context, call func(context.Context, string) error, apply func(*Snapshot)) error {
	userID, err := s.user()
	if err != nil {
		return err
	}
	if err := call(ctx, userID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	next := s.state
	apply(&next)
	s.publishLocked(next, s.now())
	return nil
}
