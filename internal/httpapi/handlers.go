package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/sensus-peek/internal/api"
	"github.com/DoyleJ11/sensus-peek/internal/blob"
	"github.com/DoyleJ11/sensus-peek/internal/hub"
	"github.com/DoyleJ11/sensus-peek/internal/journal"
	"github.com/DoyleJ11/sensus-peek/internal/peek"
	"github.com/DoyleJ11/sensus-peek/internal/screen"
	"github.com/DoyleJ11/sensus-peek/internal/session"
)

type Sessions interface {
	Current() (session.Session, bool)
	Login(ctx context.Context, userID, password string) (session.Session, error)
	Logout() (string, error)
	ChangePassword(ctx context.Context, oldPassword, newPassword string) error
}

type Admin interface {
	CreateUser(ctx context.Context, adminKey, userID, password string) error
}

type JournalReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]journal.Entry, error)
}

type Deps struct {
	Hub      *hub.Hub
	Sessions Sessions
	Admin    Admin
	Blobs    *blob.Registry
	Journal  JournalReader // nil when no journal is configured
	Log      *zap.Logger
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func Login(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID   string `json:"user_id"`
			Password string `json:"password"`
		}
		if !decode(w, r, &body) {
			return
		}
		if strings.TrimSpace(body.UserID) == "" || body.Password == "" {
			writeError(w, http.StatusBadRequest, "user_id and password required")
			return
		}

		prev, hadPrev := d.Sessions.Current()
		sess, err := d.Sessions.Login(r.Context(), body.UserID, body.Password)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		if hadPrev && prev.UserID != sess.UserID {
			d.Hub.Inbox() <- hub.RemoveScreen{UserID: prev.UserID}
		}
		if _, err := d.Hub.Ensure(r.Context(), sess.UserID); err != nil {
			d.Log.Warn("screen start after login failed", zap.String("user_id", sess.UserID), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, map[string]string{"user_id": sess.UserID})
	}
}

func Logout(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := d.Sessions.Logout()
		if err != nil {
			d.Log.Warn("clearing session file failed", zap.Error(err))
		}
		if userID != "" {
			d.Hub.Inbox() <- hub.RemoveScreen{UserID: userID}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ChangePassword(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			OldPassword string `json:"old_password"`
			NewPassword string `json:"new_password"`
		}
		if !decode(w, r, &body) {
			return
		}
		if body.NewPassword == "" {
			writeError(w, http.StatusBadRequest, "new_password required")
			return
		}
		if err := d.Sessions.ChangePassword(r.Context(), body.OldPassword, body.NewPassword); err != nil {
			writeAPIError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Spectator(d Deps) http.HandlerFunc {
	return withScreen(d, func(w http.ResponseWriter, r *http.Request, scr *screen.Screen) {
		writeJSON(w, http.StatusOK, scr.Data().Latest().Spectator)
	})
}

// clearWith wraps one of the store's clear operations.
func clearWith(d Deps, op func(screen.Source) func(context.Context) error) http.HandlerFunc {
	return withScreen(d, func(w http.ResponseWriter, r *http.Request, scr *screen.Screen) {
		if err := op(scr.Data())(r.Context()); err != nil {
			writeAPIError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func ClearSpectator(d Deps) http.HandlerFunc {
	return clearWith(d, func(s screen.Source) func(context.Context) error { return s.ClearSpectator })
}

func ClearNote(d Deps) http.HandlerFunc {
	return clearWith(d, func(s screen.Source) func(context.Context) error { return s.ClearNote })
}

func ClearScreen(d Deps) http.HandlerFunc {
	return clearWith(d, func(s screen.Source) func(context.Context) error { return s.ClearScreen })
}

func Reset(d Deps) http.HandlerFunc {
	return clearWith(d, func(s screen.Source) func(context.Context) error { return s.ClearAll })
}

func EditNote(d Deps) http.HandlerFunc {
	return withScreen(d, func(w http.ResponseWriter, r *http.Request, scr *screen.Screen) {
		var note peek.Note
		if !decode(w, r, &note) {
			return
		}
		if err := scr.Data().EditNote(r.Context(), note); err != nil {
			writeAPIError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func EditScreen(d Deps) http.HandlerFunc {
	return withScreen(d, func(w http.ResponseWriter, r *http.Request, scr *screen.Screen) {
		var body struct {
			Contact *string `json:"contact"`
			URL     *string `json:"url"`
		}
		if !decode(w, r, &body) {
			return
		}
		if body.Contact == nil && body.URL == nil {
			writeError(w, http.StatusBadRequest, "contact or url required")
			return
		}
		if err := scr.Data().EditScreen(r.Context(), body.Contact, body.URL); err != nil {
			writeAPIError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func CreateUser(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AdminKey string `json:"admin_key"`
			UserID   string `json:"user_id"`
			Password string `json:"password"`
		}
		if !decode(w, r, &body) {
			return
		}
		if body.AdminKey == "" || body.UserID == "" || body.Password == "" {
			writeError(w, http.StatusBadRequest, "admin_key, user_id and password required")
			return
		}
		if err := d.Admin.CreateUser(r.Context(), body.AdminKey, body.UserID, body.Password); err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"user_id": body.UserID})
	}
}

func Blob(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, ok := d.Blobs.Get(blob.Handle(chi.URLParam(r, "handle")))
		if !ok {
			http.Error(w, "blob not found", http.StatusNotFound)
			return
		}
		ct := b.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
		_, _ = w.Write(b.Data)
	}
}

func Journal(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Journal == nil {
			writeError(w, http.StatusNotFound, "journal disabled")
			return
		}
		sess, ok := d.Sessions.Current()
		if !ok {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := d.Journal.Recent(r.Context(), sess.UserID, limit)
		if err != nil {
			d.Log.Warn("journal read failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "journal unavailable")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

// withScreen resolves the logged-in user's screen, starting it if needed.
func withScreen(d Deps, next func(http.ResponseWriter, *http.Request, *screen.Screen)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := d.Sessions.Current()
		if !ok {
			writeError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		scr, err := d.Hub.Ensure(r.Context(), sess.UserID)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, "screen unavailable")
			return
		}
		next(w, r, scr)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: msg})
}

// writeAPIError turns a backend or session error into the user-facing message.
func writeAPIError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, session.ErrNotLoggedIn):
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	case errors.Is(err, api.ErrIncorrectPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, api.ErrUserNotFound):
		status = http.StatusNotFound
	case api.StatusCode(err) >= 400 && api.StatusCode(err) < 500:
		status = api.StatusCode(err)
	}
	writeError(w, status, api.UserMessage(err))
}
