package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/sensus-peek/internal/ws"
)

func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))

	// Public routes
	r.Get("/healthz", Healthz)
	r.Post("/login", Login(d))
	r.Post("/admin/users", CreateUser(d))
	r.Get("/blobs/{handle}", Blob(d))

	// Session routes
	r.Post("/logout", Logout(d))
	r.Post("/password", ChangePassword(d))
	r.Get("/spectator", Spectator(d))
	r.Post("/spectator/clear", ClearSpectator(d))
	r.Post("/note", EditNote(d))
	r.Post("/note/clear", ClearNote(d))
	r.Post("/screen", EditScreen(d))
	r.Post("/screen/clear", ClearScreen(d))
	r.Post("/reset", Reset(d))
	r.Get("/journal", Journal(d))
	r.Get("/ws", ws.Handler(d.Hub, d.Sessions, d.Log))
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
