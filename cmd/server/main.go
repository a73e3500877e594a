package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/sensus-peek/internal/api"
	"github.com/DoyleJ11/sensus-peek/internal/blob"
	"github.com/DoyleJ11/sensus-peek/internal/command"
	"github.com/DoyleJ11/sensus-peek/internal/config"
	"github.com/DoyleJ11/sensus-peek/internal/httpapi"
	"github.com/DoyleJ11/sensus-peek/internal/hub"
	"github.com/DoyleJ11/sensus-peek/internal/journal"
	"github.com/DoyleJ11/sensus-peek/internal/logging"
	"github.com/DoyleJ11/sensus-peek/internal/screen"
	"github.com/DoyleJ11/sensus-peek/internal/session"
	"github.com/DoyleJ11/sensus-peek/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.APIBase)
	sessions, err := session.NewManager(session.NewFileStore(cfg.SessionFile), client)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	blobs := blob.NewRegistry()

	dispatcher := command.NewDispatcher(client, cfg.CommandTimeout, log.Named("command"))
	var recorder screen.Recorder
	var reader httpapi.JournalReader
	if cfg.JournalDSN != "" {
		j, err := journal.Open(cfg.JournalDSN, log.Named("journal"))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				log.Warn("journal close", zap.Error(err))
			}
		}()
		dispatcher.WithRecorder(j)
		recorder, reader = j, j
	}

	factory := func(ctx context.Context, userID string) (*screen.Screen, error) {
		src := store.New(client, blobs, cfg.Store, log.Named("store").With(zap.String("user_id", userID)))
		return screen.New(ctx, userID, cfg.Gesture, screen.Deps{
			Source:     src,
			Dispatcher: dispatcher,
			Recorder:   recorder,
			Log:        log.Named("screen"),
		})
	}
	// Stopped by ShutdownHub below, not by the signal context.
	h := hub.NewHub(context.Background(), factory, log.Named("hub"))

	if sess, ok := sessions.Current(); ok {
		if _, err := h.Ensure(ctx, sess.UserID); err != nil {
			log.Warn("resume session", zap.String("user_id", sess.UserID), zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:      h,
			Sessions: sessions,
			Admin:    client,
			Blobs:    blobs,
			Journal:  reader,
			Log:      log.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("api", cfg.APIBase))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)

		done := make(chan struct{})
		h.Inbox() <- hub.ShutdownHub{Done: done}
		select {
		case <-done:
		case <-shutdownCtx.Done():
		}
		dispatcher.Wait()
		log.Info("shut down")
		return err
	})
	return g.Wait()
}
