package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"topthat/internal/config"
	"topthat/internal/game"
	"topthat/internal/history"
	"topthat/internal/room"
	"topthat/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("load config")
	}
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec history.Recorder = history.Nop{}
	if cfg.RedisURL != "" {
		rr, err := history.NewRedisRecorder(ctx, cfg.RedisURL, cfg.HistoryKey, log)
		if err != nil {
			log.WithError(err).Warn("redis unavailable, action history disabled")
		} else {
			defer rr.Close()
			rec = rr
		}
	}

	hub := server.NewHub(log)
	rooms := room.New(room.Options{
		MaxPlayers:   cfg.MaxPlayers,
		Timing:       cfg.Timing,
		Outbox:       hub,
		Scheduler:    game.RealScheduler(),
		Recorder:     rec,
		Log:          log,
		Seed:         cfg.Seed,
		EmptyTimeout: cfg.EmptyTimeout,
		StaleTimeout: cfg.StaleTimeout,
	})
	go rooms.Run(ctx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.NewRouter(hub, rooms, rooms, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	rooms.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	hub.CloseAll()
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
