package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/tcriess/bingo-chat/accounts"
	"github.com/tcriess/bingo-chat/api"
	"github.com/tcriess/bingo-chat/auth"
	"github.com/tcriess/bingo-chat/config"
	"github.com/tcriess/bingo-chat/directory"
	"github.com/tcriess/bingo-chat/globals"
	"github.com/tcriess/bingo-chat/messagelog"
	"github.com/tcriess/bingo-chat/persistence"
	"github.com/tcriess/bingo-chat/ws"
)

const shutdownTimeout = 10 * time.Second

var configPath = pflag.StringP("config", "c", "", "path to config file or directory")

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	cfg, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))

	if err := run(cfg); err != nil {
		globals.AppLogger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persister, err := persistence.NewGormPersister(cfg)
	if err != nil {
		return err
	}
	defer persister.Close()

	sessions, err := auth.NewSessionStore(cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	hubOptions := []ws.Option{ws.WithSessionStore(sessions)}
	if cfg.RedisConfig.URL != "" {
		relay, err := ws.NewRedisRelay(ctx, cfg.RedisConfig.URL, cfg.RedisConfig.Channel)
		if err != nil {
			return err
		}
		defer relay.Close()
		hubOptions = append(hubOptions, ws.WithRelay(relay))
		globals.AppLogger.Info("relaying deliveries through redis", "channel", cfg.RedisConfig.Channel)
	}
	hub := ws.NewHub(cfg.RealtimeConfig, hubOptions...)
	go func() {
		if err := hub.Run(ctx); err != nil {
			globals.AppLogger.Error("hub stopped", "error", err)
			stop()
		}
	}()

	server, err := api.NewServer(cfg, accounts.NewService(persister, sessions), directory.New(persister), messagelog.New(persister), sessions, hub)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPConfig.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			globals.AppLogger.Error("could not shut down http server", "error", err)
		}
	}()

	globals.AppLogger.Info("listening", "addr", cfg.HTTPConfig.Addr)
	if cfg.HTTPConfig.SSLCert != "" && cfg.HTTPConfig.SSLKey != "" {
		err = httpServer.ListenAndServeTLS(cfg.HTTPConfig.SSLCert, cfg.HTTPConfig.SSLKey)
	} else {
		err = httpServer.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		globals.AppLogger.Info("stopped listening")
		return nil
	}
	return err
}
