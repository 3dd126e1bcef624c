package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	charm "github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/gommon/log"

	"storyboard/pkg/config"
	"storyboard/pkg/inference"
	"storyboard/pkg/server"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer done()

	cfg, err := config.Load()
	if err != nil {
		charm.Fatal("invalid environment", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		charm.Fatal("invalid configuration", "error", err)
	}
	charm.SetLevel(cfg.Level())

	inf, err := inference.New(ctx, cfg.Settings())
	if err != nil {
		charm.Fatal("failed creating inferencer", "error", err)
	}
	charm.Info("inference ready", "provider", cfg.Settings().Provider, "model", cfg.Model, "mode", cfg.SplitMode, "workers", cfg.Workers)

	srv := server.NewServer(ctx, inf, cfg.Options(), cfg.OutputDir)
	srv.Echo.Logger.SetLevel(echoLevel(cfg.Level()))

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(err)
		}
		close(finishedShutDown)
	}()

	if err := srv.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err)
		os.Exit(1)
	}
	<-finishedShutDown
}

func echoLevel(level charm.Level) log.Lvl {
	switch {
	case level <= charm.DebugLevel:
		return log.DEBUG
	case level <= charm.InfoLevel:
		return log.INFO
	case level <= charm.WarnLevel:
		return log.WARN
	default:
		return log.ERROR
	}
}
