package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/aidmcn/container-futures-mvp/internal/command"
	"github.com/aidmcn/container-futures-mvp/internal/config"
	"github.com/aidmcn/container-futures-mvp/internal/dispatch"
	"github.com/aidmcn/container-futures-mvp/internal/feed"
	"github.com/aidmcn/container-futures-mvp/internal/server"
	"github.com/aidmcn/container-futures-mvp/internal/sound"
	"github.com/aidmcn/container-futures-mvp/internal/state"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)
	logger.Info("containerdesk starting",
		slog.Int("port", cfg.Port),
		slog.String("exchange_url", cfg.ExchangeURL),
		slog.Any("books", cfg.Books),
	)

	// Global scalars + per-book view models
	st := state.NewGlobal()
	disp := dispatch.New(st, cfg.DepthLevels, cfg.Books, cfg.ActivityLimit, logger)

	// Fill chime / hashed URL
	snd, err := sound.NewManager(cfg.SoundFile)
	if err != nil {
		logger.Warn("sound manager init", slog.String("err", err.Error()))
	}

	// Upstream interfaces: one shared subscription manager for the streamed
	// side, one request/response client for commands.
	mgr := feed.NewManager(cfg.ExchangeURL, disp, logger)
	cmd := command.NewClient(cfg.ExchangeURL, logger)

	srv := server.NewHTTPServer(cfg, st, disp, mgr, cmd, snd, logger)
	disp.SetOnChange(srv.HandleChange)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Open the configured books. A book the exchange does not serve yet is a
	// warning, not a startup failure; /api/watch can retry it later.
	handles := make([]*feed.Handle, 0, len(cfg.Books))
	for _, book := range cfg.Books {
		h, err := mgr.Subscribe(ctx, book)
		if err != nil {
			logger.Warn("subscribe failed", slog.String("book", book), slog.String("err", err.Error()))
			continue
		}
		handles = append(handles, h)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: srv.Router(),
	}

	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			cancel()
		}
		close(done)
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shCtx, shCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	for _, h := range handles {
		h.Close()
	}
	srv.CloseWatches()
	mgr.CloseAll()
	<-done
	logger.Info("bye")
}
