package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/swipswaps/paddle-ocr/api/handlers"
	"github.com/swipswaps/paddle-ocr/api/routes"
	"github.com/swipswaps/paddle-ocr/config"
	"github.com/swipswaps/paddle-ocr/internal/backend"
	"github.com/swipswaps/paddle-ocr/internal/orchestrator"
	"github.com/swipswaps/paddle-ocr/internal/watchdog"
	"github.com/swipswaps/paddle-ocr/pkg/logger"
)

func main() {
	cfg := config.Load()

	log, err := logger.NewLogger(
		logger.WithLevel(cfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", cfg.LogPath}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	rules := watchdog.DefaultRules()
	if cfg.PatternFile != "" {
		rules, err = watchdog.LoadRules(cfg.PatternFile)
		if err != nil {
			log.Fatal("Failed to load pattern file", logger.Error(err))
		}
	}

	runner := orchestrator.New(orchestrator.Config{
		BackendURL:       cfg.BackendURL,
		StreamPath:       cfg.StreamPath,
		UploadTimeout:    cfg.UploadTimeout,
		WatchdogTick:     cfg.WatchdogTick,
		SilenceThreshold: cfg.SilenceThreshold,
		Rules:            rules,
	}, log)

	h := handlers.NewHandlers(runner, backend.NewClient(cfg.BackendURL), log)

	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Shell listening", logger.String("addr", cfg.ListenAddr), logger.String("backend", cfg.BackendURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down shell...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Shell stopped", logger.Error(err))
	}
}
