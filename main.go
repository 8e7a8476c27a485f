package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"babylog/internal/bindings"
	"babylog/internal/cache"
	"babylog/internal/config"
	"babylog/internal/groups"
	"babylog/internal/handlers"
	"babylog/internal/logging"
	"babylog/internal/maintenance"
	"babylog/internal/scheduler"
	"babylog/internal/storage"
	"babylog/internal/utils"
)

func main() {
	cfg, err := config.Load()
	utils.Must(err)
	logger := logging.Setup(cfg.LogLevel)

	db, err := storage.New(cfg.DBPath,
		storage.WithQueryTimeout(cfg.QueryTimeout),
		storage.WithBackupTimeout(cfg.BackupTimeout),
	)
	utils.Must(err)
	defer db.Close()
	utils.Must(db.Ping(context.Background()))
	logger.Info("storage ready", "path", db.Path())

	viewCache := cache.New(cache.WithTTL(cfg.CacheTTL), cache.WithLogger(logger))
	svc := groups.NewService(db, viewCache,
		groups.WithLogger(logger),
		groups.WithDefaultHourOffset(cfg.DefaultHourOffset),
	)
	tracker := bindings.New(db, logger)
	sweeper := maintenance.New(db, cfg.BackupDir,
		maintenance.WithLogger(logger),
		maintenance.WithAfterPrune(viewCache.InvalidateAll),
	)

	sched, err := scheduler.Start(sweeper, cfg.SweepInterval, nil, logger)
	utils.Must(err)
	defer sched.Shutdown()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, logger)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	utils.Must(err)
	logger.Info("bot authorized", "username", bot.Self.UserName)

	h := handlers.NewHandler(bot, svc, tracker, sweeper, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := bot.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup
	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			wg.Wait()
			logger.Info("shutdown complete")
			return
		case upd, ok := <-updates:
			if !ok {
				wg.Wait()
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.HandleUpdate(upd)
			}()
		}
	}
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", "error", err)
	}
}
