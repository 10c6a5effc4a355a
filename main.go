package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cowin-monitor/src/availability"
	"github.com/cowin-monitor/src/bot"
	"github.com/cowin-monitor/src/config"
	"github.com/cowin-monitor/src/coordinator"
	"github.com/cowin-monitor/src/logger"
	model "github.com/cowin-monitor/src/model"
	"github.com/cowin-monitor/src/scheduler"
	"github.com/cowin-monitor/src/selection"
)

func Hello(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "GOOD")
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: loading config: %v", err)
	}
	zlog, err := logger.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		log.Fatalf("main: building logger: %v", err)
	}
	defer zlog.Sync()

	client, err := model.NewClient(cfg.CowinBaseURL,
		model.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		model.WithLimiter(rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), cfg.RequestBurst)),
		model.WithLogger(zlog.Named("cowin")),
	)
	if err != nil {
		zlog.Fatal("main: building cowin client", zap.Error(err))
	}

	fetcher := availability.NewFetcher(client, zlog.Named("fetch"))
	aggregator := availability.NewAggregator(client, zlog.Named("projection"),
		availability.WithWorkers(cfg.WorkerPoolSize),
		availability.WithPolicy(cfg.Policy()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := selection.Open(ctx, cfg.SelectionOptions(), zlog.Named("selection"))
	if err != nil {
		zlog.Fatal("main: opening selection store", zap.Error(err))
	}
	defer store.Close()

	watcher := scheduler.NewWatcher(aggregator, zlog.Named("watch"))
	defer watcher.Stop()

	if cfg.TelegramToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			zlog.Fatal("main: connecting to telegram", zap.Error(err))
		}
		zlog.Info("authorized on telegram", zap.String("account", api.Self.UserName))

		b := bot.New(api, client, store, watcher, func() *coordinator.Coordinator {
			return coordinator.New(fetcher, aggregator, zlog.Named("coordinator"))
		}, zlog.Named("bot"))
		watcher.SetNotifier(b)
		if err := watcher.Start(cfg.WatchSchedule); err != nil {
			zlog.Fatal("main: starting watches", zap.Error(err))
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates, err := api.GetUpdatesChan(u)
		if err != nil {
			zlog.Fatal("main: receiving telegram updates", zap.Error(err))
		}
		go b.Run(ctx, updates)
	} else {
		zlog.Warn("TELEGRAM_TOKEN is not set, only the status endpoint is served")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", Hello)
	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: mux,
	}

	zlog.Info("starting server", zap.String("addr", srv.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("main: server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	zlog.Info("main: server is shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("main: server forced to shutdown", zap.Error(err))
		os.Exit(1)
	}
	zlog.Info("main: server stopped gracefully")
}
