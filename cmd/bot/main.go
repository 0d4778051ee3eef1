package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/leoaide/premium-bot/internal/config"
	"github.com/leoaide/premium-bot/internal/premium"
	"github.com/leoaide/premium-bot/internal/storage"
	"github.com/leoaide/premium-bot/internal/telegram"
	"github.com/leoaide/premium-bot/internal/toncenter"
	"github.com/leoaide/premium-bot/internal/web"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	if cfg.BotToken == "" {
		log.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.DBPath)

	// Initialize TonCenter client
	ton := toncenter.NewClient(cfg.TonCenterBaseURL, cfg.TonCenterAPIKey)
	log.Info("toncenter client initialized", "base_url", cfg.TonCenterBaseURL)

	// Initialize telegram bot
	bot, err := telegram.New(cfg, store, ton, log)
	if err != nil {
		log.Error("init telegram bot", "error", err)
		os.Exit(1)
	}
	log.Info("telegram bot initialized")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start payment poller
	poller := premium.NewPoller(cfg, store, ton, bot, log)
	go poller.Start(ctx, cfg.PollInterval)

	// Start expiry notices
	expiry := premium.NewExpiryNotifier(store, bot, log)
	go expiry.Start(ctx, 24*time.Hour)

	// Start web server
	webServer := web.NewServer(store, log)
	go func() {
		if err := webServer.Start(ctx, cfg.WebPort); err != nil && err != http.ErrServerClosed {
			log.Error("web server", "error", err)
		}
	}()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start bot polling
	log.Info("starting bot polling...")
	bot.Start(ctx)
}
