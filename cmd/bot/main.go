package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/xaenox/pairpost/internal/api"
	"github.com/xaenox/pairpost/internal/bot"
	"github.com/xaenox/pairpost/internal/metrics"
	"github.com/xaenox/pairpost/internal/storage"
	"github.com/xaenox/pairpost/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		zap.NewExample().Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize logger
	logger, _ := zap.NewProduction()
	if cfg.Log.Development {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.TokenStore
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		store, err = storage.NewPostgresStorage(ctx, dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	client := api.NewClient(&api.ClientConfig{
		BaseURL:           cfg.API.BaseURL,
		Timeout:           cfg.API.Timeout,
		TransportSettings: api.DefaultConfig.TransportSettings,
		Logger:            logger.Named("api"),
	})
	defer client.Close()

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, cfg.Telegram.Debug, client, store, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}
	defer b.Close()

	srv, err := metrics.Start(cfg.Metrics.Addr, b.Health, logger.Named("metrics"))
	if err != nil {
		logger.Fatal("Failed to start metrics server", zap.Error(err))
	}
	logger.Info("Metrics server listening", zap.String("addr", srv.Addr()))

	// Start the bot
	if err := b.Start(ctx); err != nil {
		logger.Error("Bot error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to stop metrics server", zap.Error(err))
	}
	logger.Info("Bot stopped")
}
