package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/diarybot/internal/ai"
	"github.com/example/diarybot/internal/bot"
	"github.com/example/diarybot/internal/config"
	"github.com/example/diarybot/internal/conversation"
	"github.com/example/diarybot/internal/database"
	"github.com/example/diarybot/internal/logger"
	"github.com/example/diarybot/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLog.Sync()

	// Канал для сигналов завершения
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		appLog.Fatal("failed to connect to database", "driver", cfg.DatabaseDriver, "error", err)
	}
	defer db.Close()
	store := database.NewStore(db)

	var (
		states  conversation.StateStore
		sweeper scheduler.Sweeper
	)
	switch cfg.StateBackend {
	case "redis":
		redisStates, err := conversation.NewRedisStateStore(ctx, cfg.RedisAddr, cfg.StateTTL)
		if err != nil {
			appLog.Fatal("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		defer redisStates.Close()
		states = redisStates
	default:
		memoryStates := conversation.NewMemoryStateStore(cfg.StateTTL, time.Now)
		states = memoryStates
		sweeper = memoryStates
	}

	// Interfaces stay nil when AI is off
	var (
		dialogAI    conversation.Summarizer
		scheduledAI scheduler.Summarizer
	)
	if cfg.AIProvider != "none" {
		client, err := ai.New(ai.Options{
			Provider:     cfg.AIProvider,
			OpenAIKey:    cfg.OpenAIKey,
			AnthropicKey: cfg.AnthropicKey,
			Model:        cfg.AIModel,
			Timeout:      cfg.AITimeout,
		}, appLog)
		if err != nil {
			appLog.Fatal("failed to create AI client", "provider", cfg.AIProvider, "error", err)
		}
		dialogAI, scheduledAI = client, client
	} else {
		appLog.Info("AI features disabled")
	}

	machine := conversation.NewMachine(conversation.Options{
		Store:      store,
		States:     states,
		Summarizer: dialogAI,
		Logger:     appLog,
	})

	b, err := bot.New(cfg, machine, store, appLog)
	if err != nil {
		appLog.Fatal("failed to create bot", "error", err)
	}

	if cfg.SchedulerEnabled {
		s := scheduler.New(scheduler.Options{
			Store:         store,
			Notifier:      b,
			Summarizer:    scheduledAI,
			Sweeper:       sweeper,
			Logger:        appLog,
			NudgeHour:     cfg.NudgeHour,
			RetentionDays: cfg.RetentionDays,
		})
		if err := s.Start(ctx); err != nil {
			appLog.Fatal("failed to start scheduler", "error", err)
		}
		defer s.Stop()
		appLog.Info("scheduler started", "nudge_hour", cfg.NudgeHour, "retention_days", cfg.RetentionDays)
	}

	appLog.Info("bot started, press Ctrl+C to stop")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLog.Error("bot error", "error", err)
	}

	// Даем время на graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.Stop(shutdownCtx); err != nil {
		appLog.Error("error during shutdown", "error", err)
	}
	appLog.Info("bot stopped successfully")
}
