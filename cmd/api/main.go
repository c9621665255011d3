package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gke-notify/internal/application/event"
	"github.com/gke-notify/internal/application/notification"
	"github.com/gke-notify/internal/config"
	"github.com/gke-notify/internal/infrastructure/slack"
	"github.com/gke-notify/internal/infrastructure/sns"
	"github.com/gke-notify/internal/pkg/logger"
	transporthttp "github.com/gke-notify/internal/transport/http"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log := logger.New(logger.Options{Level: cfg.LogLevel, JSON: cfg.JSONLog})
	if envErr != nil {
		log.Debug().Msg("no .env file found, reading from environment")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	retry := slack.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Notify.MaxAttempts
	retry.InitialBackoff = cfg.Notify.Backoff
	retry.MaxBackoff = cfg.Notify.MaxBackoff

	notifier, err := slack.New(slack.Config{
		WebhookURL:   cfg.SlackWebhook,
		Timeout:      cfg.Notify.Timeout,
		TotalTimeout: cfg.Notify.TotalTimeout,
		Retry:        retry,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid chat webhook")
	}
	if notifier.Configured() {
		policy := notifier.Policy()
		log.Info().
			Str("webhook", slack.RedactURL(cfg.SlackWebhook)).
			Int("max_attempts", policy.MaxAttempts).
			Dur("initial_backoff", policy.InitialBackoff).
			Dur("budget", notifier.Budget()).
			Msg("chat delivery enabled")
	} else {
		log.Warn().Msg("SLACK_WEBHOOK not set, events will only be logged")
	}

	// SNS mirror (optional).
	var mirror sns.Publisher
	if cfg.SNSTopicARN != "" {
		if p, err := sns.NewPublisher(context.Background(), cfg); err == nil {
			mirror = p
			log.Info().Str("topic", cfg.SNSTopicARN).Msg("SNS mirror enabled")
		} else {
			log.Warn().Err(err).Msg("SNS mirror not available")
		}
	}

	svc := notification.NewService(event.NewParser(event.DefaultRegistry()), notifier, mirror, notification.Options{
		ProjectID:                cfg.GCPProject,
		SuppressNodePoolUpgrades: cfg.SuppressNodePoolUpgrades,
	}, log)

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Notifications: svc,
		Logger:        log,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.AppEnv).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
