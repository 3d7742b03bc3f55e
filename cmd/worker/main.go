package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/license-notifications/internal/application/dispatch"
	"github.com/license-notifications/internal/application/workflow"
	"github.com/license-notifications/internal/config"
	"github.com/license-notifications/internal/infrastructure/dynamo"
	s3infra "github.com/license-notifications/internal/infrastructure/s3"
	"github.com/license-notifications/internal/infrastructure/smtp"
	"github.com/license-notifications/internal/infrastructure/sns"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg := config.Load()
	if cfg.AppEnv == "development" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})))
	} else {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		slog.Error("dynamodb client", "err", err)
		os.Exit(1)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	taskRepo := dynamo.NewTaskRepo(dynamoClient, cfg.DynamoTables.Tasks)

	deps := workflow.Deps{
		UserRepo:         dynamo.NewUserRepo(dynamoClient, cfg.DynamoTables.Users),
		NotificationRepo: dynamo.NewNotificationRepo(dynamoClient, cfg.DynamoTables.Notifications),
		Dispatcher:       dispatch.NewDispatcher(taskRepo),
		Mailer:           smtp.NewMailer(cfg),
	}

	// Admin alert topic and report archive are optional.
	if cfg.AdminTopicARN != "" {
		if p, err := sns.NewPublisher(ctx, cfg); err == nil {
			deps.Alerts = p
		} else {
			slog.Warn("SNS publisher not available", "err", err)
		}
	}
	if cfg.S3BucketName != "" {
		if c, err := s3infra.NewClient(ctx, cfg); err == nil {
			deps.Archive = s3infra.NewStore(c, cfg.S3BucketName)
		} else {
			slog.Warn("S3 archive not available", "err", err)
		}
	}

	worker := dispatch.NewWorker(taskRepo, dispatch.Options{
		Concurrency:  cfg.Worker.Concurrency,
		PollInterval: cfg.Worker.PollInterval,
		Lease:        cfg.Worker.Lease,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		Retention:    time.Duration(cfg.Worker.RetentionDays) * 24 * time.Hour,
	})
	workflow.New(deps).Register(worker)

	slog.Info("worker starting",
		"concurrency", cfg.Worker.Concurrency,
		"poll_interval", cfg.Worker.PollInterval,
		"alerts", deps.Alerts != nil,
		"archive", deps.Archive != nil)
	if err := worker.Run(ctx); err != nil {
		slog.Error("worker stopped", "err", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
