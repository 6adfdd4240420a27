package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"content-transformer/handler"
	"content-transformer/internal/app"
	"content-transformer/internal/config"
	"content-transformer/internal/repository"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.LogLevel, true)
	slog.SetDefault(logger)

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	var storeOpts []repository.Option
	if cfg.HistoryTTL > 0 {
		storeOpts = append(storeOpts, repository.WithTTL(cfg.HistoryTTL))
	}
	store, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.HistoryTable, storeOpts...)
	if err != nil {
		logger.Error("failed to create history store", "err", err)
		os.Exit(1)
	}

	svc, err := app.NewService(ctx, cfg, awsCfg, store, logger)
	if err != nil {
		logger.Error("failed to create transform service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(svc, handler.WithOwnerClaim(cfg.OwnerClaim), handler.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
