// Command local serves the transformer over plain HTTP for development.
// History goes to SQLite unless HISTORY_TABLE names a DynamoDB table.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"content-transformer/handler"
	"content-transformer/internal/app"
	"content-transformer/internal/auth"
	"content-transformer/internal/config"
	"content-transformer/internal/localserver"
	"content-transformer/internal/repository"
	"content-transformer/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		slog.Error("local server failed", "err", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	envFile, err := config.LoadDotEnv()
	if err != nil {
		return err
	}
	cfg, err := config.LoadLocal()
	if err != nil {
		return err
	}
	logger := config.NewLogger(cfg.LogLevel, false)
	slog.SetDefault(logger)
	if envFile != "" {
		logger.Info("loaded environment file", "path", envFile)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return err
	}

	var store usecase.HistoryStore
	if cfg.HistoryTable != "" {
		var opts []repository.Option
		if cfg.HistoryTTL > 0 {
			opts = append(opts, repository.WithTTL(cfg.HistoryTTL))
		}
		store, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.HistoryTable, opts...)
		if err != nil {
			return err
		}
		logger.Info("history in DynamoDB", "table", cfg.HistoryTable)
	} else {
		sqliteStore, err := repository.NewSQLiteStore(ctx, cfg.DatabasePath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		store = sqliteStore
		logger.Info("history in SQLite", "path", cfg.DatabasePath)
	}

	svc, err := app.NewService(ctx, cfg, awsCfg, store, logger)
	if err != nil {
		return err
	}
	h, err := handler.NewHandler(svc, handler.WithOwnerClaim(cfg.OwnerClaim), handler.WithLogger(logger))
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer), auth.WithAudience(cfg.JWTAudience))
	if err != nil {
		return err
	}
	srv, err := localserver.New(h, verifier, localserver.WithAddr(cfg.ListenAddr), localserver.WithLogger(logger))
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}
