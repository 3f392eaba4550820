package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/snipapp/snip-server/config"
	db "github.com/snipapp/snip-server/internal/database"
	"github.com/snipapp/snip-server/internal/digest"
	"github.com/snipapp/snip-server/internal/metrics"
	"github.com/snipapp/snip-server/internal/repository"
	route "github.com/snipapp/snip-server/internal/routes"
	"github.com/snipapp/snip-server/internal/token"
	"github.com/snipapp/snip-server/internal/tracing"
)

func main() {
	logger := zap.Must(zap.NewProduction())
	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	secrets, err := config.LoadConfig()
	if err != nil {
		logger.Fatal(
			"error loading configuration",
			zap.Error(err),
		)
	}
	token.SetSecret(secrets.JWTSecret)

	shutdownTracer, err := tracing.InitTracer()
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer shutdownTracer(context.Background())
	}

	redisClient, err := db.NewRedisClient(secrets)
	if err != nil {
		logger.Fatal("redis failed to initialize",
			zap.Error(err),
		)
	}
	logger.Info("redis connection established")

	pgClient, err := db.NewPostgresClient(secrets)
	if err != nil {
		logger.Fatal("postgres failed to initialize",
			zap.Error(err),
		)
	}
	logger.Info("postgres connection established")

	metrics.StartSystemMetricsCollection()

	scanner := digest.NewScanner(
		repository.NewPostgresLinkRepository(pgClient, redisClient),
		repository.NewUserRepository(pgClient),
		digest.NewLogNotifier(),
		secrets.DigestInterval,
	)
	go scanner.Start(context.Background())

	r := route.SetupRouter(secrets, redisClient, pgClient)
	logger.Info("starting server", zap.String("port", secrets.Port))
	if err := r.Run(":" + secrets.Port); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
}
