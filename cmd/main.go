// Package lenderapi provides the API to price loans and keep loan and savings ledgers.
package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-petr/pet-lender/cmd/httpserver"
	"github.com/go-petr/pet-lender/internal/eventbus"
	"github.com/go-petr/pet-lender/internal/middleware"
	"github.com/go-petr/pet-lender/internal/tracing"
	"github.com/go-petr/pet-lender/pkg/configpkg"
	"github.com/go-petr/pet-lender/pkg/dbpkg"

	_ "github.com/lib/pq"
)

func main() {
	config, err := configpkg.Load("./configs")
	if err != nil {
		log.Fatal().Err(err).Msg("cannot load config")
	}

	logger := middleware.CreateLogger(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithContext(ctx)

	shutdownTracing, err := tracing.Setup(ctx, config.OTELServiceName, config.OTELEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot set up tracing")
	}

	db := openDB(logger, config)
	publisher := newPublisher(logger, config)

	server, err := httpserver.New(db, logger, config, publisher)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot create server")
	}

	srv := &http.Server{
		Addr:              config.ServerAddress,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("cannot shut down server")
		}

		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("cannot flush traces")
		}
	}()

	logger.Info().Str("address", config.ServerAddress).Str("db_driver", config.DBDriver).Msg("LENDER API SERVER HAS STARTED")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("cannot start server")
	}
}

// openDB connects to and migrates the database. It returns nil with the memory driver.
func openDB(logger zerolog.Logger, config configpkg.Config) *sql.DB {
	if config.DBDriver == "memory" {
		logger.Warn().Msg("using in-memory store, state is lost on restart")
		return nil
	}

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		logger.Fatal().Err(err).Msg("cannot connect to database")
	}

	if err := dbpkg.Migrate(config.DBSource, config.MigrationsPath); err != nil {
		logger.Fatal().Err(err).Msg("cannot migrate database")
	}

	return db
}

// newPublisher streams events to Redis when it is configured and logs them otherwise.
func newPublisher(logger zerolog.Logger, config configpkg.Config) httpserver.Publisher {
	if config.RedisAddr == "" {
		return eventbus.LogPublisher{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	logger.Info().Str("addr", config.RedisAddr).Str("stream", config.EventStream).Msg("publishing events to redis")

	return eventbus.NewRedisPublisher(client, config.EventStream)
}
