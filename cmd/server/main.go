package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"engagement-engine/internal/config"
	"engagement-engine/internal/constants"
	fxmodules "engagement-engine/internal/fx"
	"engagement-engine/internal/middleware"
	"engagement-engine/internal/notify"
	"engagement-engine/internal/server"
	"engagement-engine/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	progressionServer *server.ProgressionServer,
	adminServer *server.AdminServer,
	scheduler *service.RankingScheduler,
	publisher notify.Publisher,
	rdb *redis.Client,
	cfg *config.Config,
	db *sql.DB,
	logger zerolog.Logger,
) {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(logger)

	mount := func(path string, handler http.Handler) {
		wrapped := requestIDMiddleware(c.Handler(http.TimeoutHandler(handler, constants.RequestTimeout, "request timed out")))
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "*")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}

	mount(server.NewProgressionServiceHandler(progressionServer))
	mount(server.NewAdminServiceHandler(adminServer, cfg.AdminToken))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: mux,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := scheduler.Start(); err != nil {
				return err
			}
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			scheduler.Stop()

			err := srv.Shutdown(shutdownCtx)
			if err != nil {
				logger.Error().Err(err).Msg("server shutdown failed")
			}

			if cerr := publisher.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("error closing notifier")
			}
			if rdb != nil {
				if cerr := rdb.Close(); cerr != nil {
					logger.Warn().Err(cerr).Msg("error closing redis connection")
				}
			}
			if cerr := db.Close(); cerr != nil {
				logger.Warn().Err(cerr).Msg("error closing database connection")
			}

			if err != nil {
				return err
			}
			logger.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
