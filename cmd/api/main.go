package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Siddarth2230/tag-registry/internal/config"
	"github.com/Siddarth2230/tag-registry/internal/handler"
	"github.com/Siddarth2230/tag-registry/internal/middleware"
	"github.com/Siddarth2230/tag-registry/internal/repository"
	"github.com/Siddarth2230/tag-registry/internal/service"
	"github.com/Siddarth2230/tag-registry/pkg/cache"
	"github.com/Siddarth2230/tag-registry/pkg/idgen"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// ensure DB is reachable early
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}

	repo := repository.NewTagRepository(db)
	if cfg.Postgres.EnsureSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	defer func() {
		_ = redisClient.Close()
	}()

	// fail fast if Redis is down, the counter lives there
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	gen := idgen.NewCounterGenerator(redisClient, cfg.Redis.CounterKey)

	var l2 service.RemoteCache
	if cfg.Cache.TTL > 0 {
		l2 = cache.NewRedisCache(redisClient, cfg.Cache.Prefix, cfg.Cache.TTL)
	}

	svc := service.NewTagService(repo, gen, l2, cfg.Cache.Size, logger)
	handlers := handler.NewTagHandler(svc, logger)

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger), middleware.Metrics)
	handlers.Register(r)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "listen", cfg.Listen)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
