package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"badger/bakery-api/internal/config"
	"badger/bakery-api/internal/handler"
	"badger/bakery-api/internal/repository"
	"badger/bakery-api/internal/service"
	"badger/bakery-api/internal/service/ratelimit"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"
)

func main() {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("server exiting")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Identity table
	f, err := os.Open(cfg.Identity.AssociationsPath)
	if err != nil {
		return fmt.Errorf("failed to open associations: %w", err)
	}
	associations, err := service.LoadAssociations(f)
	f.Close()
	if err != nil {
		return err
	}
	resolver := service.NewIdentityResolver(associations, cfg.Identity.OrgDomain)
	logger.Info("loaded identity associations", "count", resolver.Len())

	// 3. Setup Database
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	// 4. Rate limiting
	limiter, memory, closeLimiter, err := openLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// 5. Setup Logic
	catalog := service.NewCatalog(cfg.Catalog.PublicBaseURL)
	orders := service.NewOrderService(service.NewOrderValidator(catalog), store)

	h := handler.NewHandler(handler.Deps{
		Orders:    orders,
		Catalog:   catalog,
		Identity:  resolver,
		Limiter:   limiter,
		ImagesDir: cfg.Catalog.ImagesDir,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Run Server with Graceful Shutdown
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	if memory != nil {
		g.Go(func() error {
			return memory.RunJanitor(gctx, cfg.RateLimit.Window, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

type schemaApplier interface {
	ApplySchema(ctx context.Context, script string) error
}

// openStore connects the configured backend and runs the init script.
func openStore(ctx context.Context, cfg *config.Config) (service.OrderStore, func(), error) {
	var (
		store interface {
			service.OrderStore
			schemaApplier
		}
		closeFn func()
	)

	switch cfg.Database.Driver {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store, closeFn = repository.NewPostgresOrderRepository(pool), pool.Close

	case "sqlite", "mysql":
		dialect := repository.SQLite
		if cfg.Database.Driver == "mysql" {
			dialect = repository.MySQL
		}
		db, err := sql.Open(dialect.Name, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if dialect == repository.SQLite {
			db.SetMaxOpenConns(1)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to ping database: %w", err)
		}
		store, closeFn = repository.NewSQLOrderRepository(db, dialect), func() { db.Close() }

	default:
		return nil, nil, fmt.Errorf("unsupported driver %q", cfg.Database.Driver)
	}

	script, err := repository.LoadInitScript(cfg.Database.Driver, cfg.Database.InitSQLPath)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	if err := store.ApplySchema(ctx, script); err != nil {
		closeFn()
		return nil, nil, err
	}
	return store, closeFn, nil
}

// openLimiter returns the configured limiter. The memory limiter is also
// returned on its own so its janitor can be started.
func openLimiter(ctx context.Context, cfg *config.Config) (ratelimit.Limiter, *ratelimit.MemoryLimiter, func(), error) {
	rule := ratelimit.Rule{Requests: cfg.RateLimit.Requests, Window: cfg.RateLimit.Window}

	if cfg.RateLimit.Store == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		limiter, err := ratelimit.NewRedisLimiter(client, rule)
		if err != nil {
			client.Close()
			return nil, nil, nil, err
		}
		return limiter, nil, func() { client.Close() }, nil
	}

	memory, err := ratelimit.NewMemoryLimiter(rule)
	if err != nil {
		return nil, nil, nil, err
	}
	return memory, memory, func() {}, nil
}
