package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/typing-contest/internal/app"
	"github.com/iliyamo/typing-contest/internal/auth"
	"github.com/iliyamo/typing-contest/internal/config"
	"github.com/iliyamo/typing-contest/internal/database"
	"github.com/iliyamo/typing-contest/internal/docstore"
	"github.com/iliyamo/typing-contest/internal/docstore/firestore"
	"github.com/iliyamo/typing-contest/internal/docstore/memstore"
	"github.com/iliyamo/typing-contest/internal/docstore/sqlstore"
	"github.com/iliyamo/typing-contest/internal/handler"
	"github.com/iliyamo/typing-contest/internal/logger"
	"github.com/iliyamo/typing-contest/internal/middleware"
	"github.com/iliyamo/typing-contest/internal/queue"
	"github.com/iliyamo/typing-contest/internal/repository"
	"github.com/iliyamo/typing-contest/internal/router"
	queue_publisher "github.com/iliyamo/typing-contest/internal/service"
	"github.com/iliyamo/typing-contest/internal/textsource"
)

func main() {
	cfg := config.Load()
	log := logger.New(&logger.Config{Level: logger.Level(cfg.LogLevel), Output: os.Stdout, JSON: cfg.LogJSON})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Accounts and refresh tokens always live in MySQL.
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Error("open database failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(ctx, 30*time.Second)
	err = database.Migrate(migrateCtx, db, repository.Schema...)
	cancelMigrate()
	if err != nil {
		log.Error("migrate account tables failed", "error", err)
		os.Exit(1)
	}

	// Redis is optional: without it the rate limiter passes everything and
	// change notifications stay inside this process.
	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		log.Warn("redis unavailable; rate limiting disabled, change feed is process local")
	} else {
		defer rdb.Close()
	}

	store, closeStore, err := openStore(ctx, cfg, db, rdb, log)
	if err != nil {
		log.Error("open document store failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	paths := docstore.Paths{AppID: cfg.AppID}

	var gen textsource.Generator
	if cfg.AIAPIURL != "" {
		gen = textsource.NewHTTPGenerator(cfg.AIAPIURL, cfg.AIAPIKey, resty.New())
	} else {
		log.Warn("AI_API_URL not set; passages come from contest texts and the fetch service")
	}
	fetch := textsource.NewHTTPFetcher(cfg.TextFetchURL, cfg.TextFetchTimeout, resty.New())
	policy := textsource.NewPolicy(gen, fetch, textsource.WithModel(cfg.AIModel), textsource.WithLogger(log))

	authSvc := auth.NewService(auth.Settings{
		JWTSecret:      cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	}, repository.NewUserRepo(db), repository.NewTokenRepo(db), store, paths, log)

	deps := app.Deps{Store: store, Paths: paths, Text: policy, Log: log}
	if cfg.RabbitMQURL != "" {
		deps.Events = queue_publisher.New(cfg.RabbitMQURL, log)
		consumer := &queue.Consumer{URL: cfg.RabbitMQURL, Log: log}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("score consumer stopped", "error", err)
			}
		}()
	} else {
		log.Warn("RABBITMQ_URL not set; score events are not published")
	}

	checks := map[string]handler.Check{"mysql": db.PingContext}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e, handler.NewHealthHandler(checks))
	limit := middleware.NewBucket(config.LoadRateLimitConfig(), rdb, log)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc), cfg.JWTSecret, limit.Middleware())
	router.RegisterData(e, handler.NewDataHandler(store, paths, authSvc, log), cfg.JWTSecret)
	router.RegisterWS(e, handler.NewWSHandler(authSvc, deps, limit, log))

	addr := ":" + cfg.Port
	log.Info("listening", "addr", addr, "env", cfg.Env, "store", cfg.StoreBackend)

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

// openStore builds the document store selected by STORE_BACKEND.
func openStore(ctx context.Context, cfg config.Config, db *sql.DB, rdb *redis.Client, log logger.Logger) (docstore.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		st := memstore.New()
		st.Log = log
		return st, func() {}, nil
	case config.BackendFirestore:
		fs, err := firestore.Open(ctx, cfg.FirestoreProjectID, cfg.FirestoreCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return fs, func() { _ = fs.Close() }, nil
	default:
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := database.Migrate(migrateCtx, db, sqlstore.Schema); err != nil {
			return nil, nil, err
		}
		// Writes on one instance must wake live queries on every other.
		var notifier docstore.Notifier = docstore.NewLocalNotifier()
		if rdb != nil {
			notifier = docstore.NewRedisNotifier(rdb)
		}
		st := sqlstore.New(db, notifier)
		st.Log = log
		return st, func() {}, nil
	}
}
