package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"ms-registration/internal/api"
	"ms-registration/internal/config"
	"ms-registration/internal/database/migrations"
	"ms-registration/internal/events"
	"ms-registration/internal/gateway"
	"ms-registration/internal/logger"
	"ms-registration/internal/query"
	"ms-registration/internal/recon"
	reconkafka "ms-registration/internal/recon/kafka"
	reconredis "ms-registration/internal/recon/redis"
	"ms-registration/internal/review"
	"ms-registration/internal/ticketstore"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.NewLogger()
	defer log.Close()

	// --- PostgreSQL ---
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Username, cfg.Database.Password, cfg.Database.Database)
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to open Postgres connection: %v", err))
	}
	defer sqldb.Close()

	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := sqldb.Ping(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Failed to connect to Postgres: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())

	migrateOpts := migrations.DefaultOptions()
	migrateOpts.SeedData = os.Getenv("SEED_DATA") == "true"
	runner := migrations.NewRunner(bunDB, migrateOpts)
	if err := runner.Up(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}
	log.LogDatabase("MIGRATE", "postgres", "Schema is up to date")

	// --- Redis ---
	redisClient := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("REDIS", fmt.Sprintf("Failed to connect to Redis: %v", err))
	}

	// --- Payment gateway ---
	var gw gateway.Gateway
	switch cfg.Gateway.Provider {
	case "stripe":
		gw = gateway.NewStripeGateway(cfg.Gateway, log)
	default:
		gw = gateway.NewHostedClient(cfg.Gateway, log)
	}
	log.Info("GATEWAY", fmt.Sprintf("Using %q payment gateway", cfg.Gateway.Provider))

	// --- Kafka ---
	var publisher recon.Publisher
	if cfg.Kafka.Enabled {
		producer := reconkafka.NewProducer(cfg.Kafka, log)
		defer producer.Close()
		publisher = producer
	} else {
		log.Warn("KAFKA", "Kafka disabled, lifecycle events will not be published")
		publisher = reconkafka.NoopPublisher{}
	}

	// --- Core services ---
	store := ticketstore.New(bunDB)
	catalog := events.NewCatalog(bunDB)
	reviewQueue := review.NewQueue(bunDB)

	engine := recon.NewEngine(store, catalog, gw, reviewQueue, publisher, log, recon.Options{
		CheckoutTimeout: cfg.Sweep.CheckoutTimeout,
		RetryMax:        cfg.Gateway.RetryMax,
		RetryBackoff:    cfg.Gateway.RetryBackoff,
	})
	facade := query.NewFacade(store, catalog)
	handler := api.NewHandler(engine, facade, log)

	// --- Expiry sweeper ---
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	sweepLock := reconredis.NewLock(redisClient, cfg.Sweep.LockTTL)
	sweeper := recon.NewSweeper(engine, sweepLock, cfg.Sweep.Interval, log)
	go sweeper.Run(sweepCtx)

	// --- Router ---
	r := chi.NewRouter()
	r.Post("/api/v1/registrations", handler.Register)
	r.Post("/api/v1/tickets/{ticketId}/checkout", handler.StartCheckout)
	r.Post("/api/v1/tickets/{ticketId}/retry", handler.Retry)
	r.Post("/api/v1/payments/webhook", handler.Webhook)
	r.Get("/api/v1/tickets/{ticketId}", handler.Status)
	r.Get("/api/v1/tickets/{ticketId}/receipt", handler.Receipt)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("SERVER", fmt.Sprintf("Registration service listening on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("SERVER", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("SERVER", "Shutdown signal received, cleaning up")

	stopSweep()
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Fatal("SERVER", fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	log.Info("SERVER", "Server exited gracefully")
}
