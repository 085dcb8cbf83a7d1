package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/tumaini/tikiti/internal/adapters/crdb"
	mongoadapter "github.com/tumaini/tikiti/internal/adapters/mongo"
	redisadapter "github.com/tumaini/tikiti/internal/adapters/redis"
	"github.com/tumaini/tikiti/internal/booking"
	"github.com/tumaini/tikiti/internal/clock"
	"github.com/tumaini/tikiti/internal/config"
	"github.com/tumaini/tikiti/internal/gateway"
	httphandler "github.com/tumaini/tikiti/internal/http"
	"github.com/tumaini/tikiti/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger()
	clk := clock.NewSystem()

	pool, err := pgxpool.New(context.Background(), cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("tikiti")
	catalog := mongoadapter.NewCatalog(mongoDB, logger)
	audit := mongoadapter.NewAuditSink(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	idemp := redisadapter.NewIdempotency(redisClient, time.Hour)

	gw := gateway.NewClient(cfg, clk, logger)
	svc := booking.NewService(repo, catalog, audit, gw, clk, logger, cfg.ResendCooldown)

	handlers := httphandler.NewHandlers(svc, idemp, logger)
	router := httphandler.SetupRouter(handlers, logger, cache, cfg.JWTSecret)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
