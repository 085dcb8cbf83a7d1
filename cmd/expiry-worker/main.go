package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tumaini/tikiti/internal/adapters/crdb"
	mongoadapter "github.com/tumaini/tikiti/internal/adapters/mongo"
	"github.com/tumaini/tikiti/internal/booking"
	"github.com/tumaini/tikiti/internal/clock"
	"github.com/tumaini/tikiti/internal/config"
	"github.com/tumaini/tikiti/internal/gateway"
	"github.com/tumaini/tikiti/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// The expiry worker fails payment attempts stuck pending past the configured
// expiry, which releases the inventory their bookings still hold. It closes
// the window where a reservation exists but the push request never made it
// out.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

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

	gw := gateway.NewClient(cfg, clk, logger)
	svc := booking.NewService(repo, catalog, audit, gw, clk, logger, cfg.ResendCooldown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go run(ctx, svc, cfg.PaymentExpiry, logger)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")
}

func run(ctx context.Context, svc *booking.Service, expiry time.Duration, logger observability.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := svc.SweepStalePayments(ctx, expiry, 100)
			if err != nil {
				logger.Error("failed to sweep stale payments", err)
				continue
			}
			if swept > 0 {
				logger.WithField("count", swept).Info("swept stale pending payments")
			}
		}
	}
}
