/**
 * @description
 * This is the main entry point for the settlement-service. It is responsible
 * for initializing all components of the service, including configuration, the
 * database connection, the message broker, the settlement ledger with its
 * configured banks, the HTLC sweep scheduler, and the HTTP server. It wires
 * everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/go-chi/chi/v5: For HTTP routing.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/joho/godotenv: Loads the local .env file.
 * - github.com/redis/go-redis/v9: Redis client for rate limiting.
 * - internal/api, internal/app, internal/config, internal/ledger, internal/store: Internal packages for the service.
 * - pkg/rabbitmq: Client for RabbitMQ.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/openclearing/settlement-service/internal/api"
	"github.com/openclearing/settlement-service/internal/app"
	"github.com/openclearing/settlement-service/internal/config"
	"github.com/openclearing/settlement-service/internal/domain"
	"github.com/openclearing/settlement-service/internal/ledger"
	"github.com/openclearing/settlement-service/internal/store"
	"github.com/openclearing/settlement-service/pkg/rabbitmq"
)

func main() {
	// Load the optional .env file before reading configuration.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found; using environment values\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"jwt secret must be configured\" env=JWT_SECRET")
	}
	banks, err := config.ParseBanks(cfg.Banks)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"bank declarations invalid\" err=%v", err)
	}
	if len(banks) == 0 {
		log.Fatalf("level=fatal component=bootstrap msg=\"at least one bank must be declared\" env=BANKS")
	}

	log.Printf("level=info component=bootstrap msg=\"starting settlement-service\" port=%s banks=%d", cfg.ServerPort, len(banks))

	// Establish a connection pool to the PostgreSQL database. The archive is
	// optional; without it, transfer history lives only in memory.
	var repository store.Repository
	var dbpool *pgxpool.Pool
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"database url missing; transfer archive disabled\" env=DATABASE_URL")
	} else {
		poolConfig, perr := pgxpool.ParseConfig(cfg.DatabaseURL)
		if perr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", perr)
		}
		poolConfig.MaxConns = 50
		poolConfig.MinConns = 5
		poolConfig.MaxConnLifetime = 30 * time.Minute
		poolConfig.MaxConnIdleTime = 5 * time.Minute
		poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

		dbpool, perr = pgxpool.NewWithConfig(context.Background(), poolConfig)
		if perr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", perr)
		}
		defer dbpool.Close()
		repository = store.NewPostgresRepository(dbpool)
		log.Println("level=info component=bootstrap msg=\"database connected\"")
	}

	// Initialize the RabbitMQ producer to publish ledger events.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Redis backs the distributed API rate limiter.
	var limiter *app.RedisRateLimiter
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; rate limiting disabled\" env=REDIS_URL")
	} else {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; rate limiting disabled\" err=%v", parseErr)
		} else {
			redisClient := redis.NewClient(redisOptions)
			pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelPing()
			if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis ping failed; rate limiting disabled\" err=%v", pingErr)
				redisClient.Close()
			} else {
				defer redisClient.Close()
				limiter = app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
				log.Println("level=info component=bootstrap msg=\"redis connected\"")
			}
		}
	}

	// The event fan-out journals ledger events and publishes them to the
	// broker; the ledger emits into it synchronously.
	fanout := app.NewEventFanout(repository, producer)
	defer fanout.Close()

	coreLedger := ledger.New(nil, fanout)
	for _, b := range banks {
		addr, rerr := coreLedger.RegisterBank(ledger.BankSpec{
			BIC:        b.BIC,
			BankCode:   b.BankCode,
			BranchCode: b.BranchCode,
			Currency:   b.Currency,
			Decimals:   b.Decimals,
			Operator:   domain.Identity(b.Operator),
		})
		if rerr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"bank registration failed\" bic=%s err=%v", b.BIC, rerr)
		}
		log.Printf("level=info component=bootstrap msg=\"bank registered\" bic=%s address=%s", b.BIC, addr)
	}

	settlementService := app.NewService(coreLedger, repository)

	// Background sweep of expired hash time locked payments.
	scheduler := app.NewScheduler(settlementService, cfg.HTLCSweepSchedule)
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	// Initialize the API handlers.
	settlementHandlers := api.NewSettlementHandlers(settlementService)

	// Set up the HTTP router and define the API routes.
	router := chi.NewRouter()
	router.Mount("/settlement", api.SettlementRoutes(settlementHandlers, cfg.JWTSecret, limiter, cfg.RateLimitPerMinute))

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
