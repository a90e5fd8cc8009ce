package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	bookingconsumer "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/consumer"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/handler"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/repository"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/internal/booking/service"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/broker"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/config"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/consumer"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/database"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/health"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/logger"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/middleware"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/outbox"
	pkgredis "github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/redis"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/retry"
	"github.com/hiennm11/Simple-Booking-Microservices-Project-sub001/pkg/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.Init(&logger.Config{
		ServiceName: "booking-service",
		Environment: cfg.App.Environment,
		Level:       cfg.App.LogLevel,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog.Info("Starting Booking Service...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.Init(ctx, &cfg.OTel, cfg.App.Environment)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer tel.Shutdown(context.Background())

	db, err := database.NewPostgres(ctx, &cfg.BookingDatabase, &database.Options{
		EnableTracing: cfg.OTel.Enabled,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	rdb, err := pkgredis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Redis connection failed: %v", err))
	}
	defer rdb.Close()
	appLog.Info("Redis connected")

	amqpBroker, err := broker.ConnectAMQP(ctx, &broker.AMQPConfig{
		URL: cfg.Rabbit.URL,
		ConnectRetry: &retry.Config{
			MaxRetries:      cfg.Rabbit.ConnectRetries - 1,
			InitialInterval: 2 * time.Second,
			MaxInterval:     60 * time.Second,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}, appLog)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("RabbitMQ connection failed: %v", err))
	}
	defer amqpBroker.Close()
	appLog.Info("RabbitMQ connected")

	// Outbox publisher.
	store := outbox.NewPostgresStore(db.Pool())
	publisher := outbox.NewPublisher(store, amqpBroker, &outbox.PublisherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		Backoff: &retry.Config{
			MaxRetries:      cfg.Outbox.BackoffRetries,
			InitialInterval: cfg.Outbox.BackoffBase,
			MaxInterval:     cfg.Outbox.BackoffCap,
			Multiplier:      2.0,
			JitterFactor:    0.1,
		},
	}, appLog)
	if err := publisher.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start outbox publisher: %v", err))
	}
	defer publisher.Stop()

	// Domain wiring.
	repo := repository.NewPostgresBookingRepository(db.Pool(), store)
	svc := service.NewBookingService(repo, publisher, appLog)

	// Event subscriptions.
	runtime := consumer.New(amqpBroker, consumer.NewPostgresLedger(db.Pool(), 2*cfg.Consumer.HandlerTimeout), &consumer.Config{
		MaxRequeue:     cfg.Consumer.MaxRequeue,
		HandlerTimeout: cfg.Consumer.HandlerTimeout,
		Prefetch:       cfg.Rabbit.Prefetch,
	}, appLog)
	if err := bookingconsumer.New(runtime, svc).Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start consumers: %v", err))
	}

	// HTTP ingress.
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Correlation())
	router.Use(middleware.Logger(appLog))

	health.NewHandler(db, rdb, store).RegisterRoutes(router)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Idempotency(rdb, "booking", 24*time.Hour))
	handler.NewBookingHandler(svc).RegisterRoutes(v1)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		appLog.Info(fmt.Sprintf("Booking Service listening on %s", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down...")

	// Stop taking HTTP traffic, then let in-flight handlers drain before
	// the deferred broker/publisher teardown runs.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error(fmt.Sprintf("Server forced to shutdown: %v", err))
	}
	cancel()

	appLog.Info("Booking Service exited gracefully")
}
