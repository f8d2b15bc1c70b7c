package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ridestore/internal/config"
	handlers "ridestore/internal/handlers/shared"
	"ridestore/internal/middleware"
	"ridestore/internal/repositories/file"
	"ridestore/internal/repositories/interfaces"
	"ridestore/internal/repositories/mongodb"
	"ridestore/internal/services"
	"ridestore/internal/store"
	"ridestore/internal/utils"
	"ridestore/pkg/cache"
	"ridestore/pkg/database"
	"ridestore/pkg/events"
	"ridestore/pkg/logger"
	"ridestore/pkg/metrics"
	"ridestore/routes"

	"github.com/gin-gonic/gin"
)

func main() {
	migrateDown := flag.Int("migrate-down", -1, "roll MongoDB migrations back to this version and exit")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logCfg := &logger.Config{
		Level:   logger.LogLevel(cfg.App.LogLevel),
		Format:  cfg.App.LogFormat,
		Output:  "stdout",
		AppName: cfg.App.Name,
		Version: cfg.App.Version,
	}
	appLogger, err := logger.NewLogger(logCfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	auditCfg := *logCfg
	auditCfg.Output = cfg.App.AuditLogOutput
	auditLogger, err := logger.NewAuditLogger(&auditCfg)
	if err != nil {
		appLogger.Fatalf("Failed to create audit logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var healthChecks []routes.HealthCheck

	// Journal
	var mongo *database.MongoDB
	var journal interfaces.JournalRepository
	switch cfg.Store.JournalBackend {
	case utils.JournalFile:
		journal, err = file.NewJournalRepository(cfg.Store.JournalDir)
		if err != nil {
			appLogger.Fatalf("Failed to open journal: %v", err)
		}
	case utils.JournalMongoDB:
		mongo, err = database.NewMongoDB(&database.DatabaseConfig{
			URI:            cfg.Database.URI,
			Database:       cfg.Database.Database,
			MaxPoolSize:    cfg.Database.MaxPoolSize,
			MinPoolSize:    cfg.Database.MinPoolSize,
			ConnectTimeout: cfg.Database.ConnectTimeout,
			SocketTimeout:  cfg.Database.SocketTimeout,
		})
		if err != nil {
			appLogger.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		migrator := database.NewMigrator(mongo.Database, appLogger)
		if *migrateDown >= 0 {
			if err := migrator.Down(ctx, *migrateDown); err != nil {
				appLogger.Fatalf("Failed to roll back migrations: %v", err)
			}
			_ = mongo.Close()
			return
		}
		if cfg.Database.RunMigrations {
			if err := migrator.Up(ctx); err != nil {
				appLogger.Fatalf("Failed to run migrations: %v", err)
			}
		}
		journal = mongodb.NewJournalRepository(mongo.Database)
		healthChecks = append(healthChecks, routes.HealthCheck{Name: "mongodb", Check: mongo.Ping})
	}

	st, err := store.Open(ctx, store.Options{
		Journal:         journal,
		Logger:          appLogger.WithField("component", "store"),
		ConsistencyMode: cfg.Store.ConsistencyMode,
		SnapshotEvery:   cfg.Store.SnapshotEvery,
	})
	if err != nil {
		appLogger.Fatalf("Failed to open store: %v", err)
	}
	if journal != nil {
		healthChecks = append(healthChecks, routes.HealthCheck{
			Name:  "journal",
			Check: func(context.Context) error { return st.JournalErr() },
		})
	}

	// Commit events
	publisher, publisherCheck, err := newPublisher(cfg, appLogger)
	if err != nil {
		appLogger.Fatalf("Failed to create event publisher: %v", err)
	}
	if publisherCheck != nil {
		healthChecks = append(healthChecks, *publisherCheck)
	}

	m := metrics.New()
	txService := services.NewTransactionService(st, services.TransactionServiceOptions{
		Publisher: publisher,
		Metrics:   m,
		Logger:    appLogger.WithField("component", "transactions"),
		Audit:     auditLogger,
		IdleTTL:   cfg.Store.TxIdleTTL,
	})

	// Initialize handlers
	storeHandler := handlers.NewStoreHandler(txService)

	if cfg.IsProduction() || !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(appLogger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.CORSMiddleware(cfg.App.AllowedOrigins))

	// API routes
	v1 := router.Group("/api/v1")
	{
		routes.SetupStoreRoutes(v1, storeHandler)
	}
	routes.SetupHealthRoutes(router, cfg.App.Version, st.Seq, m, healthChecks...)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.ReadTimeout,
		WriteTimeout: cfg.App.WriteTimeout,
	}

	go func() {
		appLogger.Infof("Starting server on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Errorf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Server shutdown failed: %v", err)
	}
	if err := txService.Close(); err != nil {
		appLogger.Errorf("Failed to close transaction service: %v", err)
	}
	if journal != nil {
		if err := journal.Close(); err != nil {
			appLogger.Errorf("Failed to close journal: %v", err)
		}
	}
	if mongo != nil {
		if err := mongo.Close(); err != nil {
			appLogger.Errorf("Failed to close MongoDB: %v", err)
		}
	}
	appLogger.Info("Server stopped")
}

// newPublisher builds the configured commit event publisher and, for
// networked ones, a check for /health.
func newPublisher(cfg *config.Config, appLogger *logger.Logger) (events.Publisher, *routes.HealthCheck, error) {
	switch cfg.Events.Publisher {
	case utils.PublisherRedis:
		redisCache, err := cache.NewRedisCache(&cache.RedisConfig{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			RecentLimit:  cfg.Events.RecentLimit,
		})
		if err != nil {
			return nil, nil, err
		}
		check := &routes.HealthCheck{Name: "redis", Check: redisCache.Ping}
		return events.NewRedisPublisher(redisCache, cfg.Events.Channel), check, nil
	case utils.PublisherRabbitMQ:
		publisher, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			Host:     cfg.RabbitMQ.Host,
			Port:     cfg.RabbitMQ.Port,
			User:     cfg.RabbitMQ.User,
			Password: cfg.RabbitMQ.Password,
			VHost:    cfg.RabbitMQ.VHost,
			Exchange: cfg.Events.Exchange,
		}, appLogger)
		if err != nil {
			return nil, nil, err
		}
		check := &routes.HealthCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if !publisher.IsAlive() {
				return errors.New("connection closed")
			}
			return nil
		}}
		return publisher, check, nil
	default:
		return events.NewNopPublisher(), nil, nil
	}
}
