package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jogardn/dtc-configurator/internal/auth"
	"github.com/jogardn/dtc-configurator/internal/cache"
	"github.com/jogardn/dtc-configurator/internal/catalog"
	"github.com/jogardn/dtc-configurator/internal/circuitbreaker"
	"github.com/jogardn/dtc-configurator/internal/config"
	"github.com/jogardn/dtc-configurator/internal/events"
	"github.com/jogardn/dtc-configurator/internal/metrics"
	"github.com/jogardn/dtc-configurator/internal/orders"
	"github.com/jogardn/dtc-configurator/internal/pricing"
	"github.com/jogardn/dtc-configurator/internal/server"
	"github.com/jogardn/dtc-configurator/internal/storage"
	"github.com/jogardn/dtc-configurator/internal/storage/memory"
	"github.com/jogardn/dtc-configurator/internal/storage/mongo"
	"github.com/jogardn/dtc-configurator/internal/storage/postgres"
	"github.com/jogardn/dtc-configurator/internal/websocket"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}
	logger.SetLevel(cfg.LogLevel)

	// Prices go over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open store")
	}
	defer store.Close()

	seeded, err := catalog.Seed(ctx, store, catalog.DefaultProducts())
	if err != nil {
		logger.WithError(err).Fatal("Failed to seed catalog")
	}
	logger.WithField("inserted", seeded).Info("Catalog seeded")

	m := metrics.New()
	c := cache.New(cfg.CacheTTL, time.Minute)
	defer c.Close()

	breakers := circuitbreaker.NewManager(logger, func(name string, from, to circuitbreaker.State) {
		m.BreakerState.WithLabelValues(name).Set(float64(to))
	})

	publisher := newPublisher(cfg, breakers, m, logger)
	defer publisher.Close()

	engine := pricing.NewEngine()
	authSvc := auth.NewService(store, auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL), cfg.IsAdminEmail, logger)
	catalogSvc := catalog.NewService(store, engine, c, m, logger)
	ordersSvc := orders.NewService(orders.Options{
		Store:          store,
		Products:       catalogSvc,
		Users:          store,
		Engine:         engine,
		Publisher:      publisher,
		Cache:          c,
		IdempotencyTTL: cfg.IdempotencyTTL,
		Metrics:        m,
		Logger:         logger,
	})

	hub := websocket.NewHub(catalogSvc, cfg.CORSOrigins, logger)
	go hub.Run(ctx)
	catalogSvc.OnChange(func(productID string, change catalog.ChangeType) {
		hub.ProductChanged(productID, string(change))
	})

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.NewHandler(server.Deps{
			Store:       store,
			StoreDriver: cfg.StorageDriver,
			Auth:        authSvc,
			Catalog:     catalogSvc,
			Orders:      ordersSvc,
			Hub:         hub,
			Breakers:    breakers,
			Metrics:     m,
			CORSOrigins: cfg.CORSOrigins,
			Logger:      logger,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port":    cfg.Port,
			"storage": cfg.StorageDriver,
		}).Info("Starting configurator API")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (storage.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		store, err := postgres.Open(postgres.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Name:     cfg.DBName,
			Timeout:  cfg.DBTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := store.WaitReady(ctx, 30, 2*time.Second); err != nil {
			store.Close()
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	case config.DriverMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDB, cfg.DBTimeout, logger)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil

	default:
		logger.Warn("Using in-memory storage; data is lost on restart")
		return memory.New(), nil
	}
}

func newPublisher(cfg *config.Config, breakers *circuitbreaker.Manager, m *metrics.Metrics, logger *logrus.Logger) events.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("KAFKA_BROKERS not set; order events are not published")
		return events.NopPublisher{}
	}

	breaker := breakers.GetOrCreate("kafka", circuitbreaker.Config{
		MaxFailures: 5,
		OpenTimeout: 30 * time.Second,
		TrialCalls:  1,
	})
	producer, err := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.OrderTopic, breaker, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Kafka producer; order events are not published")
		return events.NopPublisher{}
	}
	return producer
}
