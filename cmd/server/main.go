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
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilora/veil-oracle-go/internal/api"
	"github.com/veilora/veil-oracle-go/internal/cache"
	"github.com/veilora/veil-oracle-go/internal/config"
	"github.com/veilora/veil-oracle-go/internal/database"
	"github.com/veilora/veil-oracle-go/internal/logging"
	"github.com/veilora/veil-oracle-go/internal/middleware"
	"github.com/veilora/veil-oracle-go/internal/models"
	"github.com/veilora/veil-oracle-go/internal/privacy"
	"github.com/veilora/veil-oracle-go/internal/services"
	"github.com/veilora/veil-oracle-go/internal/telemetry"
)

func main() {
	// Load .env if present; real environments configure via the process env.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.Environment)
	logger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"feeds":       len(cfg.Oracle.Feeds),
	}).Info("Starting veil-oracle")

	ctx := context.Background()

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		SampleRate:   cfg.Telemetry.SampleRate,
	})
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Telemetry shutdown failed")
		}
	}()

	// Optional Postgres, used only for the audit archive.
	var db *database.PostgresDB
	var archiver services.AuditArchiver
	if cfg.Database.Enabled {
		db, err = database.NewPostgresConnection(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()

		if cfg.Audit.ArchiveEnabled {
			if err := db.EnsureAuditSchema(ctx); err != nil {
				log.Fatalf("Failed to prepare audit schema: %v", err)
			}
			archiver = services.NewPostgresAuditArchiver(db.Pool, logger)
		}
	}

	// Optional Redis, shares the consensus cache across replicas.
	sourceTimeout, retryDelay, cacheTTL := cfg.Oracle.Durations()
	var redisClient *database.RedisClient
	var consensusCache cache.ConsensusCache
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisConnection(cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		consensusCache = cache.NewRedisConsensusCache(redisClient.Client, cacheTTL, logger)
	} else {
		consensusCache = cache.NewMemoryConsensusCache(cacheTTL)
	}

	collector := services.NewObservationCollector(buildSources(cfg.Oracle.Feeds, logger), services.CollectorConfig{
		SourceTimeout:      sourceTimeout,
		MaxRetries:         cfg.Oracle.MaxRetries,
		RetryInitialDelay:  retryDelay,
		RetryBackoffFactor: cfg.Oracle.RetryBackoffFactor,
	}, logger)
	aggregator := services.NewAggregationEngine(services.AggregationConfig{
		OutlierThresholdBps: cfg.Oracle.OutlierThresholdBps,
		MinSources:          cfg.Oracle.MinSources,
		Weighting:           cfg.Oracle.Weighting,
		SourcePriorities:    collector.SourcePriorities(),
	}, logger)
	validator := services.NewConsensusValidator(cfg.Oracle.MinSources, logger)
	oracleService := services.NewOracleService(collector, aggregator, validator, consensusCache, cfg.Oracle.Feeds, logger)

	prover, err := privacy.NewRangeProver(logger)
	if err != nil {
		log.Fatalf("Failed to set up range prover: %v", err)
	}
	keys, err := privacy.GenerateKeyPair()
	if err != nil {
		log.Fatalf("Failed to generate encryption keys: %v", err)
	}
	logger.WithField("public_key", keys.PublicKeyHex()).Info("Oracle encryption key ready")

	auditService := services.NewAuditService(cfg.Audit.MaxEntries, archiver, logger)
	proofTimeout, replayWindow := cfg.Privacy.Durations()
	privacyService := services.NewPrivacyService(oracleService, prover, keys, auditService, services.PrivacyServiceConfig{
		PriceRangeMarginPercent: cfg.Privacy.PriceRangeMarginPercent,
		ProofTimeout:            proofTimeout,
		NonceReplayWindow:       replayWindow,
		DisableRangeWidening:    cfg.Privacy.DisableRangeWidening,
	}, logger)

	jwtSecret := cfg.Security.JWTSecret
	if jwtSecret == "" {
		// Only reachable in development; Load rejects this elsewhere.
		jwtSecret = "dev-secret-do-not-use-in-production"
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Telemetry.Enabled {
		router.Use(telemetry.Middleware())
	}

	api.SetupRoutes(router, api.Dependencies{
		Oracle:  oracleService,
		Privacy: privacyService,
		DB:      db,
		Redis:   redisClient,
		Auth:    middleware.NewAuthMiddleware(jwtSecret),
		Logger:  logger,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exited")
}

// buildSources wires the observation backends. Until network-backed sources
// are configured this runs the simulation backend seeded from each feed's
// reference price, which keeps the full pipeline exercisable end to end.
func buildSources(feeds []models.FeedConfig, logger *logrus.Logger) []services.ObservationSource {
	basePrices := make(map[string]decimal.Decimal, len(feeds))
	for _, feed := range feeds {
		reference := feed.ReferencePrice
		if reference == "" {
			reference = "100"
		}
		price, err := decimal.NewFromString(reference)
		if err != nil {
			logger.WithField("feed_id", feed.FeedID).Warn("Invalid reference price, defaulting to 100")
			price = decimal.NewFromInt(100)
		}
		basePrices[feed.FeedID] = price
	}

	return []services.ObservationSource{
		services.NewSimulatedSource("sim-primary", 3, basePrices, 15, 95),
		services.NewSimulatedSource("sim-secondary", 2, basePrices, 25, 92),
		services.NewSimulatedSource("sim-tertiary", 1, basePrices, 40, 88),
	}
}
