package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Yulya9904/cars-insurance/internal/adapters/cache"
	"github.com/Yulya9904/cars-insurance/internal/adapters/database"
	"github.com/Yulya9904/cars-insurance/internal/adapters/events"
	"github.com/Yulya9904/cars-insurance/internal/adapters/memory"
	"github.com/Yulya9904/cars-insurance/internal/adapters/storage"
	"github.com/Yulya9904/cars-insurance/internal/api/handlers"
	"github.com/Yulya9904/cars-insurance/internal/api/routes"
	"github.com/Yulya9904/cars-insurance/internal/application/services"
	"github.com/Yulya9904/cars-insurance/internal/domain/entities"
	"github.com/Yulya9904/cars-insurance/internal/domain/providers"
	"github.com/Yulya9904/cars-insurance/internal/domain/repositories"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/clients/postgres"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/clients/redis"
	"github.com/Yulya9904/cars-insurance/internal/infrastructure/observability"
	"github.com/Yulya9904/cars-insurance/pkg/config"
	"github.com/Yulya9904/cars-insurance/pkg/secrets"
)

func main() {
	vault, err := secrets.Apply(context.Background(), secrets.ConfigFromEnv(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load secrets from Vault: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.OTEL.ServiceName, cfg.Env)
	logger := observability.GetLogger()
	if vault.Enabled {
		logger.Info().Str("path", vault.Path).Int("loaded", vault.Loaded).Int("skipped", vault.Skipped).Msg("Secrets loaded from Vault")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize metrics")
	}

	health := map[string]handlers.Pinger{}

	// Redis is optional; without it reads go straight to the store and events
	// stay in process
	var cacheProvider providers.CacheProvider
	var eventBus providers.EventBus
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis unavailable, running without cache")
		} else {
			defer redisClient.Close()
			cacheProvider = cache.NewRedisAdapter(redisClient)
			eventBus = events.NewRedisEventBus(redisClient)
			health["redis"] = redisClient
			logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Redis client initialized")
		}
	}
	if eventBus == nil {
		eventBus = events.NewMemoryEventBus()
	}

	var (
		insuranceRepo repositories.InsuranceRepository
		vehicleRepo   repositories.VehicleRepository
		auditRepo     repositories.AuditLogRepository
	)
	switch cfg.Database.Driver {
	case "memory":
		store := memory.NewStore()
		seedDemoFleet(store)
		insuranceRepo, vehicleRepo, auditRepo = store, store.Vehicles(), store
		logger.Warn().Msg("Using the in-memory store, data is lost on restart")
	default:
		pgClient, err := postgres.NewClient(ctx, &cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
		}
		defer pgClient.Close()
		health["postgres"] = pgClient

		insuranceRepo = database.NewInsuranceAdapter(pgClient.X(), metrics)
		vehicleRepo = database.NewVehicleAdapter(pgClient.X(), metrics)
		auditRepo = database.NewAuditLogAdapter(pgClient.X())
		logger.Info().Str("host", cfg.Database.Host).Msg("PostgreSQL client initialized")
	}

	if cacheProvider != nil {
		insuranceRepo = database.NewCachedInsuranceAdapter(insuranceRepo, cacheProvider, metrics)
		vehicleRepo = database.NewCachedVehicleAdapter(vehicleRepo, cacheProvider, metrics)
		logger.Info().Msg("Repositories wrapped with caching layer")
	}

	attachments, err := newAttachmentProvider(ctx, &cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Storage.Backend).Msg("Failed to initialize attachment storage")
	}

	var cacheInvalidationService *services.CacheInvalidationService
	if cacheProvider != nil {
		cacheInvalidationService = services.NewCacheInvalidationService(cacheProvider, eventBus)
		if err := cacheInvalidationService.Start(); err != nil {
			logger.Warn().Err(err).Msg("Failed to start cache invalidation service")
			cacheInvalidationService = nil
		} else if err := cacheInvalidationService.InvalidateVehicles(ctx); err != nil {
			// Vehicles may have changed while the service was down
			logger.Warn().Err(err).Msg("Failed to drop cached vehicles")
		}
	}

	insuranceService := services.NewInsuranceService(insuranceRepo, vehicleRepo, auditRepo, attachments, eventBus, metrics)

	router := routes.NewRouter(
		handlers.NewInsuranceHandler(insuranceService),
		handlers.NewHealthHandler(health),
		cfg.Server.AllowedOrigins,
		metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", serverAddr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during server shutdown")
	}

	if cacheInvalidationService != nil {
		cacheInvalidationService.Stop()
	}
	if err := eventBus.Close(); err != nil {
		logger.Error().Err(err).Msg("Error closing event bus")
	}

	logger.Info().Msg("Server stopped")
}

func newAttachmentProvider(ctx context.Context, cfg *config.StorageConfig) (providers.AttachmentProvider, error) {
	switch cfg.Backend {
	case "s3":
		client, err := storage.NewS3Client(ctx, cfg.Region, cfg.EndpointURL)
		if err != nil {
			return nil, err
		}
		return storage.NewS3Provider(client, cfg.Bucket), nil
	default:
		local, err := storage.NewLocalProvider(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
}

// seedDemoFleet gives the in-memory store a few vehicles to insure
func seedDemoFleet(store *memory.Store) {
	north, south := int64(1), int64(2)
	store.AddDistrict(north, "North")
	store.AddDistrict(south, "South")
	store.AddVehicle(entities.Vehicle{ID: 1, Model: "Lada Vesta", StateNumber: "A123BC", HomeDistrictID: &north})
	store.AddVehicle(entities.Vehicle{ID: 2, Model: "Kia Rio", StateNumber: "B777OP", HomeDistrictID: &south})
	store.AddVehicle(entities.Vehicle{ID: 3, Model: "GAZelle Next", StateNumber: "K001MM"})
}
