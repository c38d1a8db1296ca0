package container

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"clicktrack/internal/config"
	"clicktrack/internal/domain"
	"clicktrack/internal/repository"
	"clicktrack/internal/service"
	"clicktrack/internal/service/auth"
	"clicktrack/pkg/database"
	"clicktrack/pkg/distlock"
	"clicktrack/pkg/httpretry"
	"clicktrack/pkg/logger"
	"clicktrack/pkg/migrations"
	"clicktrack/pkg/redis"
)

const hubLockTTL = 5 * time.Minute

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          *database.PostgresDB
	SQL         *sql.DB
	RedisClient *redis.Client
	Schema      repository.SchemaAdapter

	Repositories *repository.Repositories
	Services     *service.Services
	Tokens       *auth.TokenService
	Nonces       *auth.NonceService
	Sessions     *auth.SessionService
}

// New connects to PostgreSQL and Redis, settles the schema version and wires
// the services
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Container, error) {
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, cfg.DatabaseReadURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	schema, err := resolveSchema(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Initialize Redis client if Redis URL is configured
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
		if err != nil {
			log.WithError(err).Warn("Failed to initialize Redis client, using in-process rate limiting")
		} else {
			redisClient = client
			log.Info("Redis client initialized successfully")
		}
	} else {
		log.Info("Redis URL not configured, using in-process rate limiting")
	}

	c := Build(cfg, log, db.SQL(), db.ReadSQL(), redisClient, schema)
	c.DB = db
	return c, nil
}

// resolveSchema runs pending migrations when enabled and picks the storage
// adapter once. SCHEMA_VERSION wins over the recorded version.
func resolveSchema(cfg *config.Config, log *logger.Logger) (repository.SchemaAdapter, error) {
	if cfg.SchemaVersion > 0 && !cfg.AutoMigrate {
		log.WithField("schema_version", cfg.SchemaVersion).Info("Using configured schema version")
		return repository.SchemaForVersion(uint(cfg.SchemaVersion))
	}

	m, err := migrations.New(cfg.DatabaseURL, log)
	if err != nil {
		return repository.SchemaAdapter{}, err
	}
	defer m.Close()

	if cfg.AutoMigrate {
		if err := m.Up(); err != nil {
			return repository.SchemaAdapter{}, err
		}
	}

	version := uint(cfg.SchemaVersion)
	if version == 0 {
		v, dirty, err := m.Version()
		if err != nil {
			return repository.SchemaAdapter{}, err
		}
		if dirty {
			log.WithField("schema_version", v).Warn("Schema version is dirty")
		}
		version = v
	}

	schema, err := repository.SchemaForVersion(version)
	if err != nil {
		return repository.SchemaAdapter{}, err
	}
	log.WithFields(map[string]interface{}{
		"schema_version": version,
		"table":          schema.Table,
	}).Info("Schema adapter selected")
	return schema, nil
}

// Build wires repositories and services over open connections. redisClient
// may be nil.
func Build(cfg *config.Config, log *logger.Logger, db, readDB *sql.DB, redisClient *redis.Client, schema repository.SchemaAdapter) *Container {
	repos := &repository.Repositories{
		Clicks:   repository.NewClickRepository(db, readDB, schema),
		Settings: repository.NewSettingsRepository(db),
	}

	defaults := domain.Settings{
		DestinationPhone:  cfg.DestinationPhone,
		RatePerWindow:     cfg.RatePerWindow,
		RateWindowSeconds: cfg.RateWindowSeconds,
	}
	settings := service.NewSettingsService(repos.Settings, redisClient, defaults, log.Named("settings"))

	nonceSecret := cfg.NonceSecret
	if nonceSecret == "" {
		log.Warn("NONCE_SECRET not set, using an ephemeral secret for this process")
		nonceSecret = uuid.NewString()
	}
	nonces := auth.NewNonceService(nonceSecret, cfg.NonceTTL)

	counterStore := service.NewMemoryCounterStore()
	if redisClient != nil {
		counterStore = service.NewRedisCounterStore(redisClient)
	}

	services := &service.Services{
		Settings: settings,
		Query: service.NewQueryService(repos.Clicks, service.QueryLimits{
			DefaultPageSize: cfg.DefaultPageSize,
			MaxPageSize:     cfg.MaxPageSize,
			MaxLookbackDays: cfg.MaxLookbackDays,
		}, log.Named("query")),
		Ingest:  service.NewIngestService(repos.Clicks, settings, nonces, cfg.SiteURL, log.Named("ingest")),
		Limiter: service.NewRateLimiter(counterStore),
		Stats:   service.NewStatsService(repos.Clicks, redisClient, log.Named("stats")),
	}

	if cfg.HubEnabled() {
		services.Hub = newHubForwarder(cfg, log, db, redisClient, repos.Clicks)
	}

	return &Container{
		Config:       cfg,
		Logger:       log,
		SQL:          db,
		RedisClient:  redisClient,
		Schema:       schema,
		Repositories: repos,
		Services:     services,
		Tokens:       auth.NewTokenService(settings, settings, log.Named("token")),
		Nonces:       nonces,
		Sessions:     auth.NewSessionService(cfg.SessionSecret, log.Named("session")),
	}
}

func newHubForwarder(cfg *config.Config, log *logger.Logger, db *sql.DB, redisClient *redis.Client, clicks repository.ClickRepository) *service.HubForwarder {
	var lock distlock.Lock
	if redisClient != nil {
		lock = distlock.New(redisClient.Underlying(), db, redisClient.KeyBuilder.KeyLock("hub"), hubLockTTL)
	} else {
		lock = distlock.New(nil, db, redis.NewKeyBuilder(cfg.Environment).KeyLock("hub"), hubLockTTL)
	}

	return service.NewHubForwarder(clicks, lock, httpretry.NewRetryClient(nil, 3, log.Logger), service.HubConfig{
		Endpoint:       cfg.HubEndpoint,
		Host:           cfg.HubHost,
		Token:          cfg.HubToken,
		SiteURL:        cfg.SiteURL,
		ServiceVersion: cfg.ServiceVersion,
		Interval:       cfg.HubSyncInterval,
		BatchSize:      cfg.HubBatchSize,
	}, log)
}

// GetLogger returns the logger
func (c *Container) GetLogger() *logger.Logger {
	return c.Logger
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.Config
}

// GetRedisClient returns the Redis client (may be nil if not configured)
func (c *Container) GetRedisClient() *redis.Client {
	return c.RedisClient
}

// HasRedis returns true if Redis client is available
func (c *Container) HasRedis() bool {
	return c.RedisClient != nil
}

// Close releases connections. Background workers must be stopped first.
func (c *Container) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
