// Package app assembles the service. Construction is explicit: every
// dependency is built here and handed to its consumers, so the wiring is
// readable top to bottom and trivially replaceable in tests.
package app

import (
	"context"
	"database/sql"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead-relay/internal/auth"
	"lead-relay/internal/common/errors"
	"lead-relay/internal/common/logging"
	"lead-relay/internal/config"
	"lead-relay/internal/crm"
	"lead-relay/internal/crypto"
	"lead-relay/internal/database"
	"lead-relay/internal/handlers"
	"lead-relay/internal/oauth"
	"lead-relay/internal/server"
)

// App holds the assembled service and the resources it must close.
type App struct {
	cfg     *config.Config
	logger  logging.Logger
	manager *oauth.Manager
	server  *server.Server

	sqlDB     *sql.DB
	pgPool    *pgxpool.Pool
	redisClnt *goredis.Client
}

// New builds the full dependency graph from configuration.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	a := &App{cfg: cfg, logger: logger}

	var cipher *crypto.TokenCipher
	if cfg.EncryptionKey != "" {
		var err error
		cipher, err = crypto.NewTokenCipher(cfg.EncryptionKey)
		if err != nil {
			a.Close()
			return nil, errors.ConfigError("failed to initialize token cipher: " + err.Error())
		}
	}

	store, err := a.buildStore(ctx, cipher)
	if err != nil {
		a.Close()
		return nil, err
	}

	breaker := oauth.NewTokenEndpointBreaker(logger)

	acquirer, err := oauth.NewAcquirer(cfg.OAuth, store, breaker, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	manager, err := oauth.NewManager(cfg.OAuth, store, breaker, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.manager = manager

	crmClient := crm.NewClient(manager, logger)

	var adminAuth *auth.Auth
	if cfg.AdminEnabled() {
		adminAuth, err = auth.New(cfg.AdminSecret, cfg.AdminUsername, cfg.AdminPassword, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	h := handlers.New(acquirer, manager, crmClient, adminAuth, logger)
	a.server = server.New(h.Routes(), cfg.Port, cfg.TLSCert, cfg.TLSKey)

	return a, nil
}

// buildStore constructs the credential store selected by STORE_BACKEND.
func (a *App) buildStore(ctx context.Context, cipher *crypto.TokenCipher) (oauth.CredentialStore, error) {
	switch a.cfg.StoreBackend {
	case config.StoreSQLite:
		db, err := database.Open(a.cfg.DBPath)
		if err != nil {
			return nil, errors.StorageError("failed to open sqlite database", err)
		}
		a.sqlDB = db
		return oauth.NewSQLiteCredentialStore(db, cipher)

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, a.cfg.PostgresURL)
		if err != nil {
			return nil, errors.StorageError("failed to connect to postgres", err)
		}
		a.pgPool = pool
		return oauth.NewPostgresCredentialStore(ctx, pool, cipher)

	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPassword,
			DB:       a.cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, errors.StorageError("failed to connect to redis", err)
		}
		a.redisClnt = client
		return oauth.NewRedisCredentialStore(client, "", 0), nil

	case config.StoreMemory:
		return oauth.NewMemoryCredentialStore(), nil
	}

	return nil, errors.ConfigError("unknown store backend: " + a.cfg.StoreBackend)
}

// Start launches the HTTP server and, when configured, the proactive refresh
// worker. The returned channel carries fatal listen errors.
func (a *App) Start() (<-chan error, error) {
	if a.cfg.RefreshSchedule != "" {
		if err := a.manager.StartProactiveRefresh(a.cfg.RefreshSchedule, a.cfg.RefreshLookahead); err != nil {
			return nil, err
		}
	}

	a.logger.Info("Server starting",
		logging.Field{Key: "port", Value: a.cfg.Port},
		logging.Field{Key: "store", Value: a.cfg.StoreBackend},
		logging.Field{Key: "admin_api", Value: a.cfg.AdminEnabled()},
	)
	return a.server.Start(), nil
}

// Shutdown drains the HTTP server and stops background work.
func (a *App) Shutdown(ctx context.Context) error {
	a.manager.StopProactiveRefresh()
	err := a.server.Shutdown(ctx)
	a.Close()
	return err
}

// Close releases storage connections. Safe to call more than once.
func (a *App) Close() {
	if a.sqlDB != nil {
		a.sqlDB.Close()
		a.sqlDB = nil
	}
	if a.pgPool != nil {
		a.pgPool.Close()
		a.pgPool = nil
	}
	if a.redisClnt != nil {
		a.redisClnt.Close()
		a.redisClnt = nil
	}
}

// ShutdownTimeout bounds graceful shutdown on interrupt.
const ShutdownTimeout = 15 * time.Second
