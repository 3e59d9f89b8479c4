package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lanefeed/lanefeed/internal/config"
)

// PG is the pool surface the service layer consumes. *pgxpool.Pool
// implements it; tests substitute a pgxmock pool.
type PG interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type Database struct {
	PG     PG
	Redis  *redis.Client
	logger *logrus.Logger
}

func New(cfg *config.Config, logger *logrus.Logger) (*Database, error) {
	db := &Database{
		logger: logger,
	}

	if err := db.initPostgreSQL(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}

	if err := db.initRedis(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	return db, nil
}

func (db *Database) initPostgreSQL(cfg *config.Config) error {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.Database.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.Database.MaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = cfg.Database.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	db.PG = pool
	db.logger.Info("PostgreSQL connection established")
	return nil
}

// initRedis is best effort: sessions, rate limiting and stats caching
// degrade gracefully when no Redis URL is configured or the instance is
// unreachable at boot.
func (db *Database) initRedis(cfg *config.Config) error {
	if cfg.Redis.URL == "" {
		db.logger.Warn("Redis not configured; session revocation and rate limiting disabled")
		return nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaxRetries = cfg.Redis.MaxRetries
	opts.PoolSize = cfg.Redis.PoolSize
	opts.ReadTimeout = cfg.Redis.Timeout
	opts.WriteTimeout = cfg.Redis.Timeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		db.logger.WithError(err).Warn("Redis unreachable at startup; continuing without it")
		_ = client.Close()
		return nil
	}

	db.Redis = client
	db.logger.Info("Redis connection established")
	return nil
}

// PoolStat reports connection pool statistics, or nil when the
// Postgres handle is not a real pool.
func (db *Database) PoolStat() *pgxpool.Stat {
	if pool, ok := db.PG.(*pgxpool.Pool); ok {
		return pool.Stat()
	}
	return nil
}

func (db *Database) Close() {
	if pool, ok := db.PG.(*pgxpool.Pool); ok {
		pool.Close()
	}
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			db.logger.WithError(err).Warn("Failed to close Redis client")
		}
	}
	db.logger.Info("Database connections closed")
}

// HealthCheck pings every configured store.
func (db *Database) HealthCheck(ctx context.Context) map[string]error {
	results := make(map[string]error)

	if db.PG != nil {
		results["postgresql"] = db.PG.Ping(ctx)
	} else {
		results["postgresql"] = fmt.Errorf("not initialized")
	}

	if db.Redis != nil {
		results["redis"] = db.Redis.Ping(ctx).Err()
	}

	return results
}
