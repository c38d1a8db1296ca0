package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresDB holds the write pool and an optional read replica pool, each
// also exposed as *sql.DB for the repositories.
type PostgresDB struct {
	Pool     *pgxpool.Pool
	ReadPool *pgxpool.Pool

	writeDB *sql.DB
	readDB  *sql.DB
}

// NewPostgresDB creates the connection pools. readURL may be empty or equal
// to databaseURL, in which case reads share the write pool.
func NewPostgresDB(ctx context.Context, databaseURL, readURL string) (*PostgresDB, error) {
	pool, err := newPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	db := &PostgresDB{Pool: pool, ReadPool: pool}
	if readURL != "" && readURL != databaseURL {
		readPool, err := newPool(ctx, readURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("read replica: %w", err)
		}
		db.ReadPool = readPool
	}

	db.writeDB = stdlib.OpenDBFromPool(db.Pool)
	db.readDB = db.writeDB
	if db.ReadPool != db.Pool {
		db.readDB = stdlib.OpenDBFromPool(db.ReadPool)
	}

	return db, nil
}

func newPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30
	config.HealthCheckPeriod = time.Minute
	config.ConnConfig.ConnectTimeout = time.Second * 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// SQL returns the write pool as *sql.DB
func (db *PostgresDB) SQL() *sql.DB {
	return db.writeDB
}

// ReadSQL returns the read pool as *sql.DB
func (db *PostgresDB) ReadSQL() *sql.DB {
	return db.readDB
}

// Close closes the database connection pools
func (db *PostgresDB) Close() {
	if db.readDB != nil && db.readDB != db.writeDB {
		_ = db.readDB.Close()
	}
	if db.writeDB != nil {
		_ = db.writeDB.Close()
	}
	if db.ReadPool != nil && db.ReadPool != db.Pool {
		db.ReadPool.Close()
	}
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks the database connection
func (db *PostgresDB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
