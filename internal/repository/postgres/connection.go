package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"prophub/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds environment-prefixed table names
type TableNames struct {
	Profiles    string
	RoleChanges string
}

// NewTableNames creates table names with the given prefix (dev_, test_, prod_)
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Profiles:    fmt.Sprintf("%sprofiles", prefix),
		RoleChanges: fmt.Sprintf("%srole_changes", prefix),
	}
}

// PoolSettings sizes the connection pool
type PoolSettings struct {
	MaxConns int32
	MinConns int32
}

// DefaultPoolSettings suits a single API instance against Supabase
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{MaxConns: 25, MinConns: 5}
}

// CreateConnectionPool opens a pgx pool and pings it.
//
// Supabase's transaction pooler (port 6543) does not support prepared
// statements, so on that port the pool switches to QueryExecModeCacheDescribe
// unless the connection string sets default_query_exec_mode itself.
// Table prefixes are interpolated into SQL before it reaches the server, so
// each environment gets its own cached statements.
func CreateConnectionPool(ctx context.Context, databaseURL string, settings PoolSettings) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = settings.MaxConns
	config.MinConns = settings.MinConns

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the context's transaction if there is one, else the pool
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
