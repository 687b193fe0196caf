package phoneauth

import (
	"context"
	"time"

	"gorm.io/gorm/logger"

	"github.com/MrEthical07/phoneauth/internal/retry"
	"github.com/MrEthical07/phoneauth/internal/store"
	"github.com/MrEthical07/phoneauth/internal/store/gormstore"
	"github.com/MrEthical07/phoneauth/internal/store/memstore"
)

// Store is the transactional datastore the engine persists users,
// challenges, and sessions in.
type Store = store.Store

// PostgresConfig configures [OpenPostgres].
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// Verbose logs every SQL statement through gorm's logger.
	Verbose bool
	// AutoMigrate creates or updates the tables after connecting.
	AutoMigrate bool
	// ConnectAttempts bounds how many times the initial ping is tried.
	ConnectAttempts int
}

// OpenPostgres connects to PostgreSQL through gorm, retrying the initial
// ping with backoff.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (Store, error) {
	policy := retry.DefaultPolicy()
	if cfg.ConnectAttempts > 0 {
		policy.MaxAttempts = cfg.ConnectAttempts
	}
	level := logger.Warn
	if cfg.Verbose {
		level = logger.Info
	}

	s, err := gormstore.Open(ctx, gormstore.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		LogLevel:        level,
		Connect:         policy,
	})
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewMemoryStore returns a process-local store for tests and tooling.
func NewMemoryStore() Store {
	return memstore.New()
}
