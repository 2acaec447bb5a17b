package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/config"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/db"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/syncer"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/translation"
)

// userStore is the account surface shared by db.Pool and db.MemoryAuthStore.
type userStore interface {
	CountUsers(ctx context.Context) (int64, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (*db.AuthUser, error)
	GetSession(ctx context.Context, sessionID string) (*db.AuthSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	TouchSession(ctx context.Context, sessionID string, seenAt time.Time) error
	GetUserByUsername(ctx context.Context, username string) (*db.AuthUser, error)
	GetUserByID(ctx context.Context, userID int64) (*db.AuthUser, error)
	CreateSession(ctx context.Context, userID int64, expiresAt, now time.Time) (string, error)
	SetUserLastLogin(ctx context.Context, userID int64, loginAt time.Time) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// backend bundles the stores selected by STORE_DRIVER.
type backend struct {
	store     translation.Store
	users     userStore
	observers []syncer.Observer
	close     func()
}

func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backend, error) {
	observers := []syncer.Observer{syncer.NewLogObserver(logger)}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store, err := openMemoryStore(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		logger.Warn().
			Str("seed_file", cfg.SeedFile).
			Msg("using in-memory store; changes are lost on exit")
		return &backend{
			store:     store,
			users:     db.NewMemoryAuthStore(),
			observers: observers,
			close:     func() {},
		}, nil
	case config.StoreDriverPostgres:
		pool, err := db.NewPool(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		return &backend{
			store:     pool,
			users:     pool,
			observers: append(observers, db.NewAuditObserver(pool, logger)),
			close:     func() { _ = pool.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
}

func openMemoryStore(seedFile string) (*translation.MemoryStore, error) {
	if strings.TrimSpace(seedFile) == "" {
		return translation.NewMemoryStore(), nil
	}
	store, err := translation.LoadSeedFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("load seed %s: %w", seedFile, err)
	}
	return store, nil
}

func (b *backend) syncHandler(logger zerolog.Logger) *syncer.Handler {
	return syncer.NewHandler(b.store, logger, syncer.Options{Observers: b.observers})
}
