package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/auth"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/config"
	"github.com/4wpdev/4wp-polylang-api-sync/internal/db"
)

type userProvisioner interface {
	CountUsers(ctx context.Context) (int64, error)
	CreateUser(ctx context.Context, username, passwordHash, role string) (*db.AuthUser, error)
}

func ensureDefaultAdmin(ctx context.Context, users userProvisioner, cfg *config.Config, logger zerolog.Logger) error {
	if users == nil || cfg == nil {
		return fmt.Errorf("ensure default admin: missing dependencies")
	}

	userCount, err := users.CountUsers(ctx)
	if err != nil {
		return err
	}
	if userCount > 0 {
		return nil
	}

	username := auth.NormalizeUsername(cfg.DefaultAdminUser)
	password := strings.TrimSpace(cfg.DefaultAdminPassword)
	if username == "" || password == "" {
		logger.Warn().Msg("no users exist and DEFAULT_ADMIN_PASSWORD is empty; login is disabled")
		return nil
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash default admin password: %w", err)
	}

	if _, err := users.CreateUser(ctx, username, passwordHash, auth.RoleAdministrator); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate key value") {
			return nil
		}
		return err
	}

	logger.Warn().
		Str("username", username).
		Str("role", auth.RoleAdministrator).
		Msg("created default admin user")

	return nil
}
