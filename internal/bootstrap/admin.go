package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/voxline/voxline-agents/internal/config"
	"github.com/voxline/voxline-agents/internal/domain"
	"github.com/voxline/voxline-agents/internal/password"
	"github.com/voxline/voxline-agents/internal/repository"
)

// EnsureAdmin creates a default admin user on startup when ADMIN_EMAIL
// and ADMIN_PASSWORD are set. It is a no-op otherwise.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, users, node, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, users repository.UserRepository, node *snowflake.Node, logger *zap.Logger) error {
	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" || cfg.AdminPassword == "" {
		return nil
	}

	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !domain.IsCode(err, domain.CodeNotFound) {
		return fmt.Errorf("bootstrap lookup admin: %w", err)
	}

	hashed, err := password.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap hash password: %w", err)
	}

	tenantID := cfg.AdminTenantID
	if tenantID == 0 {
		tenantID = node.Generate().Int64()
	}

	created, err := users.Create(ctx, domain.User{
		ID:           node.Generate().Int64(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: hashed,
		Role:         domain.RoleAdmin,
	})
	if err != nil {
		if domain.IsCode(err, domain.CodeConflict) {
			return nil
		}
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	logger.Info("bootstrap admin user created",
		zap.String("email", created.Email),
		zap.Int64("tenant_id", created.TenantID),
		zap.Int64("user_id", created.ID),
	)
	return nil
}
