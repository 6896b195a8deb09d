package db

import (
	"context"
	"errors"

	"github.com/rjwalters/userhub/internal/config"
	"github.com/rjwalters/userhub/internal/domain/user"
	"github.com/rjwalters/userhub/internal/repo/mongodb"
	"github.com/rjwalters/userhub/internal/security"
)

// EnsureAdminUser seeds the bootstrap admin account when configured,
// so a fresh deployment has an admin before anyone registers.
func EnsureAdminUser(ctx context.Context, users *mongodb.UsersRepo, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	// check if the user exists

	_, err := users.GetByEmailWithPassword(ctx, cfg.AdminEmail)

	if err == nil {
		return nil
	}

	if !errors.Is(err, mongodb.ErrUserNotFound) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	_, err = users.Create(ctx, cfg.AdminEmail, hash, cfg.AdminName, user.RoleAdmin)

	if errors.Is(err, mongodb.ErrEmailAlreadyUsed) {
		// another instance seeded it first
		return nil
	}

	return err
}
