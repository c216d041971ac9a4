package db

import (
	"context"
	"errors"

	"github.com/geocoder89/synergysphere/internal/config"
	"github.com/geocoder89/synergysphere/internal/domain/user"
	"github.com/geocoder89/synergysphere/internal/security"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureBootstrapUser creates the configured first account so a fresh
// deployment has someone who can log in and create projects. No-op when
// BOOTSTRAP_EMAIL/BOOTSTRAP_PASSWORD are unset or the user already exists.
func EnsureBootstrapUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) (bool, error) {
	if cfg.BootstrapEmail == "" || cfg.BootstrapPassword == "" {
		return false, nil
	}

	email := user.NormalizeEmail(cfg.BootstrapEmail)

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, email).Scan(&dummy)

	if err == nil {
		return false, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}

	hash, err := security.HashPassword(cfg.BootstrapPassword)

	if err != nil {
		return false, err
	}

	u := user.New(cfg.BootstrapName, email, hash)

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (email) DO NOTHING`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return false, err
	}

	return true, nil
}
