package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/synergysphere/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRow struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type RefreshTokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewRefreshTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *RefreshTokensRepo {
	return &RefreshTokensRepo{pool: pool, prom: prom}
}

func (r *RefreshTokensRepo) Create(ctx context.Context, row RefreshTokenRow) error {
	return r.prom.ObserveDB("refresh_tokens.create", func() error {
		return insertRefreshToken(ctx, r.pool, row)
	})
}

func (r *RefreshTokensRepo) GetByHash(ctx context.Context, hash string) (RefreshTokenRow, error) {
	var row RefreshTokenRow

	err := r.prom.ObserveDB("refresh_tokens.get_by_hash", func() error {
		return scanRefreshToken(r.pool.QueryRow(ctx, `
			SELECT id, user_id, token_hash, expires_at, created_at
			FROM refresh_tokens
			WHERE token_hash = $1
		`, hash), &row)
	})

	if err != nil {
		if isNoRows(err) {
			return RefreshTokenRow{}, ErrRefreshTokenNotFound
		}
		return RefreshTokenRow{}, err
	}

	return row, nil
}

// DeleteByHash removes one session. Deleting a token that is already gone
// is not an error.
func (r *RefreshTokensRepo) DeleteByHash(ctx context.Context, hash string) error {
	return r.prom.ObserveDB("refresh_tokens.delete_by_hash", func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, hash)
		return err
	})
}

func (r *RefreshTokensRepo) DeleteExpiredForUser(ctx context.Context, userID string, now time.Time) error {
	return r.prom.ObserveDB("refresh_tokens.delete_expired", func() error {
		_, err := r.pool.Exec(ctx,
			`DELETE FROM refresh_tokens WHERE user_id = $1 AND expires_at <= $2`,
			userID, now,
		)
		return err
	})
}

// Rotate swaps the session identified by oldHash for next. The old row is
// locked so two concurrent refreshes of one token cannot both succeed.
func (r *RefreshTokensRepo) Rotate(ctx context.Context, oldHash string, now time.Time, next RefreshTokenRow) (RefreshTokenRow, error) {
	var old RefreshTokenRow

	err := r.prom.ObserveDB("refresh_tokens.rotate", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		err = scanRefreshToken(tx.QueryRow(ctx, `
			SELECT id, user_id, token_hash, expires_at, created_at
			FROM refresh_tokens
			WHERE token_hash = $1
			FOR UPDATE
		`, oldHash), &old)
		if err != nil {
			return err
		}

		if !old.ExpiresAt.After(now) {
			return pgx.ErrNoRows
		}

		if _, err := tx.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, old.ID); err != nil {
			return err
		}

		if err := insertRefreshToken(ctx, tx, next); err != nil {
			return err
		}

		return tx.Commit(ctx)
	})

	if err != nil {
		if isNoRows(err) {
			return RefreshTokenRow{}, ErrRefreshTokenNotFound
		}
		return RefreshTokenRow{}, err
	}

	return old, nil
}

func insertRefreshToken(ctx context.Context, q querier, row RefreshTokenRow) error {
	_, err := q.Exec(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5)`,
		row.ID, row.UserID, row.TokenHash, row.ExpiresAt, row.CreatedAt,
	)
	return err
}

func scanRefreshToken(row pgx.Row, out *RefreshTokenRow) error {
	return row.Scan(&out.ID, &out.UserID, &out.TokenHash, &out.ExpiresAt, &out.CreatedAt)
}
