package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const repoTimeout = 5 * time.Second

// DB is the subset of pgxpool.Pool the repository needs. pgxmock
// satisfies it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides access to user account storage.
type Repository struct {
	db DB
}

// NewRepository builds a new user repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Ensure returns the account for userID, creating it with quotaBytes if
// absent. The upsert is a single statement, so concurrent first logins
// for the same user cannot create duplicates.
func (r *Repository) Ensure(ctx context.Context, userID string, quotaBytes int64) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	// The no-op DO UPDATE makes RETURNING yield the existing row.
	query := `
INSERT INTO users (id, storage_quota)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
RETURNING id, storage_quota, created_at, updated_at;`

	var acct Account
	err := r.db.QueryRow(ctx, query, userID, quotaBytes).Scan(
		&acct.ID, &acct.StorageQuota, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("ensure user account: %w", err)
	}
	return acct, nil
}

// SetQuota creates or updates the account with the given quota.
func (r *Repository) SetQuota(ctx context.Context, userID string, quotaBytes int64) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
INSERT INTO users (id, storage_quota)
VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET storage_quota = EXCLUDED.storage_quota, updated_at = now()
RETURNING id, storage_quota, created_at, updated_at;`

	var acct Account
	err := r.db.QueryRow(ctx, query, userID, quotaBytes).Scan(
		&acct.ID, &acct.StorageQuota, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return Account{}, fmt.Errorf("set user quota: %w", err)
	}
	return acct, nil
}

// Get fetches the account without creating it.
func (r *Repository) Get(ctx context.Context, userID string) (Account, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `SELECT id, storage_quota, created_at, updated_at FROM users WHERE id = $1;`

	var acct Account
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&acct.ID, &acct.StorageQuota, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("get user account: %w", err)
	}
	return acct, nil
}

// FindQuota reads the user's quota. The boolean result is false when no
// account row exists, which callers treat as "use the default".
func (r *Repository) FindQuota(ctx context.Context, userID string) (int64, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var quota int64
	err := r.db.QueryRow(ctx, `SELECT storage_quota FROM users WHERE id = $1;`, userID).Scan(&quota)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("find user quota: %w", err)
	}
	return quota, true, nil
}

// Delete removes the account row. The boolean result is false when no
// row existed.
func (r *Repository) Delete(ctx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM users WHERE id = $1;`, userID)
	if err != nil {
		return false, fmt.Errorf("delete user account: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
