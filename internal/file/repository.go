package file

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// Repository provides access to file metadata storage.
type Repository struct {
	db DB
}

// NewRepository builds a new file repository.
func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts a record for (ownerID, name) or, when one already
// exists, updates its size and timestamp. The second return value is
// true when a new row was created.
func (r *Repository) Upsert(ctx context.Context, ownerID, name string, sizeBytes int64) (Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	// xmax = 0 only holds for freshly inserted rows.
	query := `
INSERT INTO files (id, owner_id, file_name, size_bytes)
VALUES ($1, $2, $3, $4)
ON CONFLICT (owner_id, file_name)
DO UPDATE SET size_bytes = EXCLUDED.size_bytes, updated_at = now()
RETURNING id, owner_id, file_name, size_bytes, created_at, updated_at, (xmax = 0) AS inserted;`

	var (
		rec      Record
		inserted bool
	)
	err := r.db.QueryRow(ctx, query, uuid.New(), ownerID, name, sizeBytes).Scan(
		&rec.ID, &rec.OwnerID, &rec.FileName, &rec.SizeBytes, &rec.CreatedAt, &rec.UpdatedAt, &inserted,
	)
	if err != nil {
		return Record{}, false, fmt.Errorf("upsert file metadata: %w", err)
	}
	return rec, inserted, nil
}

// List returns all records owned by the user.
func (r *Repository) List(ctx context.Context, ownerID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, owner_id, file_name, size_bytes, created_at, updated_at
FROM files
WHERE owner_id = $1
ORDER BY created_at DESC;`

	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Get fetches a single record scoped to its owner.
func (r *Repository) Get(ctx context.Context, ownerID string, fileID uuid.UUID) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, owner_id, file_name, size_bytes, created_at, updated_at
FROM files
WHERE id = $1 AND owner_id = $2;`

	var rec Record
	err := r.db.QueryRow(ctx, query, fileID, ownerID).Scan(
		&rec.ID, &rec.OwnerID, &rec.FileName, &rec.SizeBytes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("get file metadata: %w", err)
	}
	return rec, nil
}

// Delete removes a record scoped to its owner and returns it.
func (r *Repository) Delete(ctx context.Context, ownerID string, fileID uuid.UUID) (Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
DELETE FROM files
WHERE id = $1 AND owner_id = $2
RETURNING id, owner_id, file_name, size_bytes, created_at, updated_at;`

	var rec Record
	err := r.db.QueryRow(ctx, query, fileID, ownerID).Scan(
		&rec.ID, &rec.OwnerID, &rec.FileName, &rec.SizeBytes, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("delete file metadata: %w", err)
	}
	return rec, nil
}

// DeleteAllForOwner removes every record owned by the user.
func (r *Repository) DeleteAllForOwner(ctx context.Context, ownerID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM files WHERE owner_id = $1;`, ownerID)
	if err != nil {
		return 0, fmt.Errorf("delete files for owner: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListAll returns every record in the store, for reconciliation scans.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	query := `
SELECT id, owner_id, file_name, size_bytes, created_at, updated_at
FROM files
ORDER BY owner_id, file_name;`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list all files: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Exists reports whether a record for (ownerID, name) is present.
func (r *Repository) Exists(ctx context.Context, ownerID, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM files WHERE owner_id = $1 AND file_name = $2);`,
		ownerID, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check file metadata: %w", err)
	}
	return exists, nil
}

// DeleteRecord removes a record by id regardless of owner, for
// reconciliation use only.
func (r *Repository) DeleteRecord(ctx context.Context, fileID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	if _, err := r.db.Exec(ctx, `DELETE FROM files WHERE id = $1;`, fileID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}
	return nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OwnerID, &rec.FileName, &rec.SizeBytes, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file metadata: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return records, nil
}
