package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/securecloud/api/internal/blob"
	"github.com/securecloud/api/internal/metrics"
	"github.com/securecloud/api/internal/quota"
)

// metadataStore abstracts the file metadata persistence layer.
type metadataStore interface {
	Upsert(ctx context.Context, ownerID, name string, sizeBytes int64) (Record, bool, error)
	List(ctx context.Context, ownerID string) ([]Record, error)
	Get(ctx context.Context, ownerID string, fileID uuid.UUID) (Record, error)
	Delete(ctx context.Context, ownerID string, fileID uuid.UUID) (Record, error)
}

// blobStore abstracts the per-user blob directory.
type blobStore interface {
	SaveFile(userID, name string, content io.Reader) (int64, error)
	OpenFile(userID, name string) (io.ReadCloser, int64, error)
	RemoveFile(userID, name string) error
	FileSize(userID, name string) (int64, error)
}

// admissionChecker decides whether an upload fits the owner's quota.
type admissionChecker interface {
	CheckQuota(ctx context.Context, userID string, candidateSize int64) (quota.Check, error)
}

// Service orchestrates the dual write of blob plus metadata record.
type Service struct {
	repo   metadataStore
	blobs  blobStore
	quota  admissionChecker
	logger *zap.Logger
}

// NewService constructs a file service.
func NewService(repo metadataStore, blobs blobStore, quota admissionChecker, logger *zap.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, quota: quota, logger: logger}
}

// Upload admits the file against the owner's quota, stores the blob, and
// upserts the metadata record, in that order: a crash after the blob
// write leaves an orphaned blob for reconciliation, never a record
// without content. Overwrites are admitted on the size delta against the
// existing blob, so a same-size replacement near the quota boundary is
// not rejected. The boolean result is true when a new record was created
// rather than an existing one overwritten.
func (s *Service) Upload(ctx context.Context, ownerID, name string, size int64, content io.Reader) (Record, bool, error) {
	if err := validateFileName(name); err != nil {
		return Record{}, false, err
	}
	if size < 0 {
		return Record{}, false, fmt.Errorf("negative upload size %d", size)
	}

	candidate := size
	if existing, err := s.blobs.FileSize(ownerID, name); err == nil {
		candidate = size - existing
	}

	check, err := s.quota.CheckQuota(ctx, ownerID, candidate)
	if err != nil {
		return Record{}, false, fmt.Errorf("check quota: %w", err)
	}
	if !check.Admitted {
		return Record{}, false, ErrQuotaExceeded
	}

	written, err := s.blobs.SaveFile(ownerID, name, content)
	if err != nil {
		return Record{}, false, fmt.Errorf("store blob: %w", err)
	}

	rec, created, err := s.repo.Upsert(ctx, ownerID, name, written)
	if err != nil {
		// The blob stays behind as an orphan; the cleanup pass removes it.
		s.logger.Warn("metadata upsert failed after blob write",
			zap.String("owner_id", ownerID), zap.String("file_name", name), zap.Error(err))
		return Record{}, false, err
	}

	metrics.UploadsTotal.Inc()
	return rec, created, nil
}

// List returns the owner's file records.
func (s *Service) List(ctx context.Context, ownerID string) ([]Record, error) {
	return s.repo.List(ctx, ownerID)
}

// Download resolves the record scoped to its owner and opens the blob.
// A record without a backing blob yields ErrBlobMissing, distinct from
// ErrNotFound, so callers can tell "never existed" from "diverged".
func (s *Service) Download(ctx context.Context, ownerID string, fileID uuid.UUID) (Record, io.ReadCloser, error) {
	rec, err := s.repo.Get(ctx, ownerID, fileID)
	if err != nil {
		return Record{}, nil, err
	}

	reader, _, err := s.blobs.OpenFile(ownerID, rec.FileName)
	if err != nil {
		if errors.Is(err, blob.ErrNotExist) {
			return rec, nil, ErrBlobMissing
		}
		return rec, nil, fmt.Errorf("open blob: %w", err)
	}
	return rec, reader, nil
}

// Delete removes the blob first and the metadata row second; a crash in
// between leaves an orphaned row for the reconciliation pass. A blob
// already missing on disk is logged, not treated as a failure.
func (s *Service) Delete(ctx context.Context, ownerID string, fileID uuid.UUID) error {
	rec, err := s.repo.Get(ctx, ownerID, fileID)
	if err != nil {
		return err
	}

	if err := s.blobs.RemoveFile(ownerID, rec.FileName); err != nil {
		if !errors.Is(err, blob.ErrNotExist) {
			return fmt.Errorf("remove blob: %w", err)
		}
		s.logger.Warn("blob already absent on delete",
			zap.String("owner_id", ownerID), zap.String("file_name", rec.FileName))
	}

	if _, err := s.repo.Delete(ctx, ownerID, fileID); err != nil {
		return err
	}
	return nil
}

// validateFileName rejects logical names that would escape or corrupt
// the flat per-user namespace. Names are used verbatim as filesystem
// entries, so path separators and relative path elements are refused
// rather than rewritten.
func validateFileName(name string) error {
	if name == "" || name == "." || name == ".." {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrInvalidName
	}
	return nil
}
