package reconcile

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/securecloud/api/internal/file"
	"github.com/securecloud/api/internal/metrics"
)

// ErrAlreadyRunning rejects a cleanup invoked while another is in flight.
// Two concurrent sweeps could race an in-flight upload's dual write and
// remove state that is about to become consistent.
var ErrAlreadyRunning = errors.New("cleanup already running")

// recordIndex is the metadata-store surface the sweeps need.
type recordIndex interface {
	ListAll(ctx context.Context) ([]file.Record, error)
	Exists(ctx context.Context, ownerID, name string) (bool, error)
	DeleteRecord(ctx context.Context, fileID uuid.UUID) error
}

// blobIndex is the blob-store surface the sweeps need. Directory names
// under the root equal owner ids (identity provider subjects are already
// filesystem-safe).
type blobIndex interface {
	FileExists(ownerID, name string) bool
	ListUserDirs() ([]string, error)
	ListFiles(userID string) ([]string, error)
	RemoveFile(ownerID, name string) error
}

// Result aggregates what one cleanup run removed.
type Result struct {
	RecordsRemoved int `json:"db_entries_removed"`
	BlobsRemoved   int `json:"files_removed"`
}

// Service repairs divergence between the metadata store and the blob
// store left behind by partial failures: records whose blob vanished,
// and blobs whose record vanished. Both passes are idempotent and
// best-effort; per-entry errors are logged and skipped, never fatal.
type Service struct {
	records recordIndex
	blobs   blobIndex
	logger  *zap.Logger

	mu sync.Mutex
}

// NewService constructs a reconciliation service.
func NewService(records recordIndex, blobs blobIndex, logger *zap.Logger) *Service {
	return &Service{records: records, blobs: blobs, logger: logger}
}

// Run executes the orphaned-metadata pass followed by the orphaned-blob
// pass. The passes stay separate: pruning rows first keeps each pass's
// invariant simple and makes the blob pass observe an already-consistent
// record set.
func (s *Service) Run(ctx context.Context) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, ErrAlreadyRunning
	}
	defer s.mu.Unlock()

	res := Result{
		RecordsRemoved: s.removeOrphanedRecords(ctx),
		BlobsRemoved:   s.removeOrphanedBlobs(ctx),
	}

	metrics.ReconcileRecordsRemoved.Add(float64(res.RecordsRemoved))
	metrics.ReconcileBlobsRemoved.Add(float64(res.BlobsRemoved))

	s.logger.Info("cleanup finished",
		zap.Int("records_removed", res.RecordsRemoved),
		zap.Int("blobs_removed", res.BlobsRemoved))
	return res, nil
}

// removeOrphanedRecords deletes every metadata record whose expected
// blob path holds no regular file. Surviving records all had a backing
// blob as observed at scan time.
func (s *Service) removeOrphanedRecords(ctx context.Context) int {
	records, err := s.records.ListAll(ctx)
	if err != nil {
		s.logger.Error("list records for cleanup failed", zap.Error(err))
		return 0
	}

	removed := 0
	for _, rec := range records {
		if s.blobs.FileExists(rec.OwnerID, rec.FileName) {
			continue
		}
		if err := s.records.DeleteRecord(ctx, rec.ID); err != nil {
			s.logger.Warn("remove orphaned record failed",
				zap.String("file_id", rec.ID.String()), zap.Error(err))
			continue
		}
		removed++
		s.logger.Info("removed orphaned record",
			zap.String("file_id", rec.ID.String()),
			zap.String("owner_id", rec.OwnerID),
			zap.String("file_name", rec.FileName))
	}
	return removed
}

// removeOrphanedBlobs deletes every regular file under a per-user
// directory that has no matching metadata record. Non-directory entries
// under the root and unreadable entries are skipped, not errors.
func (s *Service) removeOrphanedBlobs(ctx context.Context) int {
	dirs, err := s.blobs.ListUserDirs()
	if err != nil {
		s.logger.Error("list user directories for cleanup failed", zap.Error(err))
		return 0
	}

	removed := 0
	for _, ownerID := range dirs {
		names, err := s.blobs.ListFiles(ownerID)
		if err != nil {
			s.logger.Warn("list blobs for cleanup failed",
				zap.String("owner_id", ownerID), zap.Error(err))
			continue
		}

		for _, name := range names {
			exists, err := s.records.Exists(ctx, ownerID, name)
			if err != nil {
				s.logger.Warn("record lookup for cleanup failed",
					zap.String("owner_id", ownerID), zap.String("file_name", name), zap.Error(err))
				continue
			}
			if exists {
				continue
			}
			if err := s.blobs.RemoveFile(ownerID, name); err != nil {
				s.logger.Warn("remove orphaned blob failed",
					zap.String("owner_id", ownerID), zap.String("file_name", name), zap.Error(err))
				continue
			}
			removed++
			s.logger.Info("removed orphaned blob",
				zap.String("owner_id", ownerID), zap.String("file_name", name))
		}
	}
	return removed
}
