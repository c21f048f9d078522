package quota

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/securecloud/api/internal/config"
)

// accountStore reads per-user quota settings from the metadata store.
type accountStore interface {
	FindQuota(ctx context.Context, userID string) (int64, bool, error)
}

// usageReader measures bytes actually stored for a user.
type usageReader interface {
	UsedBytes(userID string) int64
}

// Check is the result of an admission decision for a prospective upload.
type Check struct {
	QuotaBytes     int64 `json:"storage_quota"`
	UsedBytes      int64 `json:"used_storage"`
	AvailableBytes int64 `json:"available"`
	Admitted       bool  `json:"-"`
}

// Service computes used and available storage. Usage is always derived
// from the blob store, never from cached metadata counters, so it cannot
// drift from the bytes actually on disk.
type Service struct {
	accounts     accountStore
	usage        usageReader
	defaultQuota int64
	failOpen     bool
	logger       *zap.Logger
}

// NewService constructs a quota service.
func NewService(accounts accountStore, usage usageReader, cfg config.QuotaConfig, logger *zap.Logger) *Service {
	return &Service{
		accounts:     accounts,
		usage:        usage,
		defaultQuota: cfg.DefaultBytes,
		failOpen:     cfg.FailOpen(),
		logger:       logger,
	}
}

// UsedStorage returns the user's current byte usage. It never fails.
func (s *Service) UsedStorage(userID string) int64 {
	return s.usage.UsedBytes(userID)
}

// CheckQuota decides whether an upload of candidateSize more bytes is
// admitted. Users without an account row get the default quota. When the
// quota read fails, behavior depends on the configured fail mode: open
// admits with default values, closed surfaces the error.
func (s *Service) CheckQuota(ctx context.Context, userID string, candidateSize int64) (Check, error) {
	quotaBytes, found, err := s.accounts.FindQuota(ctx, userID)
	if err != nil {
		if !s.failOpen {
			return Check{}, fmt.Errorf("read quota: %w", err)
		}
		s.logger.Warn("quota read failed, admitting upload",
			zap.String("user_id", userID), zap.Error(err))
		return Check{
			QuotaBytes:     s.defaultQuota,
			UsedBytes:      0,
			AvailableBytes: s.defaultQuota,
			Admitted:       true,
		}, nil
	}
	if !found {
		quotaBytes = s.defaultQuota
	}

	used := s.usage.UsedBytes(userID)
	return Check{
		QuotaBytes:     quotaBytes,
		UsedBytes:      used,
		AvailableBytes: quotaBytes - used,
		Admitted:       used+candidateSize <= quotaBytes,
	}, nil
}
