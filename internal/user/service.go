package user

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// accountStore abstracts account persistence.
type accountStore interface {
	Ensure(ctx context.Context, userID string, quotaBytes int64) (Account, error)
	SetQuota(ctx context.Context, userID string, quotaBytes int64) (Account, error)
	Get(ctx context.Context, userID string) (Account, error)
	Delete(ctx context.Context, userID string) (bool, error)
}

// fileIndex removes a user's file metadata in bulk.
type fileIndex interface {
	DeleteAllForOwner(ctx context.Context, ownerID string) (int64, error)
}

// blobStore covers the blob-side operations of the user lifecycle.
type blobStore interface {
	RemoveUserFiles(userID string) error
	UsedBytes(userID string) int64
}

// identityDirectory removes the user from the external identity provider.
type identityDirectory interface {
	DeleteUser(ctx context.Context, userID string) (bool, error)
}

// Service orchestrates create-on-first-use and delete-everywhere across
// the metadata store, the blob store, and the identity provider.
type Service struct {
	accounts     accountStore
	files        fileIndex
	blobs        blobStore
	identity     identityDirectory
	defaultQuota int64
	logger       *zap.Logger
}

// NewService constructs a user lifecycle service.
func NewService(accounts accountStore, files fileIndex, blobs blobStore, identity identityDirectory, defaultQuota int64, logger *zap.Logger) *Service {
	return &Service{
		accounts:     accounts,
		files:        files,
		blobs:        blobs,
		identity:     identity,
		defaultQuota: defaultQuota,
		logger:       logger,
	}
}

// EnsureUser idempotently creates the account on first sight, applying
// desiredQuota when supplied and the default otherwise. It is the single
// path for both first-login provisioning and administrative quota changes.
func (s *Service) EnsureUser(ctx context.Context, userID string, desiredQuota *int64) (Account, error) {
	if userID == "" {
		return Account{}, fmt.Errorf("user id is required")
	}
	if desiredQuota != nil {
		return s.accounts.SetQuota(ctx, userID, *desiredQuota)
	}
	return s.accounts.Ensure(ctx, userID, s.defaultQuota)
}

// GetAccount fetches the account without creating it.
func (s *Service) GetAccount(ctx context.Context, userID string) (Account, error) {
	return s.accounts.Get(ctx, userID)
}

// GetUserView composes the (possibly just-created) account with
// filesystem-derived usage.
func (s *Service) GetUserView(ctx context.Context, userID string) (View, error) {
	acct, err := s.EnsureUser(ctx, userID, nil)
	if err != nil {
		return View{}, err
	}

	used := s.blobs.UsedBytes(userID)
	return View{
		ID:           acct.ID,
		StorageQuota: acct.StorageQuota,
		UsedStorage:  used,
		Available:    acct.StorageQuota - used,
	}, nil
}

// DeleteUser removes the user everywhere in four independent best-effort
// steps: blob directory, file records, account row, identity provider
// account. Each failure is recorded in the result instead of aborting
// the remaining steps; the caller decides what partial success means.
func (s *Service) DeleteUser(ctx context.Context, userID string) DeleteResult {
	var res DeleteResult

	if err := s.blobs.RemoveUserFiles(userID); err != nil {
		s.logger.Error("remove user blob directory failed",
			zap.String("user_id", userID), zap.Error(err))
	} else {
		res.BlobsDeleted = true
	}

	metadataOK := true
	if _, err := s.files.DeleteAllForOwner(ctx, userID); err != nil {
		s.logger.Error("delete file records failed",
			zap.String("user_id", userID), zap.Error(err))
		metadataOK = false
	}
	removed, err := s.accounts.Delete(ctx, userID)
	if err != nil {
		s.logger.Error("delete account row failed",
			zap.String("user_id", userID), zap.Error(err))
		metadataOK = false
	}
	res.MetadataDeleted = metadataOK && removed

	identityDeleted, err := s.identity.DeleteUser(ctx, userID)
	if err != nil {
		s.logger.Error("identity provider deletion failed",
			zap.String("user_id", userID), zap.Error(err))
	} else {
		res.IdentityDeleted = identityDeleted
	}

	return res
}
