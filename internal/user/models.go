package user

import "time"

// Account holds the per-user settings owned by the metadata store. The
// id equals the identity provider's subject identifier; accounts are
// created lazily on first sight of a user.
type Account struct {
	ID           string    `json:"id"`
	StorageQuota int64     `json:"storage_quota"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// View combines quota settings with filesystem-derived usage.
type View struct {
	ID           string `json:"id"`
	StorageQuota int64  `json:"storage_quota"`
	UsedStorage  int64  `json:"used_storage"`
	Available    int64  `json:"available"`
}

// DeleteResult reports which subsystems a best-effort account deletion
// actually reached. Partial deletion is expected and never hidden.
type DeleteResult struct {
	MetadataDeleted bool `json:"metadata_deleted"`
	BlobsDeleted    bool `json:"blobs_deleted"`
	IdentityDeleted bool `json:"identity_deleted"`
}
