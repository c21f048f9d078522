package file

import (
	"time"

	"github.com/google/uuid"
)

// Record is the metadata row describing one stored blob.
type Record struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	FileName  string    `json:"file_name"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
