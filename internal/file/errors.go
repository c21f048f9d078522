package file

import "errors"

var (
	// ErrNotFound signals that no metadata record exists for the id/owner pair.
	ErrNotFound = errors.New("file not found")
	// ErrBlobMissing signals that the record exists but its blob is absent
	// on disk, a divergence reconciliation would later repair.
	ErrBlobMissing = errors.New("file content missing from storage")
	// ErrQuotaExceeded indicates the upload was denied admission.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrInvalidName rejects logical names unsafe as filesystem entries.
	ErrInvalidName = errors.New("invalid file name")
)
