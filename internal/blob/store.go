package blob

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

// ErrNotExist signals that no blob is stored under the requested name.
var ErrNotExist = errors.New("blob does not exist")

var unsafeIDChars = regexp.MustCompile(`[^a-zA-Z0-9-]`)

// SanitizeUserID maps a user id to a filesystem-safe directory name.
// Anything outside [a-zA-Z0-9-] is replaced with an underscore; identity
// provider subject ids (UUIDs) pass through unchanged.
func SanitizeUserID(userID string) string {
	return unsafeIDChars.ReplaceAllString(userID, "_")
}

// Store holds file contents on the local filesystem: one flat directory
// per user under a common root. It is the ground truth for byte usage;
// metadata lives elsewhere and is reconciled against it.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore creates the root directory if needed and returns a handle.
func NewStore(root string, logger *zap.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", root, err)
	}
	return &Store{root: root, logger: logger}, nil
}

// Root returns the base directory of the store.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) userDir(userID string) string {
	return filepath.Join(s.root, SanitizeUserID(userID))
}

func (s *Store) filePath(userID, name string) string {
	return filepath.Join(s.userDir(userID), name)
}

// SaveFile streams content into the user's directory under name,
// overwriting any existing blob. The bytes are written to a temporary
// file and renamed into place so readers never observe a partial blob.
func (s *Store) SaveFile(userID, name string, content io.Reader) (int64, error) {
	dir := s.userDir(userID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create user directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}

	written, err := io.Copy(tmp, content)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("write blob: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.filePath(userID, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("finalize blob: %w", err)
	}
	return written, nil
}

// OpenFile opens a stored blob for reading and reports its size.
func (s *Store) OpenFile(userID, name string) (io.ReadCloser, int64, error) {
	f, err := os.Open(s.filePath(userID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ErrNotExist
		}
		return nil, 0, fmt.Errorf("open blob: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat blob: %w", err)
	}
	return f, info.Size(), nil
}

// FileSize returns the on-disk size of a stored blob.
func (s *Store) FileSize(userID, name string) (int64, error) {
	info, err := os.Stat(s.filePath(userID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotExist
		}
		return 0, fmt.Errorf("stat blob: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, ErrNotExist
	}
	return info.Size(), nil
}

// FileExists reports whether a regular file is stored under name.
func (s *Store) FileExists(userID, name string) bool {
	_, err := s.FileSize(userID, name)
	return err == nil
}

// RemoveFile deletes a stored blob. A missing blob yields ErrNotExist.
func (s *Store) RemoveFile(userID, name string) error {
	if err := os.Remove(s.filePath(userID, name)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotExist
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// RemoveUserFiles deletes the user's entire directory tree.
func (s *Store) RemoveUserFiles(userID string) error {
	if err := os.RemoveAll(s.userDir(userID)); err != nil {
		return fmt.Errorf("remove user directory: %w", err)
	}
	return nil
}

// UsedBytes sums the sizes of regular files directly inside the user's
// directory. The namespace is flat, so the scan is non-recursive. It
// never fails: a missing directory counts as zero and unreadable
// entries are skipped.
func (s *Store) UsedBytes(userID string) int64 {
	entries, err := os.ReadDir(s.userDir(userID))
	if err != nil {
		return 0
	}

	var total int64
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("skipping unreadable blob entry",
					zap.String("user_id", userID),
					zap.String("entry", entry.Name()),
					zap.Error(err))
			}
			continue
		}
		total += info.Size()
	}
	return total
}

// ListUserDirs returns the names of all per-user directories under the root.
func (s *Store) ListUserDirs() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

// ListFiles returns the names of regular files in the user's directory.
// A missing directory yields an empty list; unreadable entries are skipped.
func (s *Store) ListFiles(userID string) ([]string, error) {
	entries, err := os.ReadDir(s.userDir(userID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read user directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
