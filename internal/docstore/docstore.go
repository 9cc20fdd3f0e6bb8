// Package docstore owns the short-lived local home of an uploaded
// document. A document never outlives the pipeline run that acquired
// it: every Acquire is paired with a Release, and Release always
// deletes.
package docstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dvoloshyn/statement-insights/internal/domain"
)

// Store allocates scoped temporary files under a base directory.
type Store struct {
	baseDir string
}

// New creates a Store rooted at baseDir, creating it if needed.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, domain.NewStorageError(fmt.Errorf("docstore: creating base dir %q: %w", baseDir, err))
	}
	return &Store{baseDir: baseDir}, nil
}

// ScopedFile is a temporary document owned by exactly one in-flight
// pipeline run. Release must be called on every exit path.
type ScopedFile struct {
	path     string
	released bool
	mu       sync.Mutex
}

// Path returns the on-disk location of the document.
func (f *ScopedFile) Path() string { return f.path }

// Release deletes the underlying file. It is idempotent and safe to
// defer alongside an explicit call.
func (f *ScopedFile) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.released {
		return nil
	}
	f.released = true
	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("docstore: releasing %q: %w", f.path, err)
	}
	return nil
}

// Acquire copies src into a collision-free temp path namespaced by
// owner and filename. Failures surface as StorageError.
func (s *Store) Acquire(ownerID, filename string, src io.Reader) (*ScopedFile, error) {
	name := fmt.Sprintf("%s-%s-%s", sanitize(ownerID), uuid.NewString()[:8], sanitize(filename))
	path := filepath.Join(s.baseDir, name)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, domain.NewStorageError(fmt.Errorf("docstore: creating %q: %w", path, err))
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return nil, domain.NewStorageError(fmt.Errorf("docstore: writing %q: %w", path, err))
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return nil, domain.NewStorageError(fmt.Errorf("docstore: closing %q: %w", path, err))
	}

	return &ScopedFile{path: path}, nil
}

// sanitize strips path separators and other characters that have no
// business in a temp file name.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
