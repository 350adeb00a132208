package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileLock is an advisory lock guarding an output directory against
// concurrent delta computations.
type FileLock struct {
	path string
	file *os.File
}

// LockPath returns the lock file used for outputDir. It lives next to the
// output directory, not inside it, so it survives rotation.
func LockPath(outputDir string) string {
	clean := filepath.Clean(outputDir)
	return filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+".lock")
}

// Lock acquires the advisory lock for outputDir without blocking.
// It returns ErrLocked if another process holds it.
func Lock(outputDir string) (*FileLock, error) {
	path := LockPath(outputDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	// #nosec G304 - lock path derived from configuration
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(file); err != nil {
		_ = file.Close()
		return nil, err
	}
	return &FileLock{path: path, file: file}, nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Unlock releases the lock. The lock file itself is left in place.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if unlockErr != nil {
		return unlockErr
	}
	return closeErr
}
