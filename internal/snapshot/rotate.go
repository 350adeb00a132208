package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RotationStampLayout is the timestamp suffix used for rotated directories.
const RotationStampLayout = "20060102150405"

// Rotate renames an existing dir to dir-<stamp> so that a new run never
// overwrites or merges into a previous run's output. It returns the new
// name, or "" if dir did not exist.
//
// When dir-<stamp> is already taken (two runs in the same second) a
// numeric suffix is added: dir-<stamp>-1, dir-<stamp>-2, ...
func Rotate(dir string, now time.Time) (string, error) {
	if _, err := os.Lstat(dir); os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	clean := filepath.Clean(dir)
	base := fmt.Sprintf("%s-%s", clean, now.Format(RotationStampLayout))
	target := base
	for n := 1; ; n++ {
		if _, err := os.Lstat(target); os.IsNotExist(err) {
			break
		} else if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", target, err)
		}
		target = fmt.Sprintf("%s-%d", base, n)
	}

	if err := os.Rename(clean, target); err != nil {
		return "", fmt.Errorf("failed to rotate %s: %w", dir, err)
	}
	return target, nil
}
