package snapshot

import (
	"fmt"
	"os"
	"time"
)

// PromoteResult reports what Promote moved.
type PromoteResult struct {
	ArchivedBaseline string // Where the old baseline went ("" if there was none)
	Baseline         string // The new baseline (formerly the exported snapshot)
}

// Promote makes the exported snapshot the new baseline once its deltas
// have been applied. The old baseline is kept as baseline-<stamp>.
func Promote(baselineDir, exportedDir string, now time.Time) (*PromoteResult, error) {
	info, err := os.Stat(exportedDir)
	if err != nil {
		return nil, fmt.Errorf("exported directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("exported path %s is not a directory", exportedDir)
	}

	archived, err := Rotate(baselineDir, now)
	if err != nil {
		return nil, err
	}
	if err := os.Rename(exportedDir, baselineDir); err != nil {
		return nil, fmt.Errorf("failed to promote %s: %w", exportedDir, err)
	}
	return &PromoteResult{ArchivedBaseline: archived, Baseline: baselineDir}, nil
}
