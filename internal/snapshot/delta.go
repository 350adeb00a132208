package snapshot

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Class is the classification of an exported record relative to the baseline.
type Class int

const (
	// ClassUnchanged means the key is in the baseline with identical bytes.
	ClassUnchanged Class = iota
	// ClassNew means the key is absent from the baseline.
	ClassNew
	// ClassModified means the key is in the baseline with different bytes.
	ClassModified
)

// String returns a human-readable representation of the class.
func (c Class) String() string {
	switch c {
	case ClassUnchanged:
		return "unchanged"
	case ClassNew:
		return "new"
	case ClassModified:
		return "modified"
	default:
		return "unknown"
	}
}

const (
	// NewDir is the output subdirectory for new records.
	NewDir = "new"
	// ModDir is the output subdirectory for modified records.
	ModDir = "mod"

	snapshotExt = ".json"
)

// Options configures a delta computation.
type Options struct {
	BaselineDir string // Previous full snapshot (read only)
	ExportedDir string // Current full snapshot (read only)
	OutputDir   string // Created fresh; an existing one is rotated aside

	// IDKeys overrides the identifying field per entity type.
	IDKeys IDKeys

	// SkipMalformed logs and counts malformed records instead of aborting.
	SkipMalformed bool

	// Logger for progress; a default stderr logger is used when nil.
	Logger *log.Logger

	// Now is the clock used for rotation stamps; time.Now when nil.
	Now func() time.Time
}

// TypeStats holds the per entity type counts of a run.
type TypeStats struct {
	EntityType      string        `json:"entity_type"`
	IDField         string        `json:"id_field"`
	Baseline        int           `json:"baseline"`
	Exported        int           `json:"exported"`
	New             int           `json:"new"`
	Modified        int           `json:"modified"`
	Unchanged       int           `json:"unchanged"`
	Skipped         int           `json:"skipped"`
	ExportedMissing bool          `json:"exported_missing,omitempty"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Result summarizes a delta computation.
type Result struct {
	OutputDir string        `json:"output_dir"`
	RotatedTo string        `json:"rotated_to,omitempty"`
	Types     []TypeStats   `json:"types"`
	Elapsed   time.Duration `json:"elapsed"`
}

// TotalNew returns the number of new records across all entity types.
func (r *Result) TotalNew() int {
	n := 0
	for _, t := range r.Types {
		n += t.New
	}
	return n
}

// TotalModified returns the number of modified records across all entity types.
func (r *Result) TotalModified() int {
	n := 0
	for _, t := range r.Types {
		n += t.Modified
	}
	return n
}

// TotalSkipped returns the number of malformed records skipped.
func (r *Result) TotalSkipped() int {
	n := 0
	for _, t := range r.Types {
		n += t.Skipped
	}
	return n
}

// ComputeDeltas compares every entity type of the baseline snapshot with
// the exported snapshot and writes the new and modified records under
// opts.OutputDir.
//
// Entity types are processed one at a time in name order. An exported
// file with no baseline counterpart is ignored, and baseline records
// missing from the export are not reported.
//
// Any error aborts the run; the partially written output directory must
// then be discarded.
func ComputeDeltas(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[deltas] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.IDKeys == nil {
		opts.IDKeys = IDKeys{}
	}
	if err := opts.IDKeys.Validate(); err != nil {
		return nil, err
	}

	types, err := EntityTypes(opts.BaselineDir)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(opts.ExportedDir); err != nil {
		return nil, fmt.Errorf("exported directory: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("exported path %s is not a directory", opts.ExportedDir)
	}

	result := &Result{OutputDir: opts.OutputDir}
	rotated, err := Rotate(opts.OutputDir, opts.Now())
	if err != nil {
		return nil, err
	}
	if rotated != "" {
		opts.Logger.Printf("Previous output moved to %s", rotated)
		result.RotatedTo = rotated
	}
	for _, sub := range []string{NewDir, ModDir} {
		if err := os.MkdirAll(filepath.Join(opts.OutputDir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	for _, name := range types {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts.Logger.Printf("comparing %s", name)
		stats, err := compareType(ctx, opts, name)
		if err != nil {
			return nil, err
		}
		result.Types = append(result.Types, *stats)
	}

	result.Elapsed = time.Since(start)
	opts.Logger.Printf("elapsed: %v", result.Elapsed)
	return result, nil
}

// EntityTypes lists the entity types of a snapshot directory in name order.
func EntityTypes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), snapshotExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), snapshotExt))
	}
	sort.Strings(names)
	return names, nil
}

func compareType(ctx context.Context, opts Options, name string) (*TypeStats, error) {
	start := time.Now()
	idField := opts.IDKeys.KeyFor(name)
	stats := &TypeStats{EntityType: name, IDField: idField}

	skip := func(mre *MalformedRecordError) error {
		if !opts.SkipMalformed {
			return mre
		}
		opts.Logger.Printf("WARNING: skipping %v", mre)
		stats.Skipped++
		return nil
	}

	baselinePath := filepath.Join(opts.BaselineDir, name+snapshotExt)
	idx, indexed, err := buildIndex(baselinePath, name, idField, skip)
	if err != nil {
		return nil, err
	}
	stats.Baseline = indexed

	exportedPath := filepath.Join(opts.ExportedDir, name+snapshotExt)
	if _, err := os.Stat(exportedPath); os.IsNotExist(err) {
		opts.Logger.Printf("WARNING: no exported file for %s; deletions are not reported", name)
		stats.ExportedMissing = true
		stats.Elapsed = time.Since(start)
		return stats, nil
	}

	newOut := &lazyAppender{path: filepath.Join(opts.OutputDir, NewDir, name+snapshotExt)}
	modOut := &lazyAppender{path: filepath.Join(opts.OutputDir, ModDir, name+snapshotExt)}
	defer newOut.Close()
	defer modOut.Close()

	err = readLines(exportedPath, func(l snapshotLine) error {
		if l.num%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		key, err := ExtractKey(l.body, idField)
		if err != nil {
			return skip(&MalformedRecordError{
				EntityType: name,
				Path:       exportedPath,
				Line:       l.num,
				Reason:     "exported record",
				Err:        err,
			})
		}
		stats.Exported++
		switch idx.Classify(key, l.body) {
		case ClassNew:
			stats.New++
			return newOut.WriteLine(l.raw)
		case ClassModified:
			stats.Modified++
			return modOut.WriteLine(l.raw)
		default:
			stats.Unchanged++
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	if err := newOut.Close(); err != nil {
		return nil, err
	}
	if err := modOut.Close(); err != nil {
		return nil, err
	}

	stats.Elapsed = time.Since(start)
	opts.Logger.Printf("%s: new=%d modified=%d unchanged=%d", name, stats.New, stats.Modified, stats.Unchanged)
	return stats, nil
}

// lazyAppender opens its file for appending on the first write, so that
// no empty output files are left behind.
type lazyAppender struct {
	path string
	file *os.File
}

// WriteLine appends raw, adding a newline if the record had none.
func (a *lazyAppender) WriteLine(raw []byte) error {
	if a.file == nil {
		// #nosec G304 - output path derived from configuration
		f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open output file: %w", err)
		}
		a.file = f
	}
	if _, err := a.file.Write(raw); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.path, err)
	}
	if len(raw) == 0 || raw[len(raw)-1] != '\n' {
		if _, err := io.WriteString(a.file, "\n"); err != nil {
			return fmt.Errorf("failed to write %s: %w", a.path, err)
		}
	}
	return nil
}

// Close closes the file if it was opened. It is safe to call twice.
func (a *lazyAppender) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	if err != nil {
		return fmt.Errorf("failed to close %s: %w", a.path, err)
	}
	return nil
}
