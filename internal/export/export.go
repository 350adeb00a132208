// Package export writes a full snapshot of the EBMS database: one
// line-delimited JSON file per entity type, ready for the delta computer.
package export

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/nciocpl/ebms/internal/config"
	"github.com/nciocpl/ebms/internal/snapshot"
)

// TableExporter streams a table as line-delimited JSON.
// *store.DB implements it.
type TableExporter interface {
	ExportTable(ctx context.Context, table, orderBy string, w io.Writer) (int, error)
}

// Options configures an export.
type Options struct {
	Dir    string                        // Snapshot directory to create
	Tables map[string]config.TableConfig // Entity type -> source table
	Logger *log.Logger
	Now    func() time.Time
}

// Result reports what was exported.
type Result struct {
	Dir       string
	RotatedTo string         // Previous snapshot, if one was moved aside
	Records   map[string]int // Entity type -> record count
	Elapsed   time.Duration
}

// Export writes <Dir>/<type>.json for every configured entity type.
// An existing Dir is rotated aside first, the same way delta output is.
func Export(ctx context.Context, src TableExporter, opts Options) (*Result, error) {
	start := time.Now()
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[export] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Tables) == 0 {
		return nil, fmt.Errorf("no tables configured for export")
	}

	result := &Result{Dir: opts.Dir, Records: make(map[string]int)}
	rotated, err := snapshot.Rotate(opts.Dir, opts.Now())
	if err != nil {
		return nil, err
	}
	result.RotatedTo = rotated
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	names := make([]string, 0, len(opts.Tables))
	for name := range opts.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		table := opts.Tables[name]
		n, err := writeEntityFile(ctx, src, opts.Dir, name, table)
		if err != nil {
			return nil, err
		}
		result.Records[name] = n
		opts.Logger.Printf("exported %d %s records from %s", n, name, table.Table)
	}

	result.Elapsed = time.Since(start)
	return result, nil
}

// writeEntityFile writes one entity type atomically via a temp file.
func writeEntityFile(ctx context.Context, src TableExporter, dir, name string, table config.TableConfig) (int, error) {
	path := filepath.Join(dir, name+".json")
	tmpPath := path + ".tmp"

	// #nosec G304 - path derived from configuration
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := src.ExportTable(ctx, table.Table, table.OrderBy, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to export %s: %w", name, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}
	return n, nil
}
