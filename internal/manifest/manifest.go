// Package manifest keeps a directory of article XML files in step with
// the database.
//
// articles.manifest records, one article per line, the SHA-1 of the XML,
// the article ID, the XML size in bytes, and when the file was written
// (YYYYMMDDhhmmss). articles.sums holds the same checksums in sha1sum
// format so the files can be checked with "sha1sum -c articles.sums".
package manifest

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nciocpl/ebms/internal/store"
)

// StampLayout is the layout of the manifest's last column.
const StampLayout = "20060102150405"

// Entry is one manifest line.
type Entry struct {
	SHA1  string
	ID    string
	Size  string
	Stamp string
}

func (e Entry) String() string {
	return strings.Join([]string{e.SHA1, e.ID, e.Size, e.Stamp}, " ")
}

// Source supplies article checksums and XML. *store.DB implements it.
type Source interface {
	ArticleChecksums(ctx context.Context) ([]store.ArticleChecksum, error)
	ArticleXML(ctx context.Context, id int64) ([]byte, error)
}

// Options configures a refresh. Relative paths are resolved against Dir.
type Options struct {
	Dir        string
	Manifest   string // default articles.manifest
	Sums       string // default articles.sums
	Articles   string // default articles
	ReportOnly bool   // count changes without writing anything
	Logger     *log.Logger
	Now        func() time.Time
}

// Result summarizes a refresh.
type Result struct {
	Added     int
	Updated   int
	Unchanged int
	RotatedTo string // previous manifest, if it was moved aside
	Elapsed   time.Duration
}

// Load reads a manifest keyed by article ID. A missing file yields an
// empty manifest.
func Load(p string) (map[int64]Entry, error) {
	entries := make(map[int64]Entry)
	// #nosec G304 - path from configuration
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return entries, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("%s:%d: expected 4 fields, found %d", p, n, len(fields))
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad article ID %q", p, n, fields[1])
		}
		entries[id] = Entry{SHA1: fields[0], ID: fields[1], Size: fields[2], Stamp: fields[3]}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return entries, nil
}

// Refresh writes the XML of every new or changed article, rewrites the
// manifest and sums files, and rotates the previous manifest to
// <manifest>.<mtime as unix seconds>.
func Refresh(ctx context.Context, src Source, opts Options) (*Result, error) {
	start := time.Now()
	opts = withDefaults(opts)
	manifestPath := filepath.Join(opts.Dir, opts.Manifest)

	old, err := Load(manifestPath)
	if err != nil {
		return nil, err
	}
	rows, err := src.ArticleChecksums(ctx)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	var w *writer
	if !opts.ReportOnly {
		if result.RotatedTo, err = rotate(manifestPath); err != nil {
			return nil, err
		}
		if w, err = newWriter(manifestPath, filepath.Join(opts.Dir, opts.Sums)); err != nil {
			return nil, err
		}
		defer w.close()
		if err := os.MkdirAll(filepath.Join(opts.Dir, opts.Articles), 0755); err != nil {
			return nil, fmt.Errorf("failed to create articles directory: %w", err)
		}
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prev, known := old[row.ID]
		switch {
		case known && prev.SHA1 == row.SHA1:
			result.Unchanged++
			if w != nil {
				if err := w.add(prev, opts.Articles); err != nil {
					return nil, err
				}
			}
			continue
		case known:
			opts.Logger.Printf("updating article %d", row.ID)
			result.Updated++
		default:
			opts.Logger.Printf("adding article %d", row.ID)
			result.Added++
		}
		if w == nil {
			continue
		}

		xml, err := src.ArticleXML(ctx, row.ID)
		if err != nil {
			return nil, err
		}
		id := strconv.FormatInt(row.ID, 10)
		xmlPath := filepath.Join(opts.Dir, opts.Articles, id+".xml")
		if err := os.WriteFile(xmlPath, xml, 0644); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", xmlPath, err)
		}
		entry := Entry{
			SHA1:  row.SHA1,
			ID:    id,
			Size:  strconv.Itoa(len(xml)),
			Stamp: opts.Now().Format(StampLayout),
		}
		if err := w.add(entry, opts.Articles); err != nil {
			return nil, err
		}
	}

	if w != nil {
		if err := w.close(); err != nil {
			return nil, err
		}
	}
	result.Elapsed = time.Since(start)
	opts.Logger.Printf("updated %d articles", result.Updated)
	opts.Logger.Printf("added %d articles", result.Added)
	opts.Logger.Printf("elapsed: %s", result.Elapsed)
	return result, nil
}

func withDefaults(opts Options) Options {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Manifest == "" {
		opts.Manifest = "articles.manifest"
	}
	if opts.Sums == "" {
		opts.Sums = "articles.sums"
	}
	if opts.Articles == "" {
		opts.Articles = "articles"
	}
	if opts.Logger == nil {
		opts.Logger = log.New(os.Stderr, "[articles] ", log.LstdFlags)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return opts
}

// rotate moves the manifest aside, named for its modification time.
func rotate(p string) (string, error) {
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat manifest: %w", err)
	}
	target := fmt.Sprintf("%s.%d", p, info.ModTime().Unix())
	if err := os.Rename(p, target); err != nil {
		return "", fmt.Errorf("failed to rotate manifest: %w", err)
	}
	return target, nil
}

type writer struct {
	manifest, sums *os.File
	mw, sw         *bufio.Writer
	closed         bool
}

func newWriter(manifestPath, sumsPath string) (*writer, error) {
	// #nosec G304 - paths from configuration
	m, err := os.Create(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	// #nosec G304
	s, err := os.Create(sumsPath)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to create sums file: %w", err)
	}
	return &writer{manifest: m, sums: s, mw: bufio.NewWriter(m), sw: bufio.NewWriter(s)}, nil
}

func (w *writer) add(e Entry, articlesDir string) error {
	if _, err := fmt.Fprintln(w.mw, e.String()); err != nil {
		return err
	}
	rel := path.Join(filepath.ToSlash(articlesDir), e.ID+".xml")
	_, err := fmt.Fprintf(w.sw, "%s %s\n", e.SHA1, rel)
	return err
}

func (w *writer) close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var errs []error
	for _, f := range []struct {
		buf  *bufio.Writer
		file io.Closer
	}{{w.mw, w.manifest}, {w.sw, w.sums}} {
		errs = append(errs, f.buf.Flush(), f.file.Close())
	}
	return errors.Join(errs...)
}
