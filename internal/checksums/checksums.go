// Package checksums confirms that managed files survived a move between
// servers, by comparing sha1sum listings taken on each side.
package checksums

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// PublicPrefix marks file URIs stored under the public files directory.
const PublicPrefix = "public://"

// Sums maps a file path to its hex SHA-1.
type Sums map[string]string

// ParseSums reads sha1sum output ("<sum>  <path>" or "<sum> *<path>").
func ParseSums(r io.Reader) (Sums, error) {
	sums := make(Sums)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sum, path, ok := strings.Cut(line, " ")
		path = strings.TrimPrefix(strings.TrimSpace(path), "*")
		if !ok || path == "" {
			return nil, fmt.Errorf("line %d: expected checksum and path", n)
		}
		sums[path] = sum
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}
	return sums, nil
}

// Result counts the outcome of a verification.
type Result struct {
	Tested       int
	MissingOld   int
	MissingNew   int
	Mismatched   int
	SkippedAfter int // records created after the cutoff
}

// OK reports whether every tested file matched.
func (r *Result) OK() bool {
	return r.MissingOld == 0 && r.MissingNew == 0 && r.Mismatched == 0
}

type fileRecord struct {
	URI     string      `json:"uri"`
	Created json.Number `json:"created"`
}

// Verify walks the files entity snapshot (one JSON object per line) and
// compares each public file's checksum on the old and new servers.
// Problems are written to w one per line, followed by the tested count.
// Files created after cutoff are skipped; a zero cutoff checks all.
func Verify(oldSums, newSums Sums, files io.Reader, cutoff time.Time, w io.Writer) (*Result, error) {
	result := &Result{}
	dec := json.NewDecoder(files)
	for dec.More() {
		var rec fileRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("failed to parse files snapshot: %w", err)
		}
		if !cutoff.IsZero() && rec.Created != "" {
			secs, err := rec.Created.Int64()
			if err != nil {
				return nil, fmt.Errorf("bad created value %q for %s", rec.Created, rec.URI)
			}
			if time.Unix(secs, 0).After(cutoff) {
				result.SkippedAfter++
				continue
			}
		}
		if !strings.HasPrefix(rec.URI, PublicPrefix) {
			continue
		}
		result.Tested++
		path := "files/" + strings.TrimPrefix(rec.URI, PublicPrefix)
		oldSum, newSum := oldSums[path], newSums[path]
		switch {
		case oldSum == "":
			result.MissingOld++
			fmt.Fprintf(w, "not on old server: %s\n", path)
		case newSum == "":
			result.MissingNew++
			fmt.Fprintf(w, "not on new server: %s\n", path)
		case oldSum != newSum:
			result.Mismatched++
			fmt.Fprintf(w, "checksum mismatch: %s\n", path)
		}
	}
	fmt.Fprintf(w, "tested %d files\n", result.Tested)
	return result, nil
}
