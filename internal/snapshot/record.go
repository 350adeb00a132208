package snapshot

import (
	"bufio"
	"bytes"
	"crypto/sha1" // #nosec G505 - change detection, not security
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Fingerprint is the SHA-1 digest of a record's serialized bytes.
type Fingerprint [sha1.Size]byte

// FingerprintOf hashes the record exactly as serialized.
// Field order and whitespace are significant.
func FingerprintOf(record []byte) Fingerprint {
	return Fingerprint(sha1.Sum(record)) // #nosec G401
}

// String returns the hex form, as printed by sha1sum.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

var (
	errNotObject  = errors.New("not a JSON object")
	errMissingKey = errors.New("identifying field missing")
)

// ExtractKey returns the identifying key of a JSON record line.
//
// The key is the compact JSON text of the field's value, so the string
// "1" and the number 1 are different keys.
func ExtractKey(record []byte, idField string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(record, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", errNotObject, err)
	}
	if fields == nil {
		return "", errNotObject
	}
	raw, ok := fields[idField]
	if !ok {
		return "", fmt.Errorf("%w: %q", errMissingKey, idField)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", fmt.Errorf("%w: %v", errNotObject, err)
	}
	return buf.String(), nil
}

// snapshotLine is one record as read from a snapshot file.
type snapshotLine struct {
	num  int
	raw  []byte // as read, including the terminator if any
	body []byte // without the line terminator
}

// readLines calls fn for every line of the file at path.
// Lines of any length are supported.
func readLines(path string, fn func(l snapshotLine) error) error {
	// #nosec G304 - snapshot paths come from configuration
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReaderSize(file, 64*1024)
	num := 0
	for {
		raw, err := reader.ReadBytes('\n')
		if len(raw) > 0 {
			num++
			body := bytes.TrimSuffix(raw, []byte("\n"))
			body = bytes.TrimSuffix(body, []byte("\r"))
			if ferr := fn(snapshotLine{num: num, raw: raw, body: body}); ferr != nil {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
}
