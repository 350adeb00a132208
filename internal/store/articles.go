package store

import (
	"context"
	"crypto/sha1" // #nosec G505 - matches the checksums in articles.manifest
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ArticleChecksum is the SHA-1 of an article's PubMed XML.
type ArticleChecksum struct {
	ID   int64
	SHA1 string
}

// ArticleChecksums returns the checksum of every article's XML in id order.
func (db *DB) ArticleChecksums(ctx context.Context) ([]ArticleChecksum, error) {
	var out []ArticleChecksum
	err := db.rows(ctx, "SELECT article_id, source_data FROM ebms_article ORDER BY article_id",
		func(cols []string, vals []any) error {
			id, ok := vals[0].(int64)
			if !ok {
				return fmt.Errorf("unexpected article_id type %T", vals[0])
			}
			sum := sha1.Sum(asBytes(vals[1])) // #nosec G401
			out = append(out, ArticleChecksum{ID: id, SHA1: hex.EncodeToString(sum[:])})
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to load article checksums: %w", err)
	}
	return out, nil
}

// ArticleXML returns the stored PubMed XML for an article.
func (db *DB) ArticleXML(ctx context.Context, id int64) ([]byte, error) {
	var data []byte
	err := db.conn.QueryRowContext(ctx, "SELECT source_data FROM ebms_article WHERE article_id = ?", id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load article %d: %w", id, err)
	}
	return data, nil
}

func asBytes(v any) []byte {
	switch t := v.(type) {
	case []byte:
		return t
	case string:
		return []byte(t)
	default:
		return nil
	}
}
