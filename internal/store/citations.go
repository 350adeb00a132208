package store

import (
	"context"
	"fmt"
)

// ArticleSource is the bibliographic data and PubMed XML of one article.
type ArticleSource struct {
	PMID      string
	Journal   string // brief journal title
	Published string
	Imported  string
	XML       []byte
}

// ArticlesImportedSince calls fn for every article imported on or after
// since (YYYY-MM-DD), in article id order.
func (db *DB) ArticlesImportedSince(ctx context.Context, since string, fn func(ArticleSource) error) error {
	const query = `
  SELECT source_id, brf_jrnl_title, published_date, import_date, source_data
    FROM ebms_article
   WHERE import_date >= ?
ORDER BY article_id`
	err := db.rows(ctx, query, func(_ []string, vals []any) error {
		return fn(ArticleSource{
			PMID:      toString(vals[0]),
			Journal:   toString(vals[1]),
			Published: toString(vals[2]),
			Imported:  toString(vals[3]),
			XML:       asBytes(vals[4]),
		})
	}, since)
	if err != nil {
		return fmt.Errorf("failed to load articles imported since %s: %w", since, err)
	}
	return nil
}
