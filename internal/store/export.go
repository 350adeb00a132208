package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ExportTable writes every row of table to w as one JSON object per line,
// keeping the column order of the table. It returns the row count.
func (db *DB) ExportTable(ctx context.Context, table, orderBy string, w io.Writer) (int, error) {
	quoted, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}
	order, err := orderClause(orderBy)
	if err != nil {
		return 0, err
	}

	count := 0
	var line bytes.Buffer
	err = db.rows(ctx, "SELECT * FROM "+quoted+order, func(cols []string, vals []any) error {
		line.Reset()
		if err := encodeRecord(&line, cols, vals); err != nil {
			return fmt.Errorf("%s row %d: %w", table, count+1, err)
		}
		if _, err := w.Write(line.Bytes()); err != nil {
			return fmt.Errorf("failed to write %s: %w", table, err)
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	return count, nil
}

// encodeRecord writes {"col": value, ...}\n with the given column order.
func encodeRecord(buf *bytes.Buffer, cols []string, vals []any) error {
	buf.WriteByte('{')
	for i, col := range cols {
		if i > 0 {
			buf.WriteString(", ")
		}
		if err := encodeValue(buf, col); err != nil {
			return err
		}
		buf.WriteString(": ")
		if err := encodeValue(buf, normalize(vals[i])); err != nil {
			return fmt.Errorf("column %s: %w", col, err)
		}
	}
	buf.WriteString("}\n")
	return nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case time.Time:
		return t.UTC().Format("2006-01-02 15:04:05")
	default:
		return v
	}
}

func encodeValue(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
