package store

import (
	"context"
	"fmt"
)

// ReasonCount is how often a rejection reason was given for one board.
type ReasonCount struct {
	ReasonID int64
	BoardID  int64
	Count    int
}

// RejectionStats feeds the exclusion reasons report.
type RejectionStats struct {
	Reasons map[int64]string
	Boards  map[int64]string
	Counts  []ReasonCount
}

// RejectionReasonCounts loads every rejection reason, every board, and the
// number of times each reason was given in reviews for each board.
func (db *DB) RejectionReasonCounts(ctx context.Context) (*RejectionStats, error) {
	stats := &RejectionStats{
		Reasons: make(map[int64]string),
		Boards:  make(map[int64]string),
	}

	if err := db.rows(ctx, "SELECT value_id, value_name FROM ebms_review_rejection_value",
		func(_ []string, vals []any) error {
			stats.Reasons[toInt64(vals[0])] = toString(vals[1])
			return nil
		}); err != nil {
		return nil, fmt.Errorf("failed to load rejection reasons: %w", err)
	}

	if err := db.rows(ctx, "SELECT board_id, board_name FROM ebms_board",
		func(_ []string, vals []any) error {
			stats.Boards[toInt64(vals[0])] = toString(vals[1])
			return nil
		}); err != nil {
		return nil, fmt.Errorf("failed to load boards: %w", err)
	}

	const countsQuery = `
  SELECT COUNT(*), r.value_id, t.board_id
    FROM ebms_review_rejection_reason r
    JOIN ebms_article_review v ON v.review_id = r.review_id
    JOIN ebms_packet p ON p.packet_id = v.packet_id
    JOIN ebms_topic t ON t.topic_id = p.topic_id
GROUP BY r.value_id, t.board_id`
	if err := db.rows(ctx, countsQuery, func(_ []string, vals []any) error {
		stats.Counts = append(stats.Counts, ReasonCount{
			Count:    int(toInt64(vals[0])),
			ReasonID: toInt64(vals[1]),
			BoardID:  toInt64(vals[2]),
		})
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to count rejection reasons: %w", err)
	}

	return stats, nil
}

func toInt64(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
