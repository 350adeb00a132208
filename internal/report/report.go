// Package report builds ad hoc spreadsheets from the EBMS database.
package report

import (
	"context"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/nciocpl/ebms/internal/store"
)

// SheetName is the worksheet the exclusion reasons are written to.
const SheetName = "Reasons"

// StatsSource supplies rejection counts. *store.DB implements it.
type StatsSource interface {
	RejectionReasonCounts(ctx context.Context) (*store.RejectionStats, error)
}

// ReasonRow is one row of the exclusion reasons report.
type ReasonRow struct {
	Reason string
	Total  int
	Counts []int // per board, in Table.Boards order
}

// Table is the exclusion reasons report before it is rendered.
type Table struct {
	Boards []string
	Rows   []ReasonRow
}

// BuildExclusionTable arranges the stats by reason name, with one column
// per board sorted by board name. Every reason appears, even when it was
// never given.
func BuildExclusionTable(stats *store.RejectionStats) *Table {
	boardIDs := make([]int64, 0, len(stats.Boards))
	for id := range stats.Boards {
		boardIDs = append(boardIDs, id)
	}
	sort.Slice(boardIDs, func(i, j int) bool {
		return stats.Boards[boardIDs[i]] < stats.Boards[boardIDs[j]]
	})
	column := make(map[int64]int, len(boardIDs))
	t := &Table{}
	for i, id := range boardIDs {
		column[id] = i
		t.Boards = append(t.Boards, stats.Boards[id])
	}

	rows := make(map[int64]*ReasonRow, len(stats.Reasons))
	for id, name := range stats.Reasons {
		rows[id] = &ReasonRow{Reason: name, Counts: make([]int, len(boardIDs))}
	}
	for _, c := range stats.Counts {
		row, ok := rows[c.ReasonID]
		if !ok {
			continue
		}
		row.Total += c.Count
		if col, ok := column[c.BoardID]; ok {
			row.Counts[col] += c.Count
		}
	}
	for _, row := range rows {
		t.Rows = append(t.Rows, *row)
	}
	sort.Slice(t.Rows, func(i, j int) bool { return t.Rows[i].Reason < t.Rows[j].Reason })
	return t
}

// ExclusionReasons writes the exclusion reasons spreadsheet to path.
func ExclusionReasons(ctx context.Context, src StatsSource, path string) (*Table, error) {
	stats, err := src.RejectionReasonCounts(ctx)
	if err != nil {
		return nil, err
	}
	table := BuildExclusionTable(stats)
	if err := table.Save(path); err != nil {
		return nil, err
	}
	return table, nil
}

// Save renders the table as an .xlsx workbook. Zero per-board counts are
// left blank.
func (t *Table) Save(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	headings := append([]string{"Reason", "Total"}, t.Boards...)
	if err := writeHeadings(f, SheetName, headings); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "A", 40); err != nil {
		return err
	}

	for r, row := range t.Rows {
		line := r + 2
		if err := setCell(f, SheetName, 1, line, row.Reason); err != nil {
			return err
		}
		if err := setCell(f, SheetName, 2, line, row.Total); err != nil {
			return err
		}
		for i, n := range row.Counts {
			if n == 0 {
				continue
			}
			if err := setCell(f, SheetName, i+3, line, n); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, v)
}
