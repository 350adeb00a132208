package report

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/nciocpl/ebms/internal/store"
)

type fakeStats store.RejectionStats

func (f *fakeStats) RejectionReasonCounts(ctx context.Context) (*store.RejectionStats, error) {
	s := store.RejectionStats(*f)
	return &s, nil
}

func testStats() *fakeStats {
	return &fakeStats{
		Reasons: map[int64]string{1: "Not relevant", 2: "Commentary", 3: "Never used"},
		Boards:  map[int64]string{10: "Treatment", 20: "Screening"},
		Counts: []store.ReasonCount{
			{ReasonID: 1, BoardID: 10, Count: 4},
			{ReasonID: 1, BoardID: 20, Count: 1},
			{ReasonID: 2, BoardID: 10, Count: 2},
		},
	}
}

func TestBuildExclusionTable(t *testing.T) {
	s := store.RejectionStats(*testStats())
	table := BuildExclusionTable(&s)

	if !reflect.DeepEqual(table.Boards, []string{"Screening", "Treatment"}) {
		t.Errorf("Boards = %v", table.Boards)
	}
	want := []ReasonRow{
		{Reason: "Commentary", Total: 2, Counts: []int{0, 2}},
		{Reason: "Never used", Total: 0, Counts: []int{0, 0}},
		{Reason: "Not relevant", Total: 5, Counts: []int{1, 4}},
	}
	if !reflect.DeepEqual(table.Rows, want) {
		t.Errorf("Rows = %+v\nwant %+v", table.Rows, want)
	}
}

func TestExclusionReasons_WritesWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exclusion-reasons.xlsx")
	if _, err := ExclusionReasons(context.Background(), testStats(), path); err != nil {
		t.Fatalf("ExclusionReasons() failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows() failed: %v", err)
	}
	want := [][]string{
		{"Reason", "Total", "Screening", "Treatment"},
		{"Commentary", "2", "", "2"},
		{"Never used", "0"},
		{"Not relevant", "5", "1", "4"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q\nwant %q", rows, want)
	}
}
