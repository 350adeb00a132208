package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/nciocpl/ebms/internal/store"
)

type fakeAcceptance store.AcceptanceData

func (f *fakeAcceptance) AcceptanceData(ctx context.Context) (*store.AcceptanceData, error) {
	d := store.AcceptanceData(*f)
	return &d, nil
}

func testAcceptanceData() *store.AcceptanceData {
	return &store.AcceptanceData{
		Version: store.AcceptanceDataVersion,
		States: map[string]int64{
			store.StateAbstractYes:   1,
			store.StateAbstractNo:    2,
			store.StateFullTextYes:   3,
			store.StateFullTextNo:    4,
			store.StateFinalDecision: 5,
		},
		Boards: []store.NamedID{
			{ID: 10, Name: "Treatment"},
			{ID: 20, Name: "Integrative, Alternative, and Complementary Therapies"},
		},
		NotList: []store.JournalBoard{{JournalID: "J2", BoardID: 10}},
		Journals: []store.Journal{
			{ID: "J1", Title: "Alpha Journal"},
			{ID: "J2", Title: "Beta Journal"},
			{ID: "J3", Title: "Gamma Journal"},
		},
		Articles: []store.ArticleJournal{
			{ArticleID: 100, JournalID: "J1"},
			{ArticleID: 101, JournalID: "J1"},
			{ArticleID: 102, JournalID: "J2"},
			{ArticleID: 103, JournalID: "J1"},
		},
		ArticleBoards: []store.ArticleBoard{
			{ArticleID: 100, BoardID: 10},
			{ArticleID: 101, BoardID: 10},
			{ArticleID: 102, BoardID: 10},
			{ArticleID: 103, BoardID: 20},
		},
		ArticleStates: []store.ArticleState{
			{ArticleStateID: 1, ArticleID: 100, StateID: 1, BoardID: 10},
			{ArticleStateID: 2, ArticleID: 100, StateID: 2, BoardID: 10},
			{ArticleStateID: 3, ArticleID: 100, StateID: 3, BoardID: 10},
			{ArticleStateID: 4, ArticleID: 100, StateID: 5, BoardID: 10},
			{ArticleStateID: 5, ArticleID: 101, StateID: 2, BoardID: 10},
			{ArticleStateID: 6, ArticleID: 101, StateID: 5, BoardID: 10},
			{ArticleStateID: 7, ArticleID: 102, StateID: 1, BoardID: 10},
			{ArticleStateID: 8, ArticleID: 103, StateID: 4, BoardID: 20},
			{ArticleStateID: 9, ArticleID: 103, StateID: 5, BoardID: 20},
		},
		DecisionValues: []store.NamedID{{ID: 1, Name: "Cited"}, {ID: 2, Name: "Not cited"}},
		BoardDecisions: []store.BoardDecision{
			{ArticleStateID: 4, DecisionValueID: 1},
			{ArticleStateID: 6, DecisionValueID: 2},
		},
	}
}

func TestBuildAcceptanceRates(t *testing.T) {
	got, err := BuildAcceptanceRates(testAcceptanceData())
	if err != nil {
		t.Fatalf("BuildAcceptanceRates() failed: %v", err)
	}
	want := []BoardAcceptance{
		{
			Board: "Integrative, Alternative, and Complementary Therapies",
			Sheet: "IACT",
			Other: []JournalCounts{{Title: "Alpha Journal", Total: 1, FullTextNo: 1}},
		},
		{
			Board:     "Treatment",
			Sheet:     "Treatment",
			NotListed: []JournalCounts{{Title: "Beta Journal", Total: 1, AbstractYes: 1}},
			Other: []JournalCounts{{
				Title: "Alpha Journal", Total: 2,
				AbstractYes: 1, AbstractNo: 1,
				FullTextYes: 1,
				EdBoardYes:  1, EdBoardNo: 1,
			}},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildAcceptanceRates() = %+v\nwant %+v", got, want)
	}
}

func TestBuildAcceptanceRates_MissingState(t *testing.T) {
	data := testAcceptanceData()
	delete(data.States, store.StateFinalDecision)
	if _, err := BuildAcceptanceRates(data); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestSheetName(t *testing.T) {
	tests := map[string]string{
		"Treatment":                     "Treatment",
		"Complementary Therapies":       "IACT",
		"Screening/Prevention":          "Screening-Prevention",
		strings.Repeat("Pediatric ", 5): "Pediatric Pediatric Pediatric P",
	}
	for in, want := range tests {
		if got := sheetName(in); got != want {
			t.Errorf("sheetName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAcceptanceRates_WritesWorkbooks(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "acceptance.json")
	src := fakeAcceptance(*testAcceptanceData())
	if _, err := AcceptanceRates(context.Background(), &src, dir, cache); err != nil {
		t.Fatalf("AcceptanceRates() failed: %v", err)
	}
	if _, err := os.Stat(cache); err != nil {
		t.Errorf("cache not written: %v", err)
	}

	f, err := excelize.OpenFile(filepath.Join(dir, NotListedWorkbook))
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); !reflect.DeepEqual(sheets, []string{"IACT", "Treatment"}) {
		t.Errorf("sheets = %v", sheets)
	}
	rows, err := f.GetRows("Treatment")
	if err != nil {
		t.Fatalf("GetRows() failed: %v", err)
	}
	want := [][]string{
		acceptanceHeadings,
		{"Beta Journal", "1", "1", "0", "0", "0", "0", "0"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %q\nwant %q", rows, want)
	}

	other, err := excelize.OpenFile(filepath.Join(dir, OtherWorkbook))
	if err != nil {
		t.Fatalf("OpenFile() failed: %v", err)
	}
	defer other.Close()
	rows, err = other.GetRows("IACT")
	if err != nil {
		t.Fatalf("GetRows() failed: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "Alpha Journal" || rows[1][5] != "1" {
		t.Errorf("IACT rows = %q", rows)
	}
}

func TestAcceptanceData_CacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acceptance.json")
	data := testAcceptanceData()
	if err := SaveAcceptanceData(path, data); err != nil {
		t.Fatalf("SaveAcceptanceData() failed: %v", err)
	}
	got, err := LoadAcceptanceData(path)
	if err != nil {
		t.Fatalf("LoadAcceptanceData() failed: %v", err)
	}
	if !reflect.DeepEqual(got, data) {
		t.Errorf("reloaded data differs:\n%+v\nwant %+v", got, data)
	}
}

func TestLoadAcceptanceData_RejectsOtherVersions(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"future":  `{"version": 99, "states": {}}`,
		"missing": `{"states": {}}`,
	}
	for name, body := range tests {
		path := filepath.Join(dir, name+".json")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadAcceptanceData(path); !errors.Is(err, ErrCacheVersion) {
			t.Errorf("%s: error = %v, want ErrCacheVersion", name, err)
		}
	}
}

func TestLoadAcceptanceData_RejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acceptance.json")
	// The old cache format: one Python tuple per line.
	if err := os.WriteFile(path, []byte("(1, 'Treatment')\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadAcceptanceData(path)
	if err == nil || errors.Is(err, ErrCacheVersion) {
		t.Errorf("error = %v, want a parse error", err)
	}
}
