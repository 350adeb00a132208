package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nciocpl/ebms/internal/store"
)

// Workbook names written by AcceptanceRates.
const (
	NotListedWorkbook = "not_listed.xlsx"
	OtherWorkbook     = "not_not_listed.xlsx"
)

// ErrCacheVersion is returned when a saved data file was written by an
// incompatible release.
var ErrCacheVersion = errors.New("unsupported acceptance data version")

const (
	// notCited is the board decision that counts against the journal.
	notCited = "Not cited"

	maxSheetName = 31
)

// AcceptanceSource supplies the acceptance rate data. *store.DB implements it.
type AcceptanceSource interface {
	AcceptanceData(ctx context.Context) (*store.AcceptanceData, error)
}

// JournalCounts is one row of an acceptance rate sheet. Each article is
// counted at most once per column pair, with yes winning over no.
type JournalCounts struct {
	Title       string
	Total       int
	AbstractYes int
	AbstractNo  int
	FullTextYes int
	FullTextNo  int
	EdBoardYes  int
	EdBoardNo   int
}

// BoardAcceptance splits one board's journal counts by whether the
// journal is on the board's not list.
type BoardAcceptance struct {
	Board     string
	Sheet     string
	NotListed []JournalCounts
	Other     []JournalCounts
}

type articleTally struct {
	abstractYes, abstractNo int
	fullTextYes, fullTextNo int
	edBoardYes, edBoardNo   int
}

func (a *articleTally) addTo(c *JournalCounts) {
	c.Total++
	if a.abstractYes > 0 {
		c.AbstractYes++
	} else if a.abstractNo > 0 {
		c.AbstractNo++
	}
	if a.fullTextYes > 0 {
		c.FullTextYes++
	} else if a.fullTextNo > 0 {
		c.FullTextNo++
	}
	if a.edBoardYes > 0 {
		c.EdBoardYes++
	} else if a.edBoardNo > 0 {
		c.EdBoardNo++
	}
}

type articleKey struct {
	article, board int64
}

// BuildAcceptanceRates folds the article states into per journal counts
// for every board. Boards are sorted by name and journals by title; only
// journals with at least one article under review for the board appear.
func BuildAcceptanceRates(data *store.AcceptanceData) ([]BoardAcceptance, error) {
	wanted, err := data.WantedStates()
	if err != nil {
		return nil, err
	}
	abstractYes, abstractNo, fullTextYes, fullTextNo, final := wanted[0], wanted[1], wanted[2], wanted[3], wanted[4]

	values := make(map[int64]string, len(data.DecisionValues))
	for _, v := range data.DecisionValues {
		values[v.ID] = v.Name
	}
	decisions := make(map[int64]map[string]bool)
	for _, d := range data.BoardDecisions {
		if decisions[d.ArticleStateID] == nil {
			decisions[d.ArticleStateID] = make(map[string]bool)
		}
		decisions[d.ArticleStateID][values[d.DecisionValueID]] = true
	}

	tallies := make(map[articleKey]*articleTally, len(data.ArticleBoards))
	for _, ab := range data.ArticleBoards {
		tallies[articleKey{ab.ArticleID, ab.BoardID}] = &articleTally{}
	}
	for _, s := range data.ArticleStates {
		a, ok := tallies[articleKey{s.ArticleID, s.BoardID}]
		if !ok {
			continue
		}
		switch s.StateID {
		case abstractYes:
			a.abstractYes++
		case abstractNo:
			a.abstractNo++
		case fullTextYes:
			a.fullTextYes++
		case fullTextNo:
			a.fullTextNo++
		case final:
			if d := decisions[s.ArticleStateID]; len(d) > 0 {
				if d[notCited] {
					a.edBoardNo++
				} else {
					a.edBoardYes++
				}
			}
		}
	}

	journalOf := make(map[int64]string, len(data.Articles))
	for _, a := range data.Articles {
		journalOf[a.ArticleID] = a.JournalID
	}
	titles := make(map[string]string, len(data.Journals))
	for _, j := range data.Journals {
		titles[j.ID] = j.Title
	}
	notList := make(map[journalBoard]bool, len(data.NotList))
	for _, n := range data.NotList {
		notList[journalBoard{n.JournalID, n.BoardID}] = true
	}

	perBoard := make(map[int64]map[string]*JournalCounts)
	for key, a := range tallies {
		jid, ok := journalOf[key.article]
		if !ok {
			continue
		}
		title, ok := titles[jid]
		if !ok {
			continue
		}
		journals := perBoard[key.board]
		if journals == nil {
			journals = make(map[string]*JournalCounts)
			perBoard[key.board] = journals
		}
		c := journals[jid]
		if c == nil {
			c = &JournalCounts{Title: title}
			journals[jid] = c
		}
		a.addTo(c)
	}

	boards := append([]store.NamedID(nil), data.Boards...)
	sort.Slice(boards, func(i, j int) bool { return boards[i].Name < boards[j].Name })

	var out []BoardAcceptance
	for _, b := range boards {
		ba := BoardAcceptance{Board: b.Name, Sheet: sheetName(b.Name)}
		for jid, c := range perBoard[b.ID] {
			if notList[journalBoard{jid, b.ID}] {
				ba.NotListed = append(ba.NotListed, *c)
			} else {
				ba.Other = append(ba.Other, *c)
			}
		}
		sortByTitle(ba.NotListed)
		sortByTitle(ba.Other)
		out = append(out, ba)
	}
	return out, nil
}

type journalBoard struct {
	journal string
	board   int64
}

func sortByTitle(rows []JournalCounts) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Title < rows[j].Title })
}

// sheetName shortens a board name to a legal worksheet name.
func sheetName(board string) string {
	if strings.Contains(board, "Complementary") {
		return "IACT"
	}
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '-'
		}
		return r
	}, board)
	if r := []rune(name); len(r) > maxSheetName {
		name = string(r[:maxSheetName])
	}
	return name
}

// AcceptanceRates loads the data from src, optionally saving it to
// cachePath first, and writes both workbooks into dir.
func AcceptanceRates(ctx context.Context, src AcceptanceSource, dir, cachePath string) ([]BoardAcceptance, error) {
	data, err := src.AcceptanceData(ctx)
	if err != nil {
		return nil, err
	}
	if cachePath != "" {
		if err := SaveAcceptanceData(cachePath, data); err != nil {
			return nil, err
		}
	}
	return WriteAcceptanceRates(data, dir)
}

// WriteAcceptanceRates builds the report from data and writes both
// workbooks into dir.
func WriteAcceptanceRates(data *store.AcceptanceData, dir string) ([]BoardAcceptance, error) {
	boards, err := BuildAcceptanceRates(data)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	notListed := func(b BoardAcceptance) []JournalCounts { return b.NotListed }
	other := func(b BoardAcceptance) []JournalCounts { return b.Other }
	if err := saveAcceptanceWorkbook(filepath.Join(dir, NotListedWorkbook), boards, notListed); err != nil {
		return nil, err
	}
	if err := saveAcceptanceWorkbook(filepath.Join(dir, OtherWorkbook), boards, other); err != nil {
		return nil, err
	}
	return boards, nil
}

var acceptanceHeadings = []string{
	"Journal Title", "Total",
	"Abstract Yes", "Abstract No",
	"Full-Text Yes", "Full-Text No",
	"Ed Board Yes", "Ed Board No",
}

func saveAcceptanceWorkbook(path string, boards []BoardAcceptance, rows func(BoardAcceptance) []JournalCounts) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, b := range boards {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", b.Sheet); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(b.Sheet); err != nil {
			return err
		}
		if err := writeHeadings(f, b.Sheet, acceptanceHeadings); err != nil {
			return err
		}
		if err := f.SetColWidth(b.Sheet, "A", "A", 60); err != nil {
			return err
		}
		for r, c := range rows(b) {
			values := []any{c.Title, c.Total, c.AbstractYes, c.AbstractNo,
				c.FullTextYes, c.FullTextNo, c.EdBoardYes, c.EdBoardNo}
			for col, v := range values {
				if err := setCell(f, b.Sheet, col+1, r+2, v); err != nil {
					return err
				}
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// writeHeadings writes a bold first row to sheet.
func writeHeadings(f *excelize.File, sheet string, headings []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return err
	}
	for i, h := range headings {
		if err := setCell(f, sheet, i+1, 1, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(headings), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

// SaveAcceptanceData writes data as JSON so a later run can rebuild the
// report without the database.
func SaveAcceptanceData(path string, data *store.AcceptanceData) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode acceptance data: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadAcceptanceData reads a file written by SaveAcceptanceData.
func LoadAcceptanceData(path string) (*store.AcceptanceData, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var data store.AcceptanceData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if data.Version != store.AcceptanceDataVersion {
		return nil, fmt.Errorf("%w: %s has version %d, want %d",
			ErrCacheVersion, path, data.Version, store.AcceptanceDataVersion)
	}
	return &data, nil
}
