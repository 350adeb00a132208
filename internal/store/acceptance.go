package store

import (
	"context"
	"fmt"
	"strings"
)

// State text IDs counted by the acceptance rate report.
const (
	StateAbstractYes   = "PassedBMReview"
	StateAbstractNo    = "RejectBMReview"
	StateFullTextYes   = "PassedFullReview"
	StateFullTextNo    = "RejectFullReview"
	StateFinalDecision = "FinalBoardDecision"
)

// AcceptanceDataVersion is bumped whenever AcceptanceData changes shape.
const AcceptanceDataVersion = 1

// NamedID is an id with its display name.
type NamedID struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Journal is a journal's source id and title.
type Journal struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// JournalBoard puts a journal on a board's not list.
type JournalBoard struct {
	JournalID string `json:"journal_id"`
	BoardID   int64  `json:"board_id"`
}

// ArticleJournal records which journal an article appeared in.
type ArticleJournal struct {
	ArticleID int64  `json:"article_id"`
	JournalID string `json:"journal_id"`
}

// ArticleBoard is an article under consideration by a board.
type ArticleBoard struct {
	ArticleID int64 `json:"article_id"`
	BoardID   int64 `json:"board_id"`
}

// ArticleState is one active state an article reached for a board.
type ArticleState struct {
	ArticleStateID int64 `json:"article_state_id"`
	ArticleID      int64 `json:"article_id"`
	StateID        int64 `json:"state_id"`
	BoardID        int64 `json:"board_id"`
}

// BoardDecision attaches a decision value to a final board decision state.
type BoardDecision struct {
	ArticleStateID  int64 `json:"article_state_id"`
	DecisionValueID int64 `json:"decision_value_id"`
}

// AcceptanceData is everything the acceptance rate report reads. It can
// be saved and reloaded so the report layout can be reworked without
// querying the database again.
type AcceptanceData struct {
	Version        int              `json:"version"`
	States         map[string]int64 `json:"states"` // state_text_id -> state_id
	Boards         []NamedID        `json:"boards"`
	NotList        []JournalBoard   `json:"not_list"`
	Journals       []Journal        `json:"journals"`
	Articles       []ArticleJournal `json:"articles"`
	ArticleBoards  []ArticleBoard   `json:"article_boards"`
	ArticleStates  []ArticleState   `json:"article_states"`
	DecisionValues []NamedID        `json:"decision_values"`
	BoardDecisions []BoardDecision  `json:"board_decisions"`
}

// AcceptanceData loads the article states, boards and journals behind
// the acceptance rate report. Only active states are read.
func (db *DB) AcceptanceData(ctx context.Context) (*AcceptanceData, error) {
	data := &AcceptanceData{Version: AcceptanceDataVersion, States: make(map[string]int64)}

	load := func(what, query string, fn func(vals []any), args ...any) error {
		err := db.rows(ctx, query, func(_ []string, vals []any) error {
			fn(vals)
			return nil
		}, args...)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", what, err)
		}
		return nil
	}

	if err := load("boards", "SELECT board_id, board_name FROM ebms_board", func(v []any) {
		data.Boards = append(data.Boards, NamedID{ID: toInt64(v[0]), Name: toString(v[1])})
	}); err != nil {
		return nil, err
	}
	if err := load("not list", `
SELECT source_jrnl_id, board_id
  FROM ebms_not_list
 WHERE start_date <= CURRENT_TIMESTAMP`, func(v []any) {
		data.NotList = append(data.NotList, JournalBoard{JournalID: toString(v[0]), BoardID: toInt64(v[1])})
	}); err != nil {
		return nil, err
	}
	if err := load("journals", "SELECT source_jrnl_id, jrnl_title FROM ebms_journal", func(v []any) {
		data.Journals = append(data.Journals, Journal{ID: toString(v[0]), Title: toString(v[1])})
	}); err != nil {
		return nil, err
	}
	if err := load("articles", "SELECT article_id, source_jrnl_id FROM ebms_article", func(v []any) {
		data.Articles = append(data.Articles, ArticleJournal{ArticleID: toInt64(v[0]), JournalID: toString(v[1])})
	}); err != nil {
		return nil, err
	}
	if err := load("states", "SELECT state_id, state_text_id FROM ebms_article_state_type", func(v []any) {
		data.States[toString(v[1])] = toInt64(v[0])
	}); err != nil {
		return nil, err
	}
	if err := load("article boards", `
SELECT DISTINCT article_id, board_id
  FROM ebms_article_state
 WHERE active_status = 'A'`, func(v []any) {
		data.ArticleBoards = append(data.ArticleBoards, ArticleBoard{ArticleID: toInt64(v[0]), BoardID: toInt64(v[1])})
	}); err != nil {
		return nil, err
	}

	wanted, err := data.WantedStates()
	if err != nil {
		return nil, err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(wanted)), ",")
	args := make([]any, len(wanted))
	for i, id := range wanted {
		args[i] = id
	}
	if err := load("article states", `
SELECT article_state_id, article_id, state_id, board_id
  FROM ebms_article_state
 WHERE active_status = 'A'
   AND state_id IN (`+placeholders+`)`, func(v []any) {
		data.ArticleStates = append(data.ArticleStates, ArticleState{
			ArticleStateID: toInt64(v[0]),
			ArticleID:      toInt64(v[1]),
			StateID:        toInt64(v[2]),
			BoardID:        toInt64(v[3]),
		})
	}, args...); err != nil {
		return nil, err
	}

	if err := load("decision values", "SELECT value_id, value_name FROM ebms_article_board_decision_value", func(v []any) {
		data.DecisionValues = append(data.DecisionValues, NamedID{ID: toInt64(v[0]), Name: toString(v[1])})
	}); err != nil {
		return nil, err
	}
	if err := load("board decisions", "SELECT article_state_id, decision_value_id FROM ebms_article_board_decision", func(v []any) {
		data.BoardDecisions = append(data.BoardDecisions, BoardDecision{ArticleStateID: toInt64(v[0]), DecisionValueID: toInt64(v[1])})
	}); err != nil {
		return nil, err
	}
	return data, nil
}

// WantedStates returns the state ids the report counts, in the order
// abstract yes, abstract no, full text yes, full text no, final decision.
func (d *AcceptanceData) WantedStates() ([]int64, error) {
	var ids []int64
	for _, name := range []string{StateAbstractYes, StateAbstractNo, StateFullTextYes, StateFullTextNo, StateFinalDecision} {
		id, ok := d.States[name]
		if !ok {
			return nil, fmt.Errorf("article state type %s: %w", name, ErrNotFound)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
