package pubmed

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// DateLayout is the layout of data_mod values and date arguments.
const DateLayout = "2006-01-02"

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// ParseDate accepts YYYY-MM-DD or a natural phrase such as "yesterday"
// or "last monday", resolved relative to base. The result is a calendar
// day at midnight UTC.
func ParseDate(s string, base time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrBadDate)
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	r, err := parser.Parse(s, base)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrBadDate, s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("%w %q", ErrBadDate, s)
	}
	return Day(r.Time), nil
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
