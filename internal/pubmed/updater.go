package pubmed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"
)

// DefaultBatchSize is the most PMIDs the web application accepts per POST.
const DefaultBatchSize = 100

// ModSource reports which PMIDs were modified on a day.
type ModSource interface {
	ModifiedOn(ctx context.Context, day time.Time) ([]string, error)
}

// ModSink records modification dates.
type ModSink interface {
	PostModified(ctx context.Context, date time.Time, ids []string) error
}

// Updater brings the web application's data_mod column up to date.
type Updater struct {
	NLM       ModSource
	Web       ModSink
	BatchSize int
	DayPause  time.Duration // pause between days, to be polite to NLM
	Logger    *log.Logger
}

// UpdateModDates walks each day in [first, stop), asks NLM what changed
// that day, and posts the PMIDs in catalog whose data_mod is not already
// that day. It returns a one-line summary. A POST rejected by the web
// application ends the pass with a failure summary rather than an error;
// transport and NLM failures are returned as errors.
func (u *Updater) UpdateModDates(ctx context.Context, catalog Catalog, first, stop time.Time) (string, error) {
	logger := u.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	batch := u.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	first, stop = Day(first), Day(stop)
	logger.Printf("updating data_mod from %s to %s", first.Format(DateLayout), stop.Format(DateLayout))
	if !first.Before(stop) {
		return fmt.Sprintf("The data_mod column is up to date (as of %s)", first.Format(DateLayout)), nil
	}

	total := 0
	last := first
	for day := first; day.Before(stop); day = day.AddDate(0, 0, 1) {
		if day.After(first) {
			if err := pause(ctx, u.DayPause); err != nil {
				return "", err
			}
		}
		last = day
		ids, err := u.NLM.ModifiedOn(ctx, day)
		if err != nil {
			return "", err
		}
		stamp := day.Format(DateLayout)
		var mod []string
		for _, id := range ids {
			if a, ok := catalog[id]; ok && a.DataMod != stamp {
				mod = append(mod, id)
			}
		}
		logger.Printf("%d modified articles found for %s", len(mod), stamp)

		for offset := 0; offset < len(mod); offset += batch {
			end := min(offset+batch, len(mod))
			if err := u.Web.PostModified(ctx, day, mod[offset:end]); err != nil {
				var se *StatusError
				if errors.As(err, &se) {
					msg := fmt.Sprintf("Failure updating data_mod column for %s (code %d)", stamp, se.Code)
					logger.Print(msg)
					return msg, nil
				}
				return "", err
			}
		}
		total += len(mod)
	}
	return fmt.Sprintf("Updated data_mod column in %d rows (%s--%s)",
		total, first.Format(DateLayout), last.Format(DateLayout)), nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
