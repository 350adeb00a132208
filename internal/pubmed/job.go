package pubmed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/nciocpl/ebms/internal/notify"
)

// ReportSubject is the subject line of the job's email report.
const ReportSubject = "Update of XML from Pubmed"

// Job is one scheduled refresh run.
type Job struct {
	Host    string
	Client  *Client
	Updater *Updater
	Mailer  notify.Mailer // nil disables the report
	Logger  *log.Logger

	// LatestMod overrides the first day to check; zero means the latest
	// data_mod value in the catalog.
	LatestMod time.Time
	// Stop overrides the day to stop before; zero means today - StopLag.
	Stop    time.Time
	StopLag time.Duration
	Now     func() time.Time
}

// Run fetches the catalog, updates modification dates, refreshes the
// modified XML, and emails a report. On failure the report reads
// "Failure: ..." and the error is returned.
func (j *Job) Run(ctx context.Context) (string, error) {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	logger := j.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	start := now()
	logger.Printf("job started for %s", j.Host)

	report, err := j.run(ctx, now, logger)
	if err != nil {
		logger.Printf("%v", err)
		notify.Report(ctx, j.Mailer, logger, ReportSubject, j.Host+"\nFailure: "+err.Error())
		return "", err
	}

	report += fmt.Sprintf("\nElapsed: %s", now().Sub(start).Round(time.Millisecond))
	notify.Report(ctx, j.Mailer, logger, ReportSubject, j.Host+"\n"+report)
	return report, nil
}

func (j *Job) run(ctx context.Context, now func() time.Time, logger *log.Logger) (string, error) {
	catalog, latest, err := j.Client.Articles(ctx)
	if err != nil {
		return "", err
	}
	first := j.LatestMod
	if first.IsZero() {
		if first, err = time.Parse(DateLayout, latest); err != nil {
			return "", fmt.Errorf("%w: latest data_mod %q", ErrBadDate, latest)
		}
	} else {
		logger.Printf("latest_mod is now %s", first.Format(DateLayout))
	}
	stop := j.Stop
	if stop.IsZero() {
		stop = Day(now()).Add(-j.StopLag)
	} else {
		logger.Printf("stop date is %s", stop.Format(DateLayout))
	}

	modReport, err := j.Updater.UpdateModDates(ctx, catalog, first, stop)
	if err != nil {
		return "", err
	}
	logger.Print(modReport)

	refreshReport := "All modified XML has been refreshed."
	if _, err := j.Client.RefreshXML(ctx); err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			return "", err
		}
		refreshReport = fmt.Sprintf("Failure refreshing XML (code %d)", se.Code)
	}
	logger.Print(refreshReport)

	return strings.Join([]string{modReport, refreshReport}, "\n"), nil
}
