// Package pubmed keeps the EBMS copy of PubMed article XML current.
//
// The scheduled job asks the EBMS web application for its catalog of
// PubMed articles, asks NLM which of them were modified on each day since
// the last run, records those modification dates in the web application,
// and then has the web application refetch the modified XML.
package pubmed

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nciocpl/ebms/internal/retry"
)

// Source is the article source name used by the web application.
const Source = "Pubmed"

// FloorModDate is used when no article has a data_mod value yet.
const FloorModDate = "2011-01-01"

// Article is one catalog entry from the web application.
type Article struct {
	Fetched string // date the XML was last fetched
	DataMod string // NLM modification date on record, "" if none
}

// Catalog maps PMID to article.
type Catalog map[string]Article

// Client talks to the EBMS web application.
type Client struct {
	BaseURL string // e.g. https://ebms.nci.nih.gov
	HTTP    *http.Client
	Retry   retry.Policy
	Logger  *log.Logger
}

// NewClient returns a client for host using scheme (normally https).
func NewClient(scheme, host string, timeout time.Duration, policy retry.Policy) *Client {
	if scheme == "" {
		scheme = "https"
	}
	return &Client{
		BaseURL: scheme + "://" + host,
		HTTP:    &http.Client{Timeout: timeout},
		Retry:   policy,
		Logger:  log.New(os.Stderr, "[pubmed] ", log.LstdFlags),
	}
}

// Articles fetches the catalog of PubMed articles and the latest data_mod
// value in it (FloorModDate if none is set). Transport failures are
// retried per c.Retry; a non-200 answer is not.
func (c *Client) Articles(ctx context.Context) (Catalog, string, error) {
	u := c.BaseURL + "/get-source-ids/" + Source
	policy := c.Retry
	policy.Notify = func(err error, wait time.Duration, remaining int) {
		c.Logger.Printf("%s: %v", u, err)
		c.Logger.Printf("%d tries left; waiting %s", remaining, wait)
	}

	body, err := retry.Do(ctx, policy, func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, retry.Permanent(fmt.Errorf("failure fetching article information: %w",
				&StatusError{URL: u, Code: resp.StatusCode}))
		}
		return io.ReadAll(resp.Body)
	})
	if err != nil {
		return nil, "", err
	}

	catalog, latest := c.parseCatalog(string(body))
	c.Logger.Printf("received %d PMIDs; latest_mod=%s", len(catalog), latest)
	return catalog, latest, nil
}

func (c *Client) parseCatalog(body string) (Catalog, string) {
	catalog := make(Catalog)
	latest := FloorModDate
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Split(strings.TrimSpace(line), "\t")
		var mod string
		switch len(fields) {
		case 2:
		case 3:
			mod = fields[2]
			if mod > latest {
				latest = mod
			}
		default:
			c.Logger.Printf("skipping malformed catalog line %q", line)
			continue
		}
		catalog[fields[0]] = Article{Fetched: fields[1], DataMod: mod}
	}
	return catalog, latest
}

// PostModified records date as the data_mod value for ids.
func (c *Client) PostModified(ctx context.Context, date time.Time, ids []string) error {
	u := c.BaseURL + "/update-source-mod"
	form := url.Values{
		"date":   {date.Format(DateLayout)},
		"source": {Source},
		"ids":    {strings.Join(ids, "\t")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post modification dates: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: u, Code: resp.StatusCode}
	}
	return nil
}

// RefreshXML asks the web application to refetch modified XML, one batch
// per request, until it reports nothing remaining. It returns the number
// of requests made.
func (c *Client) RefreshXML(ctx context.Context) (int, error) {
	u := c.BaseURL + "/refresh-xml/" + Source
	for calls := 1; ; calls++ {
		if err := ctx.Err(); err != nil {
			return calls - 1, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return calls - 1, err
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			return calls - 1, fmt.Errorf("failed to refresh XML: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return calls, fmt.Errorf("failed to read refresh response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return calls, &StatusError{URL: u, Code: resp.StatusCode}
		}
		remaining, err := strconv.Atoi(strings.TrimSpace(string(body)))
		if err != nil {
			return calls, fmt.Errorf("%w: unexpected refresh response %q", ErrRemote, body)
		}
		if remaining == 0 {
			return calls, nil
		}
		c.Logger.Printf("%d articles left to refresh", remaining)
	}
}
