package pubmed

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

// ESearchURL is NLM's E-utilities search endpoint.
const ESearchURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/esearch.fcgi"

var (
	idPattern    = regexp.MustCompile(`<Id>(\d+)</Id>`)
	errorPattern = regexp.MustCompile(`<ERROR>(.*)</ERROR>`)
)

// NLM queries PubMed for modification dates.
type NLM struct {
	ESearch string
	HTTP    *http.Client
	Logger  *log.Logger
}

// NewNLM returns an NLM client; an empty endpoint means ESearchURL.
func NewNLM(endpoint string, timeout time.Duration) *NLM {
	if endpoint == "" {
		endpoint = ESearchURL
	}
	return &NLM{
		ESearch: endpoint,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  log.New(os.Stderr, "[nlm] ", log.LstdFlags),
	}
}

// ModifiedOn returns the PMIDs NLM reports as modified on day, in the
// order NLM lists them. The response can be very large, so it is scanned
// line by line instead of being parsed as XML.
func (n *NLM) ModifiedOn(ctx context.Context, day time.Time) ([]string, error) {
	q := url.Values{
		"db":     {"pubmed"},
		"retmax": {"50000000"},
		"term":   {day.Format("2006/01/02") + "[MDAT]"},
	}
	u := n.ESearch + "?" + q.Encode()
	n.Logger.Printf("opening %s", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := n.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query NLM: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: u, Code: resp.StatusCode}
	}

	var ids []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, "<ERROR>") {
			if m := errorPattern.FindStringSubmatch(line); m != nil {
				return nil, fmt.Errorf("%w: failure fetching MDAT info: %s", ErrRemote, m[1])
			}
			return nil, fmt.Errorf("%w: failure fetching MDAT information", ErrRemote)
		}
		if m := idPattern.FindStringSubmatch(line); m != nil {
			ids = append(ids, m[1])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read NLM response: %w", err)
	}
	return ids, nil
}
