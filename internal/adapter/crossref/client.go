// Package crossref resolves DOIs against the Crossref REST API.
package crossref

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/couchcryptid/lcat-climate-service/internal/domain"
)

const defaultBaseURL = "https://api.crossref.org/works"

// ErrNotRegistered is returned for a DOI Crossref does not know.
var ErrNotRegistered = errors.New("doi not registered with crossref")

// Client implements domain.CitationResolver.
type Client struct {
	httpClient *http.Client
	baseURL    string
	mailto     string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a Crossref client. mailto, when set, is sent with every
// request so Crossref routes it to its polite pool. requestsPerSecond caps
// the outbound request rate; zero or less disables the limit.
func NewClient(mailto string, timeout time.Duration, requestsPerSecond float64, logger *slog.Logger) *Client {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(math.Ceil(requestsPerSecond)))
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		mailto:     mailto,
		limiter:    rate.NewLimiter(limit, burst),
		logger:     logger,
	}
}

// ResolveDOI fetches the work registered for doi. A "doi:" prefix or a
// doi.org URL is accepted.
func (c *Client) ResolveDOI(ctx context.Context, doi string) (domain.Citation, error) {
	doi = normalizeDOI(doi)
	if doi == "" {
		return domain.Citation{}, fmt.Errorf("%w: empty doi", domain.ErrInvalidParameter)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.Citation{}, fmt.Errorf("crossref rate limit: %w", err)
		}
	}

	u := c.baseURL + "/" + url.PathEscape(doi)
	if c.mailto != "" {
		u += "?" + url.Values{"mailto": {c.mailto}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Citation{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Citation{}, fmt.Errorf("crossref request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.Citation{}, fmt.Errorf("%w: %s", ErrNotRegistered, doi)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("crossref request failed", "doi", doi, "status", resp.StatusCode)
		return domain.Citation{}, fmt.Errorf("crossref API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Citation{}, fmt.Errorf("read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return domain.Citation{}, errors.New("crossref response is not valid JSON")
	}
	return parseWork(gjson.GetBytes(body, "message")), nil
}

func parseWork(msg gjson.Result) domain.Citation {
	c := domain.Citation{
		Title:   strings.TrimSpace(msg.Get("title.0").String()),
		Authors: contributors(msg.Get("author")),
		Date:    year(msg),
		Journal: strings.TrimSpace(msg.Get("container-title.0").String()),
		Issue:   volumeIssue(msg.Get("volume").String(), msg.Get("issue").String()),
	}
	if c.Authors == "" {
		c.Authors = contributors(msg.Get("editor"))
	}
	return c
}

// contributors joins people as "Given Family" and organisations by name.
func contributors(list gjson.Result) string {
	var names []string
	list.ForEach(func(_, p gjson.Result) bool {
		if name := p.Get("name").String(); name != "" {
			names = append(names, name)
			return true
		}
		full := strings.TrimSpace(p.Get("given").String() + " " + p.Get("family").String())
		if full != "" {
			names = append(names, full)
		}
		return true
	})
	return strings.Join(names, ", ")
}

// year prefers the print publication date.
func year(msg gjson.Result) string {
	for _, path := range []string{"published-print", "issued", "published-online"} {
		if y := msg.Get(path + ".date-parts.0.0"); y.Exists() && y.Int() > 0 {
			return y.String()
		}
	}
	return ""
}

func volumeIssue(volume, issue string) string {
	switch {
	case volume != "" && issue != "":
		return volume + "(" + issue + ")"
	case volume != "":
		return volume
	default:
		return issue
	}
}

func normalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if len(doi) >= len(prefix) && strings.EqualFold(doi[:len(prefix)], prefix) {
			return strings.TrimSpace(doi[len(prefix):])
		}
	}
	return doi
}
