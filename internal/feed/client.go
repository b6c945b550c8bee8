package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.sam.gov/opportunities/v2/search"

	defaultLimit = 100
	maxLimit     = 1000

	// A 429 without a usable Retry-After header waits this long; a
	// header demanding more is capped here to bound task latency.
	defaultRetryAfter = 60 * time.Second
	maxRetryAfter     = 60 * time.Second
)

// Client talks to the opportunity listing feed. It owns retries,
// backoff, and rate-limit handling; parsing the returned records is
// the parser's job.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Policy     Policy
	Sleep      Sleeper
	Cooldown   CooldownStore
	Clock      Clock
}

// NewClient builds a Client with production defaults and an in-memory
// cooldown store. Swap Cooldown for a RedisCooldown when multiple
// workers share one API quota.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    defaultBaseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Policy:     DefaultPolicy(),
		Sleep:      SystemSleeper,
		Cooldown:   NewMemoryCooldown(SystemClock),
		Clock:      SystemClock,
	}
}

type searchResponse struct {
	TotalRecords      int                `json:"totalRecords"`
	OpportunitiesData []RawListingRecord `json:"opportunitiesData"`
}

// Search runs one feed query, retrying transient failures under the
// client's policy. A missing API key is a configuration error and is
// never retried.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]RawListingRecord, error) {
	if c.APIKey == "" {
		return nil, &FeedAPIError{Body: "feed API key not configured", Retryable: false}
	}

	query := c.buildQuery(params)

	var records []RawListingRecord
	err := Do(ctx, c.Policy, c.Sleep, func() error {
		recs, err := c.attempt(ctx, query)
		if err != nil {
			return err
		}
		records = recs
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Feed] Search returned %d records (keyword=%q daysBack=%d)", len(records), params.Keyword, params.DaysBack)
	return records, nil
}

// attempt performs a single HTTP round trip, honoring any active
// shared cooldown first.
func (c *Client) attempt(ctx context.Context, query url.Values) ([]RawListingRecord, error) {
	if c.Cooldown != nil {
		until, active, err := c.Cooldown.Active(ctx)
		if err != nil {
			log.Printf("[Feed] Cooldown check failed, proceeding: %v", err)
		} else if active {
			wait := until.Sub(c.now())
			if wait > maxRetryAfter {
				wait = maxRetryAfter
			}
			log.Printf("[Feed] Shared cooldown active, waiting %s", wait.Round(time.Second))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		body, _ := io.ReadAll(resp.Body)
		wait := parseRetryAfter(resp.Header.Get("Retry-After"), c.now())
		log.Printf("[Feed] Rate limited (429), honoring Retry-After of %s", wait.Round(time.Second))

		if c.Cooldown != nil {
			if err := c.Cooldown.Set(ctx, c.now().Add(wait)); err != nil {
				log.Printf("[Feed] Failed to record cooldown: %v", err)
			}
		}
		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		return nil, &FeedAPIError{StatusCode: resp.StatusCode, Body: string(body), Retryable: true}
	}

	if resp.StatusCode >= 500 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &FeedAPIError{StatusCode: resp.StatusCode, Body: string(body), Retryable: true}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &FeedAPIError{StatusCode: resp.StatusCode, Body: string(body), Retryable: false}
	}

	var apiResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decoding feed response: %w", err)
	}

	return apiResp.OpportunitiesData, nil
}

func (c *Client) buildQuery(params SearchParams) url.Values {
	daysBack := params.DaysBack
	if daysBack <= 0 {
		daysBack = 1
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	sort := params.Sort
	if sort == "" {
		sort = "-modifiedDate"
	}

	now := c.now()
	q := url.Values{}
	q.Set("api_key", c.APIKey)
	q.Set("postedFrom", now.AddDate(0, 0, -daysBack).Format("01/02/2006"))
	q.Set("postedTo", now.Format("01/02/2006"))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("sortBy", sort)
	if params.Keyword != "" {
		q.Set("keywords", params.Keyword)
	}
	if params.NoticeID != "" {
		q.Set("noticeid", params.NoticeID)
	}
	if len(params.PTypes) > 0 {
		q.Set("ptype", strings.Join(params.PTypes, ","))
	}
	if len(params.NAICSCodes) > 0 {
		q.Set("ncode", strings.Join(params.NAICSCodes, ","))
	}
	if len(params.SetAsides) > 0 {
		q.Set("typeOfSetAside", strings.Join(params.SetAsides, ","))
	}
	return q
}

func (c *Client) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now()
	}
	return time.Now()
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	return SystemSleeper(ctx, d)
}

// parseRetryAfter interprets a Retry-After header as either an integer
// second count or an HTTP date. Missing or unparseable headers fall
// back to the default wait; all results are capped.
func parseRetryAfter(header string, now time.Time) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return defaultRetryAfter
	}

	wait := defaultRetryAfter
	if secs, err := strconv.Atoi(header); err == nil {
		wait = time.Duration(secs) * time.Second
	} else if at, err := http.ParseTime(header); err == nil {
		wait = at.Sub(now)
	}

	if wait < 0 {
		wait = 0
	}
	if wait > maxRetryAfter {
		wait = maxRetryAfter
	}
	return wait
}
