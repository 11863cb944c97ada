// Package search provides a client for the people-search API used to source
// leads, including the per-person email reveal endpoint.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the people-search operations used by the fetch pipeline.
type Client interface {
	// SearchPeople returns one page of people matching the request.
	SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error)
	// Reveal asks for the unlocked contact details of one person. An
	// unavailable reveal is reported in the result, not as an error.
	Reveal(ctx context.Context, personID string) (*RevealResult, error)
}

// SearchRequest holds the filters for one page of results.
type SearchRequest struct {
	Titles    []string
	Locations []string
	Keywords  string
	Page      int
	PerPage   int
}

// Organization is the employer block of a person.
type Organization struct {
	Name          string `json:"name"`
	WebsiteURL    string `json:"website_url"`
	PrimaryDomain string `json:"primary_domain"`
}

// Person is one search hit.
type Person struct {
	ID           string       `json:"id"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Name         string       `json:"name"`
	Title        string       `json:"title"`
	Email        string       `json:"email"`
	EmailStatus  string       `json:"email_status"`
	LinkedInURL  string       `json:"linkedin_url"`
	City         string       `json:"city"`
	State        string       `json:"state"`
	Country      string       `json:"country"`
	Organization Organization `json:"organization"`
}

// Pagination reports the position of a page in the full result set.
type Pagination struct {
	Page         int `json:"page"`
	PerPage      int `json:"per_page"`
	TotalEntries int `json:"total_entries"`
	TotalPages   int `json:"total_pages"`
}

// SearchResponse is the parsed search API response.
type SearchResponse struct {
	People     []Person   `json:"people"`
	Pagination Pagination `json:"pagination"`
}

// RevealResult is the outcome of a reveal call.
type RevealResult struct {
	Available bool
	Person    Person
}

const lockedEmailPrefix = "email_not_unlocked@"

// IsLockedEmail reports whether an email is absent or a placeholder that
// needs a reveal.
func IsLockedEmail(email, status string) bool {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || strings.HasPrefix(email, lockedEmailPrefix) {
		return true
	}
	switch strings.ToLower(status) {
	case "locked", "unavailable":
		return true
	}
	return false
}

// Option configures the search client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit bounds the raw request rate of this client. A non-positive
// rps disables local limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *httpClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a search API client. Requests are limited to 5 req/s by
// default.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: "https://api.apollo.io/api/v1",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) SearchPeople(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	q := url.Values{}
	for _, t := range req.Titles {
		q.Add("person_titles[]", t)
	}
	for _, l := range req.Locations {
		q.Add("person_locations[]", l)
	}
	if kw := strings.TrimSpace(req.Keywords); kw != "" {
		q.Set("q_keywords", kw)
	}
	q.Set("page", strconv.Itoa(max(req.Page, 1)))
	q.Set("per_page", strconv.Itoa(max(req.PerPage, 1)))

	body, err := c.post(ctx, "search people", "/mixed_people/search", q)
	if err != nil {
		return nil, err
	}

	var resp SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "search: decode search response")
	}
	return &resp, nil
}

func (c *httpClient) Reveal(ctx context.Context, personID string) (*RevealResult, error) {
	if personID == "" {
		return &RevealResult{}, nil
	}
	q := url.Values{}
	q.Set("id", personID)
	q.Set("reveal_personal_emails", "false")

	body, err := c.post(ctx, "reveal", "/people/match", q)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.noEnrichment() {
			return &RevealResult{}, nil
		}
		return nil, err
	}

	var resp struct {
		Person *Person `json:"person"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, eris.Wrap(err, "search: decode reveal response")
	}
	if resp.Person == nil || IsLockedEmail(resp.Person.Email, resp.Person.EmailStatus) {
		return &RevealResult{}, nil
	}
	return &RevealResult{Available: true, Person: *resp.Person}, nil
}

func (c *httpClient) post(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "search: rate limit")
		}
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "search: create request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, eris.Wrapf(err, "search: %s: read body", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(op, resp.StatusCode, body)
	}
	return body, nil
}
