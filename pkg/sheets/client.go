// Package sheets is a minimal client for the Google Sheets v4 values API:
// reading and rewriting the header row and appending data rows.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the spreadsheet operations used by the lead writer.
type Client interface {
	// EnsureHeader makes row 1 of the sheet equal header. It reports whether
	// the row had to be rewritten.
	EnsureHeader(ctx context.Context, spreadsheetID, sheet string, header []string) (bool, error)
	// AppendRows appends rows after the last data row and returns the number
	// of rows the API reports as written.
	AppendRows(ctx context.Context, spreadsheetID, sheet string, rows [][]string) (int, error)
}

// Option configures the sheets client.
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

type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a Sheets client authenticated with an OAuth bearer token.
func NewClient(accessToken string, opts ...Option) Client {
	c := &httpClient{
		token:   accessToken,
		baseURL: "https://sheets.googleapis.com/v4",
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

type appendResponse struct {
	Updates struct {
		UpdatedRows int `json:"updatedRows"`
	} `json:"updates"`
}

func (c *httpClient) EnsureHeader(ctx context.Context, spreadsheetID, sheet string, header []string) (bool, error) {
	body, err := c.do(ctx, "read header", http.MethodGet, c.valuesURL(spreadsheetID, a1(sheet, "1:1"), ""), nil)
	if err != nil {
		return false, err
	}

	var current valueRange
	if err := json.Unmarshal(body, &current); err != nil {
		return false, eris.Wrap(err, "sheets: decode header")
	}
	if len(current.Values) > 0 && slices.Equal(current.Values[0], header) {
		return false, nil
	}

	q := url.Values{}
	q.Set("valueInputOption", "RAW")
	payload := valueRange{Range: a1(sheet, "A1"), Values: [][]string{header}}
	if _, err := c.do(ctx, "write header", http.MethodPut, c.valuesURL(spreadsheetID, a1(sheet, "A1"), "?"+q.Encode()), payload); err != nil {
		return false, err
	}
	return true, nil
}

func (c *httpClient) AppendRows(ctx context.Context, spreadsheetID, sheet string, rows [][]string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	q := url.Values{}
	q.Set("valueInputOption", "RAW")
	q.Set("insertDataOption", "INSERT_ROWS")
	body, err := c.do(ctx, "append", http.MethodPost,
		c.valuesURL(spreadsheetID, a1(sheet, "A1"), ":append?"+q.Encode()),
		valueRange{Values: rows})
	if err != nil {
		return 0, err
	}

	var resp appendResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, eris.Wrap(err, "sheets: decode append response")
	}
	return resp.Updates.UpdatedRows, nil
}

func (c *httpClient) valuesURL(spreadsheetID, rng, suffix string) string {
	return fmt.Sprintf("%s/spreadsheets/%s/values/%s%s",
		c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(rng), suffix)
}

func (c *httpClient) do(ctx context.Context, op, method, reqURL string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrapf(err, "sheets: %s: marshal", op)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: %s", op)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: %s: read body", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(op, resp.StatusCode, body)
	}
	return body, nil
}

// a1 builds an A1 range on a named sheet, quoting the name.
func a1(sheet, cells string) string {
	if sheet == "" {
		return cells
	}
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'!" + cells
}
