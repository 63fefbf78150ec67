package socrata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opawatch/tracker/pkg/common/httpclient"
)

// Row is one loosely-typed record from a Socrata dataset. Field values are
// whatever the JSON decoder produced; nothing here is trusted until it has
// passed validation.
type Row map[string]interface{}

// String returns the field as a string, or "" when absent or not a string.
func (r Row) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Map returns a nested object field, or an empty Row when absent.
func (r Row) Map(key string) Row {
	if v, ok := r[key].(map[string]interface{}); ok {
		return Row(v)
	}
	return Row{}
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    httpclient.New(timeout),
	}
}

// QueryURL builds the dataset URL for a SoQL query.
func (c *Client) QueryURL(dataset, soql string) string {
	return fmt.Sprintf("%s/api/id/%s.json?$query=%s", c.baseURL, dataset, url.QueryEscape(soql))
}

// Fetch retrieves rawURL and decodes the body as a JSON array of rows.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]Row, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building source request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching source rows: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source returned status %d", resp.StatusCode)
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding source rows: %w", err)
	}

	return rows, nil
}
