package sparql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds a query when the backend sets none.
	DefaultTimeout = 30 * time.Second

	resultsMediaType = "application/sparql-results+json"
	maxErrorBody     = 4 << 10
)

// Term is one bound value in a result row.
type Term struct {
	// Type is "uri", "literal", "typed-literal" or "bnode".
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Results is a decoded SPARQL 1.1 JSON result set.
type Results struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]Term `json:"bindings"`
	} `json:"results"`
}

// EndpointError is returned when the endpoint answers with a non-2xx status.
type EndpointError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *EndpointError) Error() string {
	return fmt.Sprintf("sparql endpoint %s returned status %d: %s", e.Endpoint, e.Status, e.Body)
}

// Client sends SELECT queries to a SPARQL protocol endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient returns a Client for endpoint. A zero timeout uses DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the endpoint URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Select posts q as a form-encoded query and decodes the JSON results.
func (c *Client) Select(ctx context.Context, q string) (*Results, error) {
	form := url.Values{"query": {q}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", resultsMediaType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sparql request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &EndpointError{Endpoint: c.endpoint, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var results Results
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to parse sparql results: %w", err)
	}
	return &results, nil
}
