// Package solr is a minimal JSON client for a Solr core.
package solr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ets-berkeley-edu/myberkeley/search"
)

// DateFormat is the layout of Solr date fields.
const DateFormat = "2006-01-02T15:04:05Z"

// Client talks to one Solr core over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var _ search.Index = (*Client)(nil)

// New creates a client for the core at baseURL, e.g.
// http://localhost:8983/solr/collection1.
func New(baseURL string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("failed to parse solr URL %q: %w", baseURL, err)
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

type selectResponse struct {
	Response struct {
		NumFound int               `json:"numFound"`
		Docs     []search.Document `json:"docs"`
	} `json:"response"`
	ResponseHeader struct {
		QTime int `json:"QTime"`
	} `json:"responseHeader"`
}

// Search runs q against the /select handler.
func (c *Client) Search(ctx context.Context, q search.Query) (*search.Result, error) {
	params := url.Values{}
	params.Set("q", q.Q)
	params.Set("wt", "json")
	params.Set("rows", strconv.Itoa(q.Rows))
	if q.Start > 0 {
		params.Set("start", strconv.Itoa(q.Start))
	}
	c.logger.Debug("performing query", "q", q.Q, "rows", q.Rows, "start", q.Start)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/select?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create select request: %w", err)
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var resp selectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode select response: %w", err)
	}
	c.logger.Info("query complete", "hits", len(resp.Response.Docs), "numFound", resp.Response.NumFound, "qtime_ms", resp.ResponseHeader.QTime)
	return &search.Result{NumFound: resp.Response.NumFound, Docs: resp.Response.Docs}, nil
}

// Add indexes docs and commits.
func (c *Client) Add(ctx context.Context, docs ...search.Document) error {
	if len(docs) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		m := make(map[string]any, len(doc))
		for k, v := range doc {
			if t, ok := v.(time.Time); ok {
				v = t.UTC().Format(DateFormat)
			}
			m[k] = v
		}
		out = append(out, m)
	}
	return c.update(ctx, out)
}

// DeleteByQuery removes every document matching any of queries and commits.
func (c *Client) DeleteByQuery(ctx context.Context, queries ...string) error {
	for _, q := range queries {
		if err := c.update(ctx, map[string]any{"delete": map[string]string{"query": q}}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) update(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update?commit=true&wt=json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create update request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send solr request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read solr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("solr returned status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}
