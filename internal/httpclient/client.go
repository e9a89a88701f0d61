package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/beevik/etree"

	"github.com/ets-berkeley-edu/myberkeley/internal/metrics"
	"github.com/ets-berkeley-edu/myberkeley/internal/xml"
)

// HttpClientWrapper wraps http.Client with CalDAV-specific functionality
type HttpClientWrapper interface {
	DoPROPFIND(ctx context.Context, url string, depth int, props ...string) (*xml.MultistatusResponse, error)
	DoREPORT(ctx context.Context, url string, depth int, query *etree.Document) (*xml.MultistatusResponse, error)
	DoPUT(ctx context.Context, url string, etag string, data []byte) (newEtag string, err error)
	DoDELETE(ctx context.Context, url string, etag string) error
	DoACL(ctx context.Context, url string, acl *xml.ACLRequest) error
	DoGET(ctx context.Context, url string) ([]byte, error)
}

// StatusError is returned when the server answers with a status outside of
// 200, 201, 204 and 207.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %s", e.Method, e.URL, e.Status)
}

type httpClientWrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
}

// resolveURL resolves a URL string against the base URL
func (c *httpClientWrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	return c.baseURL.ResolveReference(ref), nil
}

// NewHttpClientWrapper creates a new client wrapper with basic auth and logging
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger) (HttpClientWrapper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClientWrapper{client: client, baseURL: baseURL, logger: logger}, nil
}

func allowedStatus(code int) bool {
	switch code {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent, http.StatusMultiStatus:
		return true
	}
	return false
}

// do sends a request and returns the response headers and body. Statuses
// outside the allowed set produce a *StatusError.
func (c *httpClientWrapper) do(ctx context.Context, method, urlStr string, header http.Header, body []byte) (http.Header, []byte, error) {
	resolvedURL, err := c.resolveURL(urlStr)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", urlStr, "error", err)
		return nil, nil, err
	}
	c.logger.Debug("resolved URL", "url", resolvedURL.String())

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, resolvedURL.String(), reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.CalDAVLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug("request failed", "method", method, "error", err)
		metrics.CalDAVRequests.WithLabelValues(method, "error").Inc()
		return nil, nil, fmt.Errorf("failed to send %s request: %w", method, err)
	}
	defer resp.Body.Close()
	metrics.CalDAVRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()

	c.logger.Debug("received response", "method", method, "status", resp.Status)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}
	if !allowedStatus(resp.StatusCode) {
		c.logger.Debug("unexpected response status",
			"status_code", resp.StatusCode,
			"status", resp.Status)
		return nil, nil, &StatusError{
			Method:     method,
			URL:        resolvedURL.String(),
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}
	return resp.Header, respBody, nil
}

func xmlHeader(depth int) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/xml; charset=utf-8")
	if depth >= 0 {
		h.Set("Depth", strconv.Itoa(depth))
	}
	return h
}
