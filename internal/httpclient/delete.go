package httpclient

import (
	"context"
	"net/http"
)

// DoDELETE sends a DELETE request, with an If-Match header when etag is set
func (c *httpClientWrapper) DoDELETE(ctx context.Context, urlStr string, etag string) error {
	c.logger.Debug("starting DELETE request",
		"url", urlStr,
		"etag", etag)

	header := http.Header{}
	if etag != "" {
		header.Set("If-Match", etag)
	}

	if _, _, err := c.do(ctx, http.MethodDelete, urlStr, header, nil); err != nil {
		return err
	}

	c.logger.Debug("DELETE request complete", "url", urlStr)
	return nil
}
