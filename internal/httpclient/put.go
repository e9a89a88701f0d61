package httpclient

import (
	"context"
	"net/http"
)

func (c *httpClientWrapper) DoPUT(ctx context.Context, urlStr string, etag string, data []byte) (newEtag string, err error) {
	c.logger.Debug("starting PUT request",
		"url", urlStr,
		"etag", etag,
		"data_length", len(data))

	header := http.Header{}
	if etag != "" {
		header.Set("If-Match", etag)
	}
	header.Set("Content-Type", "text/calendar; charset=utf-8")

	respHeader, _, err := c.do(ctx, http.MethodPut, urlStr, header, data)
	if err != nil {
		return "", err
	}

	newEtag = respHeader.Get("ETag")
	c.logger.Debug("PUT request complete", "new_etag", newEtag)
	return newEtag, nil
}
