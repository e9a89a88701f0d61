package httpclient

import (
	"context"
	"fmt"

	"github.com/beevik/etree"

	"github.com/ets-berkeley-edu/myberkeley/internal/xml"
)

// DoREPORT executes a CalDAV REPORT request
func (c *httpClientWrapper) DoREPORT(ctx context.Context, urlStr string, depth int, query *etree.Document) (*xml.MultistatusResponse, error) {
	c.logger.Debug("starting REPORT request",
		"url", urlStr,
		"depth", depth)

	body, err := xml.Bytes(query)
	if err != nil {
		c.logger.Debug("failed to marshal query", "error", err)
		return nil, fmt.Errorf("failed to marshal REPORT query: %w", err)
	}

	_, respBody, err := c.do(ctx, "REPORT", urlStr, xmlHeader(depth), body)
	if err != nil {
		return nil, err
	}

	result, err := xml.ParseMultistatus(respBody)
	if err != nil {
		c.logger.Debug("failed to decode response", "error", err)
		return nil, err
	}

	c.logger.Debug("REPORT request complete",
		"response_count", len(result.Responses))
	return result, nil
}
