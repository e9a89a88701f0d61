package httpclient

import (
	"context"
	"fmt"

	"github.com/ets-berkeley-edu/myberkeley/internal/xml"
)

// DoPROPFIND performs a PROPFIND request for DAV: properties
func (c *httpClientWrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, props ...string) (*xml.MultistatusResponse, error) {
	c.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth,
		"properties", props)

	body, err := xml.Bytes((&xml.PropfindRequest{Props: props}).ToXML())
	if err != nil {
		return nil, fmt.Errorf("failed to build PROPFIND body: %w", err)
	}

	_, respBody, err := c.do(ctx, "PROPFIND", urlStr, xmlHeader(depth), body)
	if err != nil {
		return nil, err
	}

	result, err := xml.ParseMultistatus(respBody)
	if err != nil {
		c.logger.Debug("failed to parse XML response", "error", err)
		return nil, err
	}

	c.logger.Debug("PROPFIND request complete", "response_count", len(result.Responses))
	return result, nil
}
