package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ets-berkeley-edu/myberkeley/internal/xml"
)

// DoACL replaces the access control list of a resource
func (c *httpClientWrapper) DoACL(ctx context.Context, urlStr string, acl *xml.ACLRequest) error {
	c.logger.Debug("starting ACL request", "url", urlStr, "aces", len(acl.Aces))

	body, err := xml.Bytes(acl.ToXML())
	if err != nil {
		return fmt.Errorf("failed to build ACL body: %w", err)
	}
	if _, _, err := c.do(ctx, "ACL", urlStr, xmlHeader(-1), body); err != nil {
		return err
	}
	return nil
}

// DoGET fetches a resource body
func (c *httpClientWrapper) DoGET(ctx context.Context, urlStr string) ([]byte, error) {
	c.logger.Debug("starting GET request", "url", urlStr)

	_, body, err := c.do(ctx, http.MethodGet, urlStr, nil, nil)
	if err != nil {
		return nil, err
	}
	return body, nil
}
