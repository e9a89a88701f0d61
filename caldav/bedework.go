package caldav

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/ets-berkeley-edu/myberkeley/internal/httpclient"
	"github.com/ets-berkeley-edu/myberkeley/internal/xml"
)

// DefaultTimeout bounds every request to the calendar server.
const DefaultTimeout = 30 * time.Second

// BedeworkConfig holds the settings of one connector.
type BedeworkConfig struct {
	Username   string
	Password   string
	ServerRoot string
	// Owner is the user whose calendar home the connector works on.
	Owner     string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// BedeworkConnector is a Connector talking CalDAV to a Bedework server.
type BedeworkConnector struct {
	client     httpclient.HttpClientWrapper
	serverRoot *url.URL
	userHome   string
	username   string
	owner      string
	logger     *slog.Logger
}

var _ Connector = (*BedeworkConnector)(nil)

// UserHome returns the calendar home of owner on serverRoot.
func UserHome(serverRoot, owner string) string {
	return strings.TrimSuffix(serverRoot, "/") + "/ucaldav/user/" + owner + "/calendar/"
}

// NewBedeworkConnector creates a connector for cfg.Owner's calendar home.
func NewBedeworkConnector(cfg BedeworkConfig, logger *slog.Logger) (*BedeworkConnector, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	root, err := url.Parse(cfg.ServerRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to parse server root %q: %w", cfg.ServerRoot, err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: httpclient.NewBasicAuthTransport(cfg.Username, cfg.Password, cfg.Transport, logger),
	}
	client, err := httpclient.NewHttpClientWrapper(httpClient, *root, logger)
	if err != nil {
		return nil, err
	}
	return &BedeworkConnector{
		client:     client,
		serverRoot: root,
		userHome:   UserHome(cfg.ServerRoot, cfg.Owner),
		username:   cfg.Username,
		owner:      cfg.Owner,
		logger:     logger.With("owner", cfg.Owner),
	}, nil
}

// translate turns a disallowed status into a BadRequestError.
func translate(err error) error {
	var se *httpclient.StatusError
	if errors.As(err, &se) {
		return &BadRequestError{StatusCode: se.StatusCode, URI: se.URL, Status: se.Status}
	}
	return err
}

func (c *BedeworkConnector) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return c.serverRoot.ResolveReference(ref).String()
}

// GetCalendarURIs lists the .ics objects in the user's calendar home.
func (c *BedeworkConnector) GetCalendarURIs(ctx context.Context) ([]*CalendarURI, error) {
	ms, err := c.client.DoPROPFIND(ctx, c.userHome, 1, "getetag")
	if err != nil {
		return nil, translate(err)
	}
	var uris []*CalendarURI
	for _, resp := range ms.Responses {
		if !strings.HasSuffix(resp.Href, ".ics") {
			continue
		}
		if len(resp.PropStats) != 1 || xml.StatusCode(resp.PropStats[0].Status) != http.StatusOK {
			continue
		}
		etag, ok := resp.PropStats[0].Props["getetag"]
		if !ok {
			continue
		}
		uri, err := NewCalendarURI(c.absolute(resp.Href), etag)
		if err != nil {
			return nil, fmt.Errorf("invalid etag date: %w", err)
		}
		uris = append(uris, uri)
	}
	return uris, nil
}

func (c *BedeworkConnector) PutCalendar(ctx context.Context, cal *ical.Calendar) (*CalendarURI, error) {
	return c.ModifyCalendar(ctx, nil, cal)
}

// ModifyCalendar writes cal at uri, deleting the previous object first. A nil
// uri creates a new object in the user's home.
func (c *BedeworkConnector) ModifyCalendar(ctx context.Context, uri *CalendarURI, cal *ical.Calendar) (*CalendarURI, error) {
	if uri == nil {
		uri = &CalendarURI{URI: c.userHome + uuid.NewString() + ".ics", Etag: time.Now().UTC()}
	} else if err := c.DeleteCalendar(ctx, uri); err != nil {
		return nil, err
	}

	data, err := EncodeCalendar(cal)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("saving calendar data", "uri", uri.URI)
	if _, err := c.client.DoPUT(ctx, uri.URI, "", []byte(data)); err != nil {
		return nil, translate(err)
	}
	if err := c.restrictPermissions(ctx, uri); err != nil {
		return nil, err
	}
	return uri, nil
}

func (c *BedeworkConnector) DeleteCalendar(ctx context.Context, uri *CalendarURI) error {
	return translate(c.client.DoDELETE(ctx, uri.URI, ""))
}

// GetCalendars fetches objects with a calendar-multiget report.
func (c *BedeworkConnector) GetCalendars(ctx context.Context, uris []*CalendarURI) ([]*CalendarWrapper, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	hrefs := make([]string, 0, len(uris))
	for _, u := range uris {
		hrefs = append(hrefs, u.URI)
	}
	return c.search(ctx, (&xml.CalendarMultiget{Hrefs: hrefs}).ToXML())
}

// SearchByDate runs a calendar-query for the criteria type and time range,
// then filters and sorts locally. Bedework does not search categories
// reliably.
func (c *BedeworkConnector) SearchByDate(ctx context.Context, criteria SearchCriteria) ([]*CalendarWrapper, error) {
	query := xml.NewComponentQuery(string(criteria.Type), criteria.Start, criteria.End)
	raw, err := c.search(ctx, query.ToXML())
	if err != nil {
		return nil, err
	}
	return ProcessResults(raw, criteria), nil
}

// HasOverdueTasks reports whether a task due before today is neither
// completed nor archived.
func (c *BedeworkConnector) HasOverdueTasks(ctx context.Context) (bool, error) {
	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	c.logger.Info("searching for overdue tasks", "end", midnight)

	wrappers, err := c.search(ctx, xml.NewComponentQuery(ical.CompToDo, time.Unix(0, 0), midnight).ToXML())
	if err != nil {
		return false, err
	}
	for _, w := range wrappers {
		if !w.IsCompleted() && !w.IsArchived() {
			return true, nil
		}
	}
	return false, nil
}

// EnsureCalendarStore makes one request against the user home, which is all
// Bedework needs to provision an account.
func (c *BedeworkConnector) EnsureCalendarStore(ctx context.Context) {
	if _, err := c.client.DoGET(ctx, c.userHome); err != nil {
		c.logger.Error("failed to ensure calendar store", "home", c.userHome, "error", err)
	}
}

func (c *BedeworkConnector) search(ctx context.Context, query *etree.Document) ([]*CalendarWrapper, error) {
	ms, err := c.client.DoREPORT(ctx, c.userHome, 1, query)
	if err != nil {
		return nil, translate(err)
	}
	var wrappers []*CalendarWrapper
	for _, resp := range ms.Responses {
		props := resp.OKProps()
		data, ok := props["calendar-data"]
		if !ok || strings.TrimSpace(data) == "" {
			continue
		}
		w, err := ParseCalendarWrapper(data, c.absolute(resp.Href), props["getetag"])
		if err != nil {
			return nil, err
		}
		wrappers = append(wrappers, w)
	}
	return wrappers, nil
}

// restrictPermissions lets the owner read and write the object while the
// administrator keeps full control.
func (c *BedeworkConnector) restrictPermissions(ctx context.Context, uri *CalendarURI) error {
	owner := "/principals/users/" + c.owner
	admin := "/principals/users/" + c.username
	acl := &xml.ACLRequest{Aces: []xml.Ace{
		{PrincipalHref: owner, Privileges: []string{xml.PrivilegeAll}},
		{PrincipalHref: owner, Grant: true, Privileges: []string{
			xml.PrivilegeRead, xml.PrivilegeReadACL, xml.PrivilegeWriteContent, xml.PrivilegeWriteProperties,
		}},
		{PrincipalHref: admin, Grant: true, Privileges: []string{xml.PrivilegeAll}},
	}}
	if err := c.client.DoACL(ctx, uri.URI, acl); err != nil {
		return fmt.Errorf("failed to set ACL on %s: %w", uri.URI, translate(err))
	}
	return nil
}
