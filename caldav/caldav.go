// Package caldav keeps MyBerkeley tasks and events in a CalDAV server (Bedework)
// or in the content repository, and exposes them to the portal as JSON.
package caldav

import (
	"context"
	"errors"
	"fmt"

	"github.com/emersion/go-ical"
)

// Categories and statuses the portal uses to track items.
const (
	CategoryRequired = "MyBerkeley-Required"
	CategoryArchived = "MyBerkeley-Archived"
	CategoryRead     = "MyBerkeley-Read"

	StatusCompleted   = "COMPLETED"
	StatusNeedsAction = "NEEDS-ACTION"
)

// ErrUnsupportedComponent is returned for calendars without a VEVENT or VTODO.
var ErrUnsupportedComponent = errors.New("unsupported calendar component")

// BadRequestError reports a CalDAV response outside of the accepted statuses.
type BadRequestError struct {
	StatusCode int
	URI        string
	Status     string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request on uri %s; status=%s", e.URI, e.Status)
}

// IsNotFound reports whether err is a BadRequestError for a 404.
func IsNotFound(err error) bool {
	var bre *BadRequestError
	return errors.As(err, &bre) && bre.StatusCode == 404
}

// Connector reads and writes one user's calendar.
type Connector interface {
	// PutCalendar stores a new calendar object and returns its URI.
	PutCalendar(ctx context.Context, cal *ical.Calendar) (*CalendarURI, error)
	// ModifyCalendar replaces the object at uri, or creates one when uri is nil.
	ModifyCalendar(ctx context.Context, uri *CalendarURI, cal *ical.Calendar) (*CalendarURI, error)
	DeleteCalendar(ctx context.Context, uri *CalendarURI) error
	// GetCalendars loads the objects at uris. Missing objects are skipped by
	// the embedded stores.
	GetCalendars(ctx context.Context, uris []*CalendarURI) ([]*CalendarWrapper, error)
	// SearchByDate returns the filtered and sorted objects matching criteria.
	SearchByDate(ctx context.Context, criteria SearchCriteria) ([]*CalendarWrapper, error)
	HasOverdueTasks(ctx context.Context) (bool, error)
	GetCalendarURIs(ctx context.Context) ([]*CalendarURI, error)
	// EnsureCalendarStore creates the user's calendar home if needed. Failures
	// are logged.
	EnsureCalendarStore(ctx context.Context)
}

// Provider hands out connectors for calendar owners.
type Provider interface {
	// AdminConnector returns a connector acting as the administrator on
	// owner's calendar.
	AdminConnector(owner string) (Connector, error)
	// Connector returns a connector authenticated as username.
	Connector(username, password string) (Connector, error)
}
