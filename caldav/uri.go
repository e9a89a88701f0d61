package caldav

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ets-berkeley-edu/myberkeley/internal/isodate"
)

// bedeworkEtagLayout is the timestamp prefix of Bedework etags such as
// "20110103T194517Z-1".
const bedeworkEtagLayout = "20060102T150405"

// CalendarURI locates a calendar object and records when it last changed.
type CalendarURI struct {
	URI  string
	Etag time.Time
}

// NewCalendarURI parses etag as ISO8601, falling back to the Bedework format.
func NewCalendarURI(uri, etag string) (*CalendarURI, error) {
	t, err := ParseEtag(etag)
	if err != nil {
		return nil, err
	}
	return &CalendarURI{URI: uri, Etag: t}, nil
}

// ParseEtag reads an etag timestamp.
func ParseEtag(etag string) (time.Time, error) {
	if t, err := isodate.Parse(etag); err == nil {
		return t, nil
	}
	raw := strings.ReplaceAll(etag, `"`, "")
	if len(raw) < len(bedeworkEtagLayout) {
		return time.Time{}, fmt.Errorf("invalid etag %q", etag)
	}
	t, err := time.Parse(bedeworkEtagLayout, raw[:len(bedeworkEtagLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid etag %q: %w", etag, err)
	}
	return t, nil
}

func (u *CalendarURI) String() string {
	return u.URI
}

type calendarURIJSON struct {
	URI  string `json:"uri"`
	Etag string `json:"etag"`
}

func (u CalendarURI) MarshalJSON() ([]byte, error) {
	return json.Marshal(calendarURIJSON{URI: u.URI, Etag: isodate.Format(u.Etag)})
}

func (u *CalendarURI) UnmarshalJSON(data []byte) error {
	var raw calendarURIJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t, err := isodate.Parse(raw.Etag)
	if err != nil {
		return err
	}
	u.URI = raw.URI
	u.Etag = t
	return nil
}
