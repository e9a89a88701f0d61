package caldav

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCalendarWrapper(t *testing.T) {
	w, err := ParseCalendarWrapper(sampleTask, "http://cal/a.ics", `"20110103T194517Z-1"`)
	require.NoError(t, err)

	assert.Equal(t, ical.CompToDo, w.ComponentName())
	assert.Equal(t, "task-1", w.UID())
	assert.Equal(t, "Submit forms", w.Summary())
	assert.Equal(t, "Fill them out", w.Description())
	assert.True(t, w.IsRequired())
	assert.False(t, w.IsArchived())
	assert.False(t, w.IsCompleted())
	assert.Equal(t, time.Date(2011, 1, 15, 17, 0, 0, 0, time.UTC), w.SortDate())
}

func TestParseCalendarWrapper_Unsupported(t *testing.T) {
	data := "BEGIN:VCALENDAR\r\nPRODID:-//Test//EN\r\nVERSION:2.0\r\n" +
		"BEGIN:VJOURNAL\r\nUID:j\r\nDTSTAMP:20110103T194517Z\r\nEND:VJOURNAL\r\nEND:VCALENDAR\r\n"
	_, err := ParseCalendarWrapper(data, "/a.ics", "2011-01-03T19:45:17.000Z")
	assert.True(t, errors.Is(err, ErrUnsupportedComponent))
}

func TestWrapper_ToJSON(t *testing.T) {
	w, err := ParseCalendarWrapper(sampleTask, "http://cal/a.ics", `"20110103T194517Z-1"`)
	require.NoError(t, err)

	j := w.ToJSON()
	assert.Equal(t, "http://cal/a.ics", j.URI)
	assert.Equal(t, "2011-01-03T19:45:17.000Z", j.Etag)
	assert.Equal(t, "VTODO", j.Component)
	assert.True(t, j.IsRequired)
	assert.False(t, j.IsCompleted)
	assert.Equal(t, "2011-01-15T17:00:00.000Z", j.ICalData["DUE"])
	assert.Equal(t, "Submit forms", j.ICalData["SUMMARY"])

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"icalData"`)
	assert.Contains(t, string(data), `"isRead":false`)
}

func TestFromJSON(t *testing.T) {
	w := newTestWrapper(t, ical.CompEvent, map[string]any{
		"SUMMARY":    "Advising",
		"DTSTART":    "2011-01-10T10:00:00.000-08:00",
		"DTEND":      "2011-01-10T11:00:00.000-08:00",
		"DTSTAMP":    "2011-01-01T00:00:00.000Z",
		"CATEGORIES": []any{CategoryRequired, CategoryRead},
	})

	assert.Equal(t, ProductID, w.Calendar().Props.Get(ical.PropProductID).Value)
	assert.Equal(t, "2.0", w.Calendar().Props.Get(ical.PropVersion).Value)
	assert.Equal(t, "GREGORIAN", w.Calendar().Props.Get(ical.PropCalendarScale).Value)

	var names []string
	for _, child := range w.Calendar().Children {
		names = append(names, child.Name)
	}
	assert.Equal(t, []string{ical.CompTimezone, ical.CompEvent}, names)

	start, ok := w.Date(ical.PropDateTimeStart)
	require.True(t, ok)
	assert.Equal(t, time.Date(2011, 1, 10, 18, 0, 0, 0, time.UTC), start)
	assert.Equal(t, "20110110T180000Z", w.Component().Props.Get(ical.PropDateTimeStart).Value)
	assert.Len(t, w.Component().Props[ical.PropDateTimeStamp], 1)
	assert.NotEmpty(t, w.UID())
	assert.True(t, w.IsRequired())
	assert.True(t, w.IsRead())
	assert.False(t, w.IsArchived())
}

func TestFromJSON_Errors(t *testing.T) {
	_, err := FromJSON("/a.ics", "2011-01-03T19:45:17.000Z", "VJOURNAL", map[string]any{})
	assert.True(t, errors.Is(err, ErrUnsupportedComponent))

	_, err = FromJSON("/a.ics", "yesterday", ical.CompEvent, map[string]any{})
	assert.Error(t, err)
}

func TestParseWrapperJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"uri":"/a.ics","etag":"2011-01-03T19:45:17.000Z","component":"VTODO","icalData":{"SUMMARY":"x"}}`, false},
		{"missing uri", `{"etag":"2011-01-03T19:45:17.000Z","component":"VTODO","icalData":{}}`, true},
		{"missing icalData", `{"uri":"/a.ics","etag":"2011-01-03T19:45:17.000Z","component":"VTODO"}`, true},
		{"not json", `{`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ParseWrapperJSON([]byte(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "x", w.Summary())
		})
	}
}

func TestWrapper_ToggleCategory(t *testing.T) {
	w := newTestWrapper(t, ical.CompToDo, map[string]any{"CATEGORIES": CategoryRequired})

	w.ToggleCategory(CategoryArchived, true)
	assert.True(t, w.IsArchived())
	assert.True(t, w.IsRequired())

	w.ToggleCategory(CategoryArchived, true)
	assert.Len(t, w.Component().Props[ical.PropCategories], 2)

	w.ToggleCategory(CategoryArchived, false)
	assert.False(t, w.IsArchived())
	assert.True(t, w.IsRequired())

	w.ToggleCategory(CategoryRequired, false)
	assert.Nil(t, w.Component().Props.Get(ical.PropCategories))
}

func TestWrapper_ToggleCategory_SharedProperty(t *testing.T) {
	w := newTestWrapper(t, ical.CompToDo, map[string]any{})
	p := ical.NewProp(ical.PropCategories)
	p.Value = CategoryRequired + "," + CategoryRead
	w.Component().Props.Set(p)

	w.ToggleCategory(CategoryRead, false)
	assert.True(t, w.IsRequired())
	assert.False(t, w.IsRead())
	assert.Equal(t, CategoryRequired, w.Component().Props.Get(ical.PropCategories).Value)
}

func TestWrapper_SetCompleted(t *testing.T) {
	w := newTestWrapper(t, ical.CompToDo, map[string]any{})
	w.SetCompleted(true)
	assert.True(t, w.IsCompleted())
	assert.Equal(t, StatusCompleted, w.Status())
	w.SetCompleted(false)
	assert.False(t, w.IsCompleted())
	assert.Equal(t, StatusNeedsAction, w.Status())
}

func TestWrapper_GenerateNewUID(t *testing.T) {
	w := newTestWrapper(t, ical.CompToDo, map[string]any{"UID": "fixed"})
	assert.Equal(t, "fixed", w.UID())
	w.GenerateNewUID()
	assert.NotEqual(t, "fixed", w.UID())
	assert.NotEmpty(t, w.UID())
}

func TestWrapper_Encode(t *testing.T) {
	w := newTestWrapper(t, ical.CompToDo, map[string]any{
		"SUMMARY": "Pay fees",
		"DUE":     "2011-02-01T00:00:00.000Z",
	})

	full, err := w.Encode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, "BEGIN:VCALENDAR"))
	assert.Contains(t, full, "BEGIN:VTIMEZONE")
	assert.Contains(t, full, "TZID:America/Los_Angeles")

	comp, err := w.EncodeComponent()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(comp, "BEGIN:VTODO"))
	assert.True(t, strings.HasSuffix(comp, "END:VTODO"))
	assert.Contains(t, comp, "DUE:20110201T000000Z")
	assert.NotContains(t, comp, "VTIMEZONE")
}

func TestWrapper_CloneFromJSON(t *testing.T) {
	w, err := ParseCalendarWrapper(sampleTask, "http://cal/a.ics", `"20110103T194517Z-1"`)
	require.NoError(t, err)

	clone, err := w.CloneFromJSON()
	require.NoError(t, err)
	assert.Equal(t, w.UID(), clone.UID())
	assert.Equal(t, w.Summary(), clone.Summary())
	assert.Equal(t, w.SortDate(), clone.SortDate())
	assert.Equal(t, w.URI().URI, clone.URI().URI)
	assert.True(t, clone.IsRequired())
}
