package caldav

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
)

func jan(day int) time.Time {
	return time.Date(2011, 1, day, 0, 0, 0, 0, time.UTC)
}

func TestMatch(t *testing.T) {
	event := map[string]any{
		"DTSTART": "2011-01-10T10:00:00.000Z",
		"DTEND":   "2011-01-10T11:00:00.000Z",
	}
	weekly := map[string]any{
		"DTSTART": "2011-01-03T10:00:00.000Z",
		"DTEND":   "2011-01-03T11:00:00.000Z",
		"RRULE":   "FREQ=WEEKLY;COUNT=4",
	}
	task := map[string]any{"DUE": "2011-01-15T17:00:00.000Z"}

	tests := []struct {
		name      string
		component string
		data      map[string]any
		typ       ComponentType
		start     time.Time
		end       time.Time
		want      bool
	}{
		{"event inside", ical.CompEvent, event, TypeEvent, jan(1), jan(31), true},
		{"event before", ical.CompEvent, event, TypeEvent, jan(11), jan(31), false},
		{"event overlaps start", ical.CompEvent, event, TypeEvent, jan(10).Add(10*time.Hour + 30*time.Minute), jan(12), true},
		{"wrong type", ical.CompEvent, event, TypeToDo, jan(1), jan(31), false},
		{"weekly third occurrence", ical.CompEvent, weekly, TypeEvent, jan(17), jan(18), true},
		{"weekly between occurrences", ical.CompEvent, weekly, TypeEvent, jan(5), jan(9), false},
		{"weekly after count", ical.CompEvent, weekly, TypeEvent, jan(30), jan(31), false},
		{"task due inside", ical.CompToDo, task, TypeToDo, jan(1), jan(31), true},
		{"task due outside", ical.CompToDo, task, TypeToDo, jan(16), jan(31), false},
		{"event without start", ical.CompEvent, map[string]any{}, TypeEvent, jan(1), jan(31), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWrapper(t, tt.component, tt.data)
			c := &SearchCriteria{Type: tt.typ, Mode: ModeAllUnarchived, Sort: SortDateAsc, Start: tt.start, End: tt.end}
			assert.Equal(t, tt.want, Match(w, c))
		})
	}
}

func TestMatch_NilCriteria(t *testing.T) {
	w := newTestWrapper(t, ical.CompEvent, map[string]any{})
	assert.True(t, Match(w, nil))
}

func TestMatch_ExcludedOccurrence(t *testing.T) {
	w := newTestWrapper(t, ical.CompEvent, map[string]any{
		"DTSTART": "2011-01-03T10:00:00.000Z",
		"DTEND":   "2011-01-03T11:00:00.000Z",
		"RRULE":   "FREQ=WEEKLY;COUNT=4",
		"EXDATE":  "2011-01-17T10:00:00.000Z",
	})
	c := &SearchCriteria{Type: TypeEvent, Mode: ModeAllUnarchived, Start: jan(17), End: jan(18)}
	assert.False(t, Match(w, c))

	c.Start, c.End = jan(24), jan(25)
	assert.True(t, Match(w, c))
}

func TestMatch_ArchivedExcluded(t *testing.T) {
	w := newTestWrapper(t, ical.CompToDo, map[string]any{
		"DUE":        "2011-01-15T17:00:00.000Z",
		"CATEGORIES": CategoryArchived,
	})
	c := &SearchCriteria{Type: TypeToDo, Mode: ModeAllUnarchived, Start: jan(1), End: jan(31)}
	assert.False(t, Match(w, c))
	c.Mode = ModeAllArchived
	assert.True(t, Match(w, c))
}
