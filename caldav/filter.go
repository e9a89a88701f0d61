package caldav

import (
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

// Match reports whether w satisfies the mode, type and period of criteria.
// A nil criteria matches everything.
func Match(w *CalendarWrapper, criteria *SearchCriteria) bool {
	if criteria == nil {
		return true
	}
	if !criteria.Mode.Matches(w) {
		return false
	}
	if w.ComponentName() != string(criteria.Type) {
		return false
	}
	return overlaps(w, criteria.Start, criteria.End)
}

// span returns the time a component occupies. Events run from DTSTART to DTEND
// (or DTSTART plus DURATION, or one day for all-day events). Tasks occupy
// the instant they are due, falling back to DTSTART.
func span(w *CalendarWrapper) (start, end time.Time, ok bool) {
	props := w.component.Props
	if w.ComponentName() == ical.CompToDo {
		if due, found := w.Date(ical.PropDue); found {
			return due, due, true
		}
		start, ok = w.Date(ical.PropDateTimeStart)
		return start, start, ok
	}

	start, ok = w.Date(ical.PropDateTimeStart)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	if e, found := w.Date(ical.PropDateTimeEnd); found {
		return start, e, true
	}
	if p := props.Get(ical.PropDuration); p != nil {
		if d, err := p.Duration(); err == nil {
			return start, start.Add(d), true
		}
	}
	if p := props.Get(ical.PropDateTimeStart); p != nil && p.ValueType() == ical.ValueDate {
		return start, start.Add(24 * time.Hour), true
	}
	return start, start, true
}

func overlapsPeriod(s, e, periodStart, periodEnd time.Time) bool {
	if s.Equal(e) {
		return !s.Before(periodStart) && !s.After(periodEnd)
	}
	return s.Before(periodEnd) && e.After(periodStart)
}

func overlaps(w *CalendarWrapper, periodStart, periodEnd time.Time) bool {
	s, e, ok := span(w)
	if !ok {
		return false
	}
	if overlapsPeriod(s, e, periodStart, periodEnd) {
		return true
	}

	set, err := recurrenceSet(w, s)
	if err != nil || set == nil {
		return false
	}
	dur := e.Sub(s)
	for _, occurrence := range set.Between(periodStart.Add(-dur), periodEnd, true) {
		if overlapsPeriod(occurrence, occurrence.Add(dur), periodStart, periodEnd) {
			return true
		}
	}
	return false
}

// recurrenceSet expands the component's RRULE and EXDATEs anchored at start.
// It returns nil when the component does not recur.
func recurrenceSet(w *CalendarWrapper, start time.Time) (*rrule.Set, error) {
	rule := w.component.Props.Get(ical.PropRecurrenceRule)
	if rule == nil {
		return nil, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "DTSTART:%s\nRRULE:%s", start.UTC().Format("20060102T150405Z"), rule.Value)
	for _, ex := range w.component.Props[ical.PropExceptionDates] {
		t, err := ex.DateTime(time.UTC)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "\nEXDATE:%s", t.UTC().Format("20060102T150405Z"))
	}
	set, err := rrule.StrToRRuleSet(b.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse RRULE %q: %w", rule.Value, err)
	}
	return set, nil
}
