package caldav

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"github.com/ets-berkeley-edu/myberkeley/internal/isodate"
)

// ComponentType selects events or tasks.
type ComponentType string

const (
	TypeEvent ComponentType = ical.CompEvent
	TypeToDo  ComponentType = ical.CompToDo
)

// Mode filters on the required and archived categories.
type Mode string

const (
	ModeRequired      Mode = "REQUIRED"
	ModeUnrequired    Mode = "UNREQUIRED"
	ModeAllUnarchived Mode = "ALL_UNARCHIVED"
	ModeAllArchived   Mode = "ALL_ARCHIVED"
)

// Sort names an ordering of search results.
type Sort string

const (
	SortDateAsc       Sort = "DATE_ASC"
	SortDateDesc      Sort = "DATE_DESC"
	SortSummaryAsc    Sort = "SUMMARY_ASC"
	SortSummaryDesc   Sort = "SUMMARY_DESC"
	SortRequiredAsc   Sort = "REQUIRED_ASC"
	SortRequiredDesc  Sort = "REQUIRED_DESC"
	SortCompletedAsc  Sort = "COMPLETED_ASC"
	SortCompletedDesc Sort = "COMPLETED_DESC"
)

// SearchCriteria describes a date-bounded calendar search.
type SearchCriteria struct {
	Type  ComponentType
	Mode  Mode
	Sort  Sort
	Start time.Time
	End   time.Time
}

// NewSearchCriteria returns the defaults: events, unarchived, by date
// ascending, with start and end set to now.
func NewSearchCriteria() SearchCriteria {
	now := time.Now().UTC()
	return SearchCriteria{
		Type:  TypeEvent,
		Mode:  ModeAllUnarchived,
		Sort:  SortDateAsc,
		Start: now,
		End:   now,
	}
}

func (c SearchCriteria) String() string {
	return fmt.Sprintf("SearchCriteria{type=%s, mode=%s, sort=%s, start=%s, end=%s}",
		c.Type, c.Mode, c.Sort, c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
}

func ParseType(s string) (ComponentType, error) {
	switch t := ComponentType(s); t {
	case TypeEvent, TypeToDo:
		return t, nil
	}
	return "", fmt.Errorf("invalid type %q", s)
}

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeRequired, ModeUnrequired, ModeAllUnarchived, ModeAllArchived:
		return m, nil
	}
	return "", fmt.Errorf("invalid mode %q", s)
}

func ParseSort(s string) (Sort, error) {
	if _, ok := comparators[Sort(s)]; ok {
		return Sort(s), nil
	}
	return "", fmt.Errorf("invalid sort %q", s)
}

// ParseDate accepts iCalendar date-times (20110101T000000Z) and ISO8601.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	t, err := isodate.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t, nil
}

// Matches reports whether w passes the mode filter.
func (m Mode) Matches(w *CalendarWrapper) bool {
	switch m {
	case ModeRequired:
		return w.IsRequired() && !w.IsArchived()
	case ModeUnrequired:
		return !w.IsRequired() && !w.IsArchived()
	case ModeAllUnarchived:
		return !w.IsArchived()
	case ModeAllArchived:
		return w.IsArchived()
	}
	return false
}

// compare returns -1, 0 or 1 in ascending order.
type compare func(a, b *CalendarWrapper) int

func compareDate(a, b *CalendarWrapper) int {
	if a.ComponentName() != b.ComponentName() {
		return 0
	}
	return a.SortDate().Compare(b.SortDate())
}

// compareSummary leaves components without a SUMMARY where they are.
func compareSummary(a, b *CalendarWrapper) int {
	if !a.hasProp(ical.PropSummary) || !b.hasProp(ical.PropSummary) {
		return 0
	}
	return strings.Compare(a.Summary(), b.Summary())
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

func compareRequired(a, b *CalendarWrapper) int {
	return compareBool(a.IsRequired(), b.IsRequired())
}

func compareCompleted(a, b *CalendarWrapper) int {
	return compareBool(a.IsCompleted(), b.IsCompleted())
}

var comparators = map[Sort]struct {
	cmp       compare
	ascending bool
}{
	SortDateAsc:       {compareDate, true},
	SortDateDesc:      {compareDate, false},
	SortSummaryAsc:    {compareSummary, true},
	SortSummaryDesc:   {compareSummary, false},
	SortRequiredAsc:   {compareRequired, true},
	SortRequiredDesc:  {compareRequired, false},
	SortCompletedAsc:  {compareCompleted, true},
	SortCompletedDesc: {compareCompleted, false},
}

// SortWrappers orders wrappers in place. The sort is stable.
func (c SearchCriteria) SortWrappers(wrappers []*CalendarWrapper) {
	entry, ok := comparators[c.Sort]
	if !ok {
		entry = comparators[SortDateAsc]
	}
	sort.SliceStable(wrappers, func(i, j int) bool {
		r := entry.cmp(wrappers[i], wrappers[j])
		if !entry.ascending {
			r = -r
		}
		return r < 0
	})
}

// ProcessResults filters results by the criteria mode and sorts them.
func ProcessResults(results []*CalendarWrapper, criteria SearchCriteria) []*CalendarWrapper {
	filtered := make([]*CalendarWrapper, 0, len(results))
	for _, w := range results {
		if criteria.Mode.Matches(w) {
			filtered = append(filtered, w)
		}
	}
	criteria.SortWrappers(filtered)
	return filtered
}
