package caldav

import (
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSearchCriteria_Defaults(t *testing.T) {
	c := NewSearchCriteria()
	assert.Equal(t, TypeEvent, c.Type)
	assert.Equal(t, ModeAllUnarchived, c.Mode)
	assert.Equal(t, SortDateAsc, c.Sort)
	assert.False(t, c.Start.IsZero())
	assert.Equal(t, c.Start, c.End)
}

func TestParseCriteriaValues(t *testing.T) {
	_, err := ParseType("VJOURNAL")
	assert.Error(t, err)
	typ, err := ParseType("VTODO")
	require.NoError(t, err)
	assert.Equal(t, TypeToDo, typ)

	_, err = ParseMode("SOMETIMES")
	assert.Error(t, err)
	mode, err := ParseMode("ALL_ARCHIVED")
	require.NoError(t, err)
	assert.Equal(t, ModeAllArchived, mode)

	_, err = ParseSort("DATE")
	assert.Error(t, err)
	s, err := ParseSort("SUMMARY_DESC")
	require.NoError(t, err)
	assert.Equal(t, SortSummaryDesc, s)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2011, 1, 1, 8, 0, 0, 0, time.UTC)
	for _, in := range []string{"20110101T080000Z", "2011-01-01T08:00:00.000Z", "2011-01-01T00:00:00.000-08:00"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}
	_, err := ParseDate("January first")
	assert.Error(t, err)
}

func TestMode_Matches(t *testing.T) {
	tests := []struct {
		required, archived bool
		mode               Mode
		want               bool
	}{
		{true, false, ModeRequired, true},
		{true, true, ModeRequired, false},
		{false, false, ModeRequired, false},
		{false, false, ModeUnrequired, true},
		{true, false, ModeUnrequired, false},
		{false, true, ModeUnrequired, false},
		{true, false, ModeAllUnarchived, true},
		{false, true, ModeAllUnarchived, false},
		{false, true, ModeAllArchived, true},
		{true, false, ModeAllArchived, false},
	}
	for _, tt := range tests {
		w := newTestWrapper(t, ical.CompToDo, map[string]any{})
		w.ToggleCategory(CategoryRequired, tt.required)
		w.ToggleCategory(CategoryArchived, tt.archived)
		assert.Equal(t, tt.want, tt.mode.Matches(w), "mode=%s required=%v archived=%v", tt.mode, tt.required, tt.archived)
	}
}

func summaries(ws []*CalendarWrapper) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Summary())
	}
	return out
}

func TestProcessResults(t *testing.T) {
	a := newTestWrapper(t, ical.CompToDo, map[string]any{"SUMMARY": "b", "DUE": "2011-01-03T00:00:00.000Z"})
	b := newTestWrapper(t, ical.CompToDo, map[string]any{"SUMMARY": "a", "DUE": "2011-01-02T00:00:00.000Z", "CATEGORIES": CategoryRequired})
	c := newTestWrapper(t, ical.CompToDo, map[string]any{"SUMMARY": "c", "DUE": "2011-01-01T00:00:00.000Z", "STATUS": StatusCompleted})
	archived := newTestWrapper(t, ical.CompToDo, map[string]any{"SUMMARY": "z", "CATEGORIES": CategoryArchived})
	input := []*CalendarWrapper{a, b, c, archived}

	tests := []struct {
		sort Sort
		want []string
	}{
		{SortDateAsc, []string{"c", "a", "b"}},
		{SortDateDesc, []string{"b", "a", "c"}},
		{SortSummaryAsc, []string{"a", "b", "c"}},
		{SortSummaryDesc, []string{"c", "b", "a"}},
		{SortRequiredAsc, []string{"b", "c", "a"}},
		{SortRequiredDesc, []string{"a", "b", "c"}},
		{SortCompletedAsc, []string{"b", "a", "c"}},
		{SortCompletedDesc, []string{"c", "b", "a"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.sort), func(t *testing.T) {
			criteria := NewSearchCriteria()
			criteria.Sort = tt.sort
			got := ProcessResults(append([]*CalendarWrapper(nil), input...), criteria)
			assert.Equal(t, tt.want, summaries(got))
		})
	}
}

func TestProcessResults_ArchivedMode(t *testing.T) {
	live := newTestWrapper(t, ical.CompEvent, map[string]any{"SUMMARY": "live"})
	gone := newTestWrapper(t, ical.CompEvent, map[string]any{"SUMMARY": "gone", "CATEGORIES": CategoryArchived})
	criteria := NewSearchCriteria()
	criteria.Mode = ModeAllArchived
	assert.Equal(t, []string{"gone"}, summaries(ProcessResults([]*CalendarWrapper{live, gone}, criteria)))
}

func TestSortWrappers_MissingSummary(t *testing.T) {
	named := newTestWrapper(t, ical.CompEvent, map[string]any{"SUMMARY": "b"})
	unnamed := newTestWrapper(t, ical.CompEvent, map[string]any{})

	for _, order := range []Sort{SortSummaryAsc, SortSummaryDesc} {
		criteria := NewSearchCriteria()
		criteria.Sort = order
		ws := []*CalendarWrapper{named, unnamed}
		criteria.SortWrappers(ws)
		assert.Equal(t, []*CalendarWrapper{named, unnamed}, ws, "sort=%s", order)
	}
}
