package xml

import (
	"time"

	"github.com/beevik/etree"
)

// TimeRange represents a time range filter
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (tr *TimeRange) toElement(parent *etree.Element) {
	elem := parent.CreateElement(prefixCalDAV + ":time-range")
	elem.CreateAttr("start", tr.Start.UTC().Format(TimeFormat))
	elem.CreateAttr("end", tr.End.UTC().Format(TimeFormat))
}

// CompFilter represents a comp-filter, optionally nested
type CompFilter struct {
	Name      string
	TimeRange *TimeRange
	Sub       []CompFilter
}

func (f *CompFilter) toElement(parent *etree.Element) {
	elem := parent.CreateElement(prefixCalDAV + ":comp-filter")
	elem.CreateAttr("name", f.Name)
	if f.TimeRange != nil {
		f.TimeRange.toElement(elem)
	}
	for i := range f.Sub {
		f.Sub[i].toElement(elem)
	}
}

// CalendarQuery represents a calendar-query REPORT request asking for
// getetag and calendar-data.
type CalendarQuery struct {
	Filter CompFilter
}

// ToXML converts a CalendarQuery to an XML document
func (q *CalendarQuery) ToXML() *etree.Document {
	doc, root := newDocument(prefixCalDAV, "calendar-query")
	addCalendarDataProps(root)
	filter := root.CreateElement(prefixCalDAV + ":filter")
	q.Filter.toElement(filter)
	return doc
}

// CalendarMultiget represents a calendar-multiget REPORT request
type CalendarMultiget struct {
	Hrefs []string
}

// ToXML converts a CalendarMultiget to an XML document
func (m *CalendarMultiget) ToXML() *etree.Document {
	doc, root := newDocument(prefixCalDAV, "calendar-multiget")
	addCalendarDataProps(root)
	for _, href := range m.Hrefs {
		root.CreateElement(prefixDAV + ":href").SetText(href)
	}
	return doc
}

func addCalendarDataProps(root *etree.Element) {
	prop := root.CreateElement(prefixDAV + ":prop")
	prop.CreateElement(prefixDAV + ":getetag")
	prop.CreateElement(prefixCalDAV + ":calendar-data")
}

// NewComponentQuery builds the VCALENDAR > component time-range query used for
// searches by date.
func NewComponentQuery(component string, start, end time.Time) *CalendarQuery {
	return &CalendarQuery{Filter: CompFilter{
		Name: "VCALENDAR",
		Sub: []CompFilter{{
			Name:      component,
			TimeRange: &TimeRange{Start: start, End: end},
		}},
	}}
}
