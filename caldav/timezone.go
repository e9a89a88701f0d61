package caldav

import "github.com/emersion/go-ical"

// TimezoneID is the zone every calendar built from JSON carries.
const TimezoneID = "America/Los_Angeles"

func rawProp(comp *ical.Component, name, value string) {
	p := ical.NewProp(name)
	p.Value = value
	comp.Props.Set(p)
}

func losAngelesTimezone() *ical.Component {
	tz := ical.NewComponent(ical.CompTimezone)
	rawProp(tz, ical.PropTimezoneID, TimezoneID)

	daylight := ical.NewComponent(ical.CompTimezoneDaylight)
	rawProp(daylight, ical.PropTimezoneOffsetFrom, "-0800")
	rawProp(daylight, ical.PropTimezoneOffsetTo, "-0700")
	rawProp(daylight, ical.PropTimezoneName, "PDT")
	rawProp(daylight, ical.PropDateTimeStart, "19700308T020000")
	rawProp(daylight, ical.PropRecurrenceRule, "FREQ=YEARLY;BYMONTH=3;BYDAY=2SU")

	standard := ical.NewComponent(ical.CompTimezoneStandard)
	rawProp(standard, ical.PropTimezoneOffsetFrom, "-0700")
	rawProp(standard, ical.PropTimezoneOffsetTo, "-0800")
	rawProp(standard, ical.PropTimezoneName, "PST")
	rawProp(standard, ical.PropDateTimeStart, "19701101T020000")
	rawProp(standard, ical.PropRecurrenceRule, "FREQ=YEARLY;BYMONTH=11;BYDAY=1SU")

	tz.Children = append(tz.Children, daylight, standard)
	return tz
}
