package caldav

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWrapper(t *testing.T, component string, data map[string]any) *CalendarWrapper {
	t.Helper()
	w, err := FromJSON("/~bob/_myberkeley_calstore/x.ics", "2011-01-03T19:45:17.000Z", component, data)
	require.NoError(t, err)
	return w
}

const sampleTask = "BEGIN:VCALENDAR\r\n" +
	"PRODID:-//Test//EN\r\n" +
	"VERSION:2.0\r\n" +
	"BEGIN:VTODO\r\n" +
	"UID:task-1\r\n" +
	"DTSTAMP:20110103T194517Z\r\n" +
	"DUE:20110115T170000Z\r\n" +
	"SUMMARY:Submit forms\r\n" +
	"DESCRIPTION:Fill them out\r\n" +
	"CATEGORIES:MyBerkeley-Required\r\n" +
	"STATUS:NEEDS-ACTION\r\n" +
	"END:VTODO\r\n" +
	"END:VCALENDAR\r\n"
