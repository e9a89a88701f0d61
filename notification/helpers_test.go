package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/caldav"
	"github.com/ets-berkeley-edu/myberkeley/internal/mailer"
	"github.com/ets-berkeley-edu/myberkeley/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const notificationID = "0ab1c2d3-e4f5-4a6b-8c7d-8e9f0a1b2c3d"

func wrapperJSON(t *testing.T, component string, data map[string]any) map[string]any {
	t.Helper()
	w, err := caldav.FromJSON("", "2011-01-03T19:45:17.000Z", component, data)
	require.NoError(t, err)
	raw, err := json.Marshal(w.ToJSON())
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func taskData() map[string]any {
	return map[string]any{
		"UID":         "task-1",
		"SUMMARY":     "Submit forms",
		"DESCRIPTION": "Fill them out",
		"DUE":         "2011-01-15T17:00:00.000Z",
		"CATEGORIES":  caldav.CategoryRequired,
	}
}

func calendarNotificationJSON(t *testing.T, box MessageBox) map[string]any {
	t.Helper()
	return map[string]any{
		PropID:            notificationID,
		PropType:          string(TypeCalendar),
		PropSenderID:      "advisor1",
		PropSendDate:      "2011-01-10T08:00:00.000Z",
		PropMessageBox:    string(box),
		PropDynamicListID: "a:advisor1/private/dynamic_lists/grads",
		PropCategory:      string(CategoryReminder),
		PropUXState:       map[string]any{"validated": true},
		PropCalendarWrap:  wrapperJSON(t, "VTODO", taskData()),
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func putProfileEmail(t *testing.T, repo repository.ContentManager, userID, email string) {
	t.Helper()
	require.NoError(t, repo.Update(context.Background(),
		repository.NewContent(repository.ElementPath(userID, "email", "email"), map[string]any{"value": email})))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg *mailer.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

type mockEmailer struct {
	mock.Mock
}

func (m *mockEmailer) Send(ctx context.Context, n *Notification, recipientIDs []string) (string, error) {
	args := m.Called(ctx, n, recipientIDs)
	return args.String(0), args.Error(1)
}
