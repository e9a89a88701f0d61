package notification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/caldav"
	"github.com/ets-berkeley-edu/myberkeley/dynamiclist"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
	"github.com/ets-berkeley-edu/myberkeley/search"
)

type jobFixture struct {
	repo     *memory.Store
	index    *search.MockIndex
	provider *caldav.ConnectorProvider
	emailer  *mockEmailer
	job      *SendJob
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	ctx := context.Background()
	f := &jobFixture{repo: memory.New(), index: &search.MockIndex{}, emailer: &mockEmailer{}}

	lists, err := dynamiclist.NewService(f.repo, f.index, discardLogger())
	require.NoError(t, err)
	f.provider, err = caldav.NewProvider(caldav.ProviderConfig{Embedded: true}, f.repo, nil, discardLogger())
	require.NoError(t, err)

	require.NoError(t, f.repo.Update(ctx, repository.NewContent(dynamiclist.ContextPath("myb-ced-students"), map[string]any{
		dynamiclist.PropContext: "myb-ced-students",
		dynamiclist.PropClauses: []string{"/colleges/CED/*"},
	})))
	require.NoError(t, f.repo.Update(ctx, repository.NewContent("a:advisor1/private/dynamic_lists/grads/query", map[string]any{
		"context": "myb-ced-students",
		"filter":  `{"OR": ["/colleges/CED/standings/grad"]}`,
	})))
	f.index.On("Search", mock.Anything, mock.Anything).Return(&search.Result{
		NumFound: 2,
		Docs: []search.Document{
			{search.FieldPath: dynamiclist.DemographicPath("alice")},
			{search.FieldPath: dynamiclist.DemographicPath("bob")},
		},
	}, nil)

	f.job = NewSendJob(f.repo, lists, f.provider, f.emailer, JobConfig{}, discardLogger())
	f.job.now = func() time.Time { return time.Date(2011, 1, 11, 0, 0, 0, 0, time.UTC) }
	return f
}

func (f *jobFixture) queue(t *testing.T, sendDate string) string {
	t.Helper()
	in := calendarNotificationJSON(t, BoxQueue)
	in[PropSendDate] = sendDate
	n, err := FromJSON(mustJSON(t, in))
	require.NoError(t, err)
	store := StorePath("advisor1")
	c := repository.NewContent(n.Path(store), map[string]any{repository.PropResourceType: ResourceType})
	require.NoError(t, n.ToContent(store, c))
	require.NoError(t, f.repo.Update(context.Background(), c))
	return c.Path
}

func (f *jobFixture) calendarCount(t *testing.T, owner string) int {
	t.Helper()
	conn, err := f.provider.AdminConnector(owner)
	require.NoError(t, err)
	uris, err := conn.GetCalendarURIs(context.Background())
	require.NoError(t, err)
	return len(uris)
}

func TestSendJob_Delivers(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	path := f.queue(t, "2011-01-10T08:00:00.000Z")
	f.emailer.On("Send", mock.Anything, mock.Anything, []string{"alice", "bob"}).Return("<m1@example.edu>", nil).Once()

	require.NoError(t, f.job.RunOnce(ctx))

	node, err := f.repo.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, string(BoxArchive), node.String(PropMessageBox))
	assert.Equal(t, string(SendStateSent), node.String(PropSendState))
	assert.Equal(t, 1, f.calendarCount(t, "alice"))
	assert.Equal(t, 1, f.calendarCount(t, "bob"))

	rl, err := LoadRecipientLog(ctx, f.repo, path)
	require.NoError(t, err)
	assert.True(t, rl.Has("alice"))
	assert.True(t, rl.Has("bob"))
	assert.Equal(t, "<m1@example.edu>", rl.EmailMessageID)

	// archived notifications are not sent again
	require.NoError(t, f.job.RunOnce(ctx))
	assert.Equal(t, 1, f.calendarCount(t, "alice"))
	f.emailer.AssertExpectations(t)
}

func TestSendJob_NotYetDue(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	path := f.queue(t, "2011-02-01T08:00:00.000Z")

	require.NoError(t, f.job.RunOnce(ctx))

	node, err := f.repo.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, string(BoxQueue), node.String(PropMessageBox))
	assert.Equal(t, 0, f.calendarCount(t, "alice"))
	f.emailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestSendJob_SkipsLoggedRecipientsAndEmail(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	path := f.queue(t, "2011-01-10T08:00:00.000Z")

	rl, err := LoadRecipientLog(ctx, f.repo, path)
	require.NoError(t, err)
	rl.Recipients["alice"] = &caldav.CalendarURI{URI: "/~alice/_myberkeley_calstore/old.ics", Etag: time.Now()}
	rl.EmailMessageID = "<earlier@example.edu>"
	require.NoError(t, rl.Update(ctx, f.repo))

	require.NoError(t, f.job.RunOnce(ctx))

	assert.Equal(t, 0, f.calendarCount(t, "alice"))
	assert.Equal(t, 1, f.calendarCount(t, "bob"))
	f.emailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)

	node, err := f.repo.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, string(SendStateSent), node.String(PropSendState))
}

func TestSendJob_MissingListStaysQueued(t *testing.T) {
	f := newJobFixture(t)
	ctx := context.Background()
	in := calendarNotificationJSON(t, BoxQueue)
	in[PropDynamicListID] = "a:advisor1/private/dynamic_lists/gone"
	n, err := FromJSON(mustJSON(t, in))
	require.NoError(t, err)
	c := repository.NewContent(n.Path(StorePath("advisor1")), map[string]any{repository.PropResourceType: ResourceType})
	require.NoError(t, n.ToContent(StorePath("advisor1"), c))
	require.NoError(t, f.repo.Update(ctx, c))

	require.NoError(t, f.job.RunOnce(ctx))

	node, err := f.repo.Get(ctx, c.Path)
	require.NoError(t, err)
	assert.Equal(t, string(BoxQueue), node.String(PropMessageBox))
	assert.Equal(t, string(SendStatePending), node.String(PropSendState))
	exists, err := f.repo.Exists(ctx, c.Path+"/"+RecipientLogName)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSendJob_Receipts(t *testing.T) {
	f := newJobFixture(t)
	receipts := &mockEmailer{}
	f.job.cfg.Receipts = receipts
	f.queue(t, "2011-01-10T08:00:00.000Z")
	f.emailer.On("Send", mock.Anything, mock.Anything, mock.Anything).Return("<m1@example.edu>", nil)
	receipts.On("Send", mock.Anything, mock.Anything, []string{"alice", "bob"}).Return("<r1@example.edu>", nil).Once()

	require.NoError(t, f.job.RunOnce(context.Background()))
	receipts.AssertExpectations(t)
}

func TestSendJob_RunStopsOnCancel(t *testing.T) {
	f := newJobFixture(t)
	f.job.cfg.PollInterval = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.job.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
}
