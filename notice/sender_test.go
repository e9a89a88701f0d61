package notice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/internal/queue"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
)

var senderNow = time.Date(2011, 1, 11, 12, 0, 0, 0, time.UTC)

func senderFixture(t *testing.T, env string) (*memory.Store, *queue.Queue[PendingMessage], *QueuedMessageSender) {
	t.Helper()
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.CreateGroup(ctx, DefaultAdvisorGroup, nil))
	require.NoError(t, repo.CreateUser(ctx, "advisor", "secret", nil))
	require.NoError(t, repo.CreateUser(ctx, DevUserID, "secret", nil))
	require.NoError(t, repo.CreateGroup(ctx, "nested", nil))
	require.NoError(t, repo.AddMembers(ctx, DefaultAdvisorGroup, "advisor", DevUserID, "nested"))

	pending := queue.New[PendingMessage](10)
	s := NewQueuedMessageSender(repo, pending, SenderConfig{Environment: env}, discardLogger())
	s.now = func() time.Time { return senderNow }
	return repo, pending, s
}

func queued(t *testing.T, repo *memory.Store, userID, id string, sendDate string) string {
	t.Helper()
	props := map[string]any{
		PropMessageBox: BoxQueue,
		PropSendState:  StatePending,
		PropTo:         "alice",
		PropFrom:       userID,
	}
	if sendDate != "" {
		props[PropSendDate] = sendDate
	}
	return putNotice(t, repo, MessagePath(userID, id), props).Path
}

func TestQueuedMessageSender_RunOnce(t *testing.T) {
	repo, pending, s := senderFixture(t, "prod")
	ctx := context.Background()
	due := queued(t, repo, "advisor", "due", "2011-01-10T08:00:00.000Z")
	later := queued(t, repo, "advisor", "later", "2011-02-01T08:00:00.000Z")
	broken := queued(t, repo, "advisor", "broken", "")
	dev := queued(t, repo, DevUserID, "dev", "2011-01-11")
	outsider := queued(t, repo, "stranger", "x", "2011-01-10T08:00:00.000Z")

	require.NoError(t, s.RunOnce(ctx))

	n, err := repo.Get(ctx, due)
	require.NoError(t, err)
	assert.Equal(t, BoxArchive, n.String(PropMessageBox))
	assert.Equal(t, StateNotified, n.String(PropSendState))

	n, err = repo.Get(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, BoxQueue, n.String(PropMessageBox))
	assert.Equal(t, StatePending, n.String(PropSendState))

	n, err = repo.Get(ctx, broken)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, n.String(PropSendState))

	n, err = repo.Get(ctx, outsider)
	require.NoError(t, err)
	assert.Equal(t, BoxQueue, n.String(PropMessageBox), "only advisor group members are polled")

	require.Equal(t, 2, pending.Len())
	var got []PendingMessage
	cctx, cancel := context.WithCancel(ctx)
	_ = pending.Consume(cctx, func(_ context.Context, m PendingMessage) {
		got = append(got, m)
		if len(got) == 2 {
			cancel()
		}
	})
	assert.ElementsMatch(t, []PendingMessage{
		{Path: due, User: "advisor"},
		{Path: dev, User: DevUserID},
	}, got)

	// sent and failed notices are not picked up again
	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, 0, pending.Len())
}

func TestQueuedMessageSender_DevEnvironment(t *testing.T) {
	repo, pending, s := senderFixture(t, EnvironmentDev)
	ctx := context.Background()
	advisorNotice := queued(t, repo, "advisor", "a1", "2011-01-10T08:00:00.000Z")
	queued(t, repo, DevUserID, "d1", "2011-01-10T08:00:00.000Z")

	require.NoError(t, s.RunOnce(ctx))
	assert.Equal(t, 1, pending.Len())

	n, err := repo.Get(ctx, advisorNotice)
	require.NoError(t, err)
	assert.Equal(t, BoxQueue, n.String(PropMessageBox))
}

func TestQueuedMessageSender_MissingGroup(t *testing.T) {
	repo := memory.New()
	s := NewQueuedMessageSender(repo, queue.New[PendingMessage](1), SenderConfig{}, discardLogger())
	assert.NoError(t, s.RunOnce(context.Background()))
}

func TestQueuedMessageSender_RunNow(t *testing.T) {
	repo, pending, s := senderFixture(t, "prod")
	s.cfg.PollInterval = time.Hour
	queued(t, repo, "advisor", "due", "2011-01-10T08:00:00.000Z")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.RunNow()
	s.RunNow()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return pending.Len() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestDispatcher_Dispatch(t *testing.T) {
	repo, router := routerFixture(t)
	ctx := context.Background()
	path := putNotice(t, repo, MessagePath("advisor", "n1"), map[string]any{
		PropTo:   []string{"dynamiclist:" + listPath, "smtp:carol", "smtp:alice@example.com"},
		PropFrom: "advisor",
	}).Path
	emails := queue.New[EmailMessage](10)
	d := NewDispatcher(repo, router, NewInboxTransport(repo, discardLogger()), emails, discardLogger())

	require.NoError(t, d.Dispatch(ctx, PendingMessage{Path: path, User: "advisor"}))

	for _, user := range []string{"alice", "bob"} {
		exists, err := repo.Exists(ctx, MessagePath(user, "n1"))
		require.NoError(t, err)
		assert.True(t, exists, user)
	}
	require.Equal(t, 1, emails.Len())
	cctx, cancel := context.WithCancel(ctx)
	_ = emails.Consume(cctx, func(_ context.Context, m EmailMessage) {
		assert.Equal(t, path, m.NodePath)
		assert.Equal(t, []string{"alice@example.com", "carol"}, m.Recipients)
		cancel()
	})

	err := d.Dispatch(ctx, PendingMessage{Path: "a:advisor/message/missing"})
	assert.True(t, repository.IsNotFound(err))
}
