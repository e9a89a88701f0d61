package notice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
)

const listPath = "a:advisor/private/dynamic_lists/archs"

func routerFixture(t *testing.T) (*memory.Store, *Router) {
	t.Helper()
	repo := memory.New()
	putUser(t, repo, "alice", map[string]string{
		"participant": "true", "context": "g-ced-students", "standing": "undergrad", "major": "ARCHITECTURE",
	})
	putUser(t, repo, "bob", map[string]string{
		"participant": "true", "context": "g-ced-students", "standing": "grad", "major": "DESIGN",
	})
	require.NoError(t, repo.Update(context.Background(), repository.NewContent(listPath, map[string]any{
		PropListQuery: legacyCriteria,
	})))
	return repo, NewRouter(repo, NewProfileQueryEvaluator(repo), discardLogger())
}

func TestRouter_Routes(t *testing.T) {
	_, router := routerFixture(t)
	msg := repository.NewContent("a:advisor/message/n1", map[string]any{
		PropTo: []string{"carol, notice:dave", "smtp:erin@example.com", "fax:frank", "dynamiclist:" + listPath, "alice"},
	})

	routes, err := router.Routes(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, []Route{
		{Recipient: "carol", Transport: TransportNotice},
		{Recipient: "dave", Transport: TransportNotice},
		{Recipient: "erin@example.com", Transport: TransportSMTP},
		{Recipient: "alice", Transport: TransportNotice},
		{Recipient: "bob", Transport: TransportNotice},
	}, routes)
}

func TestRouter_MissingList(t *testing.T) {
	_, router := routerFixture(t)
	msg := repository.NewContent("a:advisor/message/n1", map[string]any{PropTo: "dynamiclist:/~advisor/nope"})
	_, err := router.Routes(context.Background(), msg)
	assert.True(t, repository.IsNotFound(err))
}

func TestInboxTransport_Send(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	original := putNotice(t, repo, MessagePath("advisor", "n1"), map[string]any{
		PropTo:         "alice,smtp:bob",
		PropFrom:       "advisor",
		PropSubject:    "Advising",
		PropDueDate:    "Tue Jan 11 2011 10:30:00 GMT-0800",
		PropMessageBox: BoxOutbox,
		PropRead:       true,
	})
	require.NoError(t, repo.Update(ctx, repository.NewContent(original.Path+"/agenda.txt", map[string]any{
		PropAttachmentContent: "bring forms",
	})))

	routes := []Route{{Recipient: "alice", Transport: TransportNotice}, {Recipient: "bob", Transport: TransportSMTP}}
	require.NoError(t, NewInboxTransport(repo, discardLogger()).Send(ctx, routes, original))

	copied, err := repo.Get(ctx, MessagePath("alice", "n1"))
	require.NoError(t, err)
	assert.Equal(t, "alice", copied.String(PropTo))
	assert.Equal(t, BoxInbox, copied.String(PropMessageBox))
	assert.Equal(t, StateNotified, copied.String(PropSendState))
	assert.False(t, copied.Bool(PropRead))
	assert.Equal(t, "Advising", copied.String(PropSubject))
	assert.Equal(t, "2011-01-11T18:30:00.000Z", copied.String(PropDueDate))

	attachment, err := repo.Get(ctx, MessagePath("alice", "n1")+"/agenda.txt")
	require.NoError(t, err)
	assert.Equal(t, "bring forms", attachment.String(PropAttachmentContent))

	exists, err := repo.Exists(ctx, MessagePath("bob", "n1"))
	require.NoError(t, err)
	assert.False(t, exists, "smtp routes are not copied")

	orig, err := repo.Get(ctx, original.Path)
	require.NoError(t, err)
	assert.Equal(t, "alice,smtp:bob", orig.String(PropTo))
}

func TestInboxTransport_RequiresID(t *testing.T) {
	repo := memory.New()
	n := repository.NewContent("a:advisor/message/x", nil)
	err := NewInboxTransport(repo, discardLogger()).Send(context.Background(), nil, n)
	assert.Error(t, err)
}
