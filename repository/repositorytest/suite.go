// Package repositorytest holds behaviour tests shared by every repository
// implementation.
package repositorytest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/repository"
)

// Run exercises newRepo against the repository contract.
func Run(t *testing.T, newRepo func(t *testing.T) repository.Repository) {
	t.Run("content", func(t *testing.T) { testContent(t, newRepo(t)) })
	t.Run("find and walk", func(t *testing.T) { testFind(t, newRepo(t)) })
	t.Run("acl", func(t *testing.T) { testACL(t, newRepo(t)) })
	t.Run("authorizables", func(t *testing.T) { testAuthorizables(t, newRepo(t)) })
	t.Run("events", func(t *testing.T) { testEvents(t, newRepo(t)) })
}

func testContent(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	_, err := repo.Get(ctx, "a:bob/missing")
	assert.True(t, repository.IsNotFound(err))

	c := repository.NewContent("a:bob/item", map[string]any{
		"title": "hello",
		"tags":  []string{"x", "y"},
		"n":     5,
	})
	require.NoError(t, repo.Update(ctx, c))

	got, err := repo.Get(ctx, "a:bob/item")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.String("title"))
	assert.Equal(t, []string{"x", "y"}, got.Strings("tags"))
	assert.Equal(t, int64(5), got.Properties["n"])

	// returned nodes are copies
	got.SetProperty("title", "changed")
	again, err := repo.Get(ctx, "a:bob/item")
	require.NoError(t, err)
	assert.Equal(t, "hello", again.String("title"))

	ok, err := repo.Exists(ctx, "a:bob/item")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.Update(ctx, repository.NewContent("a:bob/item/child", nil)))
	require.NoError(t, repo.Update(ctx, repository.NewContent("a:bob/item/child/grandchild", nil)))
	require.NoError(t, repo.Update(ctx, repository.NewContent("a:bob/item2", nil)))

	children, err := repo.ListChildren(ctx, "a:bob/item")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "a:bob/item/child", children[0].Path)

	require.NoError(t, repo.Delete(ctx, "a:bob/item"))
	ok, err = repo.Exists(ctx, "a:bob/item")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, repository.IsNotFound(repo.Delete(ctx, "a:bob/item")))
}

func testFind(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	for _, p := range []string{"a:u1/n", "a:u2/n", "a:u3/n"} {
		require.NoError(t, repo.Update(ctx, repository.NewContent(p, map[string]any{
			"sakai:messagebox":          "queue",
			repository.PropResourceType: "myberkeley/notification",
		})))
	}
	require.NoError(t, repo.Update(ctx, repository.NewContent("a:u4/n", map[string]any{
		"sakai:messagebox": "drafts",
	})))

	found, err := repo.Find(ctx, map[string]any{"sakai:messagebox": "queue"}, 0)
	require.NoError(t, err)
	assert.Len(t, found, 3)

	limited, err := repo.Find(ctx, map[string]any{"sakai:messagebox": "queue"}, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	var walked []string
	require.NoError(t, repo.Walk(ctx, "a:u", func(c *repository.Content) error {
		walked = append(walked, c.Path)
		return nil
	}))
	assert.Equal(t, []string{"a:u1/n", "a:u2/n", "a:u3/n", "a:u4/n"}, walked)

	stop := errors.New("stop")
	count := 0
	err = repo.Walk(ctx, "a:u", func(c *repository.Content) error {
		count++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, count)
}

func testACL(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	aces, err := repo.GetACL(ctx, "a:bob")
	require.NoError(t, err)
	assert.Empty(t, aces)

	require.NoError(t, repo.SetACL(ctx, "a:bob", []repository.AccessControlEntry{
		repository.Deny(repository.Anonymous, repository.PrivAll),
		repository.Grant("bob", repository.PrivRead),
	}))
	require.NoError(t, repo.SetACL(ctx, "a:bob", []repository.AccessControlEntry{
		repository.Grant("bob", repository.PrivAll),
	}))

	aces, err = repo.GetACL(ctx, "a:bob")
	require.NoError(t, err)
	assert.ElementsMatch(t, []repository.AccessControlEntry{
		repository.Deny(repository.Anonymous, repository.PrivAll),
		repository.Grant("bob", repository.PrivAll),
	}, aces)
}

func testAuthorizables(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	require.NoError(t, repo.CreateUser(ctx, "bob", "pw", map[string]any{"firstName": "Bob"}))
	assert.ErrorIs(t, repo.CreateUser(ctx, "bob", "pw", nil), repository.ErrExists)

	ok, err := repo.CheckPassword(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.ChangePassword(ctx, "bob", "new"))
	ok, err = repo.CheckPassword(ctx, "bob", "pw")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.CheckPassword(ctx, "nobody", "pw")
	require.NoError(t, err)
	assert.False(t, ok)

	bob, err := repo.FindAuthorizable(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, bob.Group)
	bob.Properties["lastName"] = "Bear"
	require.NoError(t, repo.UpdateAuthorizable(ctx, bob))
	bob, err = repo.FindAuthorizable(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bear", bob.Properties["lastName"])

	require.NoError(t, repo.CreateGroup(ctx, "advisors", map[string]any{"dynamic": "true"}))
	require.NoError(t, repo.AddMembers(ctx, "advisors", "bob", "alice", "bob"))
	g, err := repo.FindAuthorizable(ctx, "advisors")
	require.NoError(t, err)
	assert.True(t, g.Group)
	assert.Equal(t, []string{"bob", "alice"}, g.Members)

	_, err = repo.FindAuthorizable(ctx, "nobody")
	assert.True(t, repository.IsNotFound(err))
	assert.True(t, repository.IsNotFound(repo.AddMembers(ctx, "bob", "x")))
}

func testEvents(t *testing.T, repo repository.Repository) {
	ctx := context.Background()
	var mu sync.Mutex
	var events []repository.Event
	repo.Subscribe(func(ev repository.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})

	c := repository.NewContent("a:bob/x", map[string]any{repository.PropResourceType: "t"})
	require.NoError(t, repo.Update(ctx, c))
	require.NoError(t, repo.Update(ctx, c))
	require.NoError(t, repo.Delete(ctx, "a:bob/x"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []repository.Event{
		{Type: repository.EventAdded, Path: "a:bob/x", ResourceType: "t"},
		{Type: repository.EventUpdated, Path: "a:bob/x", ResourceType: "t"},
		{Type: repository.EventRemoved, Path: "a:bob/x", ResourceType: "t"},
	}, events)
}
