package root

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
)

func newTestService(t *testing.T) (*memory.Store, *ApplicationRootService) {
	t.Helper()
	repo := memory.New()
	return repo, NewApplicationRootService(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApply_RootPath(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		props map[string]any
		want  string
	}{
		{
			name:  "redirect is updated",
			props: map[string]any{repository.PropResourceType: RedirectResourceType, PropRedirectTarget: "/index.html"},
			want:  "/dev/",
		},
		{
			name:  "non-redirecting root is left alone",
			props: map[string]any{repository.PropResourceType: "sling:folder", PropRedirectTarget: "/index.html"},
			want:  "/index.html",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, s := newTestService(t)
			require.NoError(t, repo.Update(ctx, repository.NewContent(NodePath, tt.props)))
			s.Apply(ctx, Config{Path: "/dev/"})
			node, err := repo.Get(ctx, NodePath)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String(PropRedirectTarget))
		})
	}
}

func TestApply_AdminPassword(t *testing.T) {
	ctx := context.Background()
	repo, s := newTestService(t)
	s.Apply(ctx, Config{AdminPassword: "ignored"})

	require.NoError(t, repo.CreateUser(ctx, repository.AdminID, "admin", nil))
	s.Apply(ctx, Config{AdminPassword: "n3w"})
	ok, err := repo.CheckPassword(ctx, repository.AdminID, "n3w")
	require.NoError(t, err)
	assert.True(t, ok)

	s.Apply(ctx, Config{})
	ok, err = repo.CheckPassword(ctx, repository.AdminID, "n3w")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBootstrap(t *testing.T) {
	ctx := context.Background()
	repo, svc := newTestService(t)

	require.NoError(t, svc.Bootstrap(ctx))
	ok, err := repo.CheckPassword(ctx, repository.AdminID, DefaultAdminPassword)
	require.NoError(t, err)
	assert.True(t, ok)
	node, err := repo.Get(ctx, NodePath)
	require.NoError(t, err)
	assert.Equal(t, DefaultRootTarget, node.String(PropRedirectTarget))

	svc.Apply(ctx, Config{Path: "/dev/", AdminPassword: "changed"})
	require.NoError(t, svc.Bootstrap(ctx))
	node, err = repo.Get(ctx, NodePath)
	require.NoError(t, err)
	assert.Equal(t, "/dev/", node.String(PropRedirectTarget))
	ok, err = repo.CheckPassword(ctx, repository.AdminID, "changed")
	require.NoError(t, err)
	assert.True(t, ok)
}
