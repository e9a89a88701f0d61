package notice

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ets-berkeley-edu/myberkeley/internal/mailer"
	"github.com/ets-berkeley-edu/myberkeley/repository"
	"github.com/ets-berkeley-edu/myberkeley/repository/memory"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, msg *mailer.Message) (string, error) {
	args := m.Called(ctx, msg)
	return args.String(0), args.Error(1)
}

// putUser stores a home and the given myberkeley profile elements.
func putUser(t *testing.T, repo *memory.Store, userID string, elements map[string]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.Update(ctx, repository.NewContent(repository.HomePath(userID), map[string]any{
		repository.PropResourceType: repository.UserHomeResourceType,
	})))
	for key, value := range elements {
		require.NoError(t, repo.Update(ctx, repository.NewContent(
			repository.ElementPath(userID, "myberkeley", key), map[string]any{"value": value})))
	}
}

func putEmail(t *testing.T, repo *memory.Store, userID, email string) {
	t.Helper()
	require.NoError(t, repo.Update(context.Background(), repository.NewContent(
		repository.ElementPath(userID, "email", "email"), map[string]any{"value": email})))
}

func putNotice(t *testing.T, repo *memory.Store, path string, props map[string]any) *repository.Content {
	t.Helper()
	all := map[string]any{
		repository.PropResourceType: ResourceType,
		PropType:                    TypeNotice,
		PropID:                      repository.Name(path),
	}
	for k, v := range props {
		all[k] = v
	}
	n := repository.NewContent(path, all)
	require.NoError(t, repo.Update(context.Background(), n))
	return n
}
