package repository

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockContentManager implements ContentManager for testing
type MockContentManager struct {
	mock.Mock
}

func (m *MockContentManager) Get(ctx context.Context, path string) (*Content, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Content), args.Error(1)
}

func (m *MockContentManager) Exists(ctx context.Context, path string) (bool, error) {
	args := m.Called(ctx, path)
	return args.Bool(0), args.Error(1)
}

func (m *MockContentManager) Update(ctx context.Context, content *Content) error {
	args := m.Called(ctx, content)
	return args.Error(0)
}

func (m *MockContentManager) Delete(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}

func (m *MockContentManager) ListChildren(ctx context.Context, path string) ([]*Content, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Content), args.Error(1)
}

func (m *MockContentManager) Find(ctx context.Context, props map[string]any, limit int) ([]*Content, error) {
	args := m.Called(ctx, props, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Content), args.Error(1)
}

func (m *MockContentManager) Walk(ctx context.Context, prefix string, fn func(*Content) error) error {
	args := m.Called(ctx, prefix, fn)
	if nodes, ok := args.Get(0).([]*Content); ok {
		for _, c := range nodes {
			if err := fn(c); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

var _ ContentManager = (*MockContentManager)(nil)
