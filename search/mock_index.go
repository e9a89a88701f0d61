package search

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockIndex is a testify mock of Index.
type MockIndex struct {
	mock.Mock
}

func (m *MockIndex) Search(ctx context.Context, q Query) (*Result, error) {
	args := m.Called(ctx, q)
	if r := args.Get(0); r != nil {
		return r.(*Result), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockIndex) Add(ctx context.Context, docs ...Document) error {
	args := m.Called(ctx, docs)
	return args.Error(0)
}

func (m *MockIndex) DeleteByQuery(ctx context.Context, queries ...string) error {
	args := m.Called(ctx, queries)
	return args.Error(0)
}
