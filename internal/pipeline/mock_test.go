package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadfetch/internal/model"
	"github.com/sells-group/leadfetch/internal/sheetsync"
	"github.com/sells-group/leadfetch/pkg/search"
)

// --- Search Mock ---

type searchFunc func(req search.SearchRequest) (*search.SearchResponse, error)

type mockSearch struct {
	mock.Mock
}

func (m *mockSearch) SearchPeople(ctx context.Context, req search.SearchRequest) (*search.SearchResponse, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(searchFunc); ok {
		return fn(req)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.SearchResponse), args.Error(1)
}

func (m *mockSearch) Reveal(ctx context.Context, personID string) (*search.RevealResult, error) {
	args := m.Called(ctx, personID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*search.RevealResult), args.Error(1)
}

// --- Sheet Writer Mock ---

type sheetFunc func(rows []model.SheetRow) (*sheetsync.Result, error)

type mockSheets struct {
	mock.Mock
}

func (m *mockSheets) Write(ctx context.Context, c *model.Campaign, rows []model.SheetRow) (*sheetsync.Result, error) {
	args := m.Called(ctx, c, rows)
	if fn, ok := args.Get(0).(sheetFunc); ok {
		return fn(rows)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*sheetsync.Result), args.Error(1)
}
