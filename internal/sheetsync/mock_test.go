package sheetsync

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// --- Sheets Client Mock ---

type appendFunc func(rows [][]string) (int, error)

// appendAll reports every row as written.
var appendAll = appendFunc(func(rows [][]string) (int, error) { return len(rows), nil })

type mockSheetsClient struct {
	mock.Mock
}

func (m *mockSheetsClient) EnsureHeader(ctx context.Context, spreadsheetID, sheet string, header []string) (bool, error) {
	args := m.Called(ctx, spreadsheetID, sheet, header)
	return args.Bool(0), args.Error(1)
}

func (m *mockSheetsClient) AppendRows(ctx context.Context, spreadsheetID, sheet string, rows [][]string) (int, error) {
	args := m.Called(ctx, spreadsheetID, sheet, rows)
	if fn, ok := args.Get(0).(appendFunc); ok {
		return fn(rows)
	}
	return args.Int(0), args.Error(1)
}

// appended returns the rows of every AppendRows call, in call order.
func (m *mockSheetsClient) appended() [][][]string {
	var out [][][]string
	for _, c := range m.Calls {
		if c.Method == "AppendRows" {
			out = append(out, c.Arguments.Get(3).([][]string))
		}
	}
	return out
}
