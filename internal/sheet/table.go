package sheet

import "context"

// Table is the remote spreadsheet the orders live in. Rows and columns are
// 1-based; row 1 holds the headers.
type Table interface {
	// ReadAll returns every row including the header row
	ReadAll(ctx context.Context) ([][]string, error)

	// Row returns a single row
	Row(ctx context.Context, n int) ([]string, error)

	// AppendRow writes a new row after the last one, parsing formulas, and
	// returns its row number when the backend reports it (0 otherwise)
	AppendRow(ctx context.Context, values []string) (int, error)

	// UpdateCell overwrites one cell
	UpdateCell(ctx context.Context, row, col int, value string) error

	// FindRow returns the first row holding a cell equal to value, or ErrNotFound
	FindRow(ctx context.Context, value string) (int, error)

	// ColumnValues returns the cells of one column from the top, header included
	ColumnValues(ctx context.Context, col int) ([]string, error)
}
