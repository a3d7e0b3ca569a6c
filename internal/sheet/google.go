package sheet

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"google.golang.org/api/sheets/v4"

	"github.com/zombor/order-bot/internal/gauth"
)

// GoogleTable implements Table on top of the Sheets v4 API
type GoogleTable struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
}

// NewGoogleTable connects to one worksheet of a spreadsheet. credentials is
// either a path to a credentials file or the JSON payload. An empty sheetName
// addresses the first worksheet.
func NewGoogleTable(ctx context.Context, credentials, spreadsheetID, sheetName string) (*GoogleTable, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}

	svc, err := sheets.NewService(ctx, gauth.ClientOptions(credentials)...)
	if err != nil {
		return nil, fmt.Errorf("creating sheets client: %w", err)
	}

	return &GoogleTable{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

// a1 qualifies a range with the worksheet name
func (g *GoogleTable) a1(rng string) string {
	if g.sheetName == "" {
		return rng
	}
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(g.sheetName, "'", "''"), rng)
}

// ReadAll returns the formatted values of the whole worksheet
func (g *GoogleTable) ReadAll(ctx context.Context) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.a1("A:ZZ")).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}
	return toStrings(resp.Values), nil
}

// Row returns the formatted values of a single row
func (g *GoogleTable) Row(ctx context.Context, n int) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.a1(fmt.Sprintf("%d:%d", n, n))).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading row %d: %w", n, err)
	}

	rows := toStrings(resp.Values)
	if len(rows) == 0 {
		return []string{}, nil
	}
	return rows[0], nil
}

// AppendRow appends values as user-entered input so formulas are evaluated
func (g *GoogleTable) AppendRow(ctx context.Context, values []string) (int, error) {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}

	rng := g.a1(fmt.Sprintf("A:%s", ColumnLetter(len(values))))
	resp, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{cells},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("appending row: %w", err)
	}

	if resp.Updates == nil {
		return 0, nil
	}
	return rowFromRange(resp.Updates.UpdatedRange), nil
}

// UpdateCell writes a single user-entered value
func (g *GoogleTable) UpdateCell(ctx context.Context, row, col int, value string) error {
	cell := g.a1(fmt.Sprintf("%s%d", ColumnLetter(col), row))
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, cell, &sheets.ValueRange{
		Values: [][]interface{}{{value}},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("updating %s: %w", cell, err)
	}
	return nil
}

// FindRow scans the worksheet for the first cell equal to value
func (g *GoogleTable) FindRow(ctx context.Context, value string) (int, error) {
	rows, err := g.ReadAll(ctx)
	if err != nil {
		return 0, err
	}

	for i, row := range rows {
		for _, cell := range row {
			if cell == value {
				return i + 1, nil
			}
		}
	}
	return 0, ErrNotFound
}

// ColumnValues returns one column top to bottom
func (g *GoogleTable) ColumnValues(ctx context.Context, col int) ([]string, error) {
	letter := ColumnLetter(col)
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, g.a1(letter+":"+letter)).
		MajorDimension("COLUMNS").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("reading column %s: %w", letter, err)
	}

	cols := toStrings(resp.Values)
	if len(cols) == 0 {
		return []string{}, nil
	}
	return cols[0], nil
}

func toStrings(values [][]interface{}) [][]string {
	rows := make([][]string, len(values))
	for i, row := range values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fmt.Sprint(cell)
		}
	}
	return rows
}

// ColumnLetter converts a 1-based column number to its A1 letters
func ColumnLetter(col int) string {
	var letters []byte
	for col > 0 {
		col--
		letters = append([]byte{byte('A' + col%26)}, letters...)
		col /= 26
	}
	return string(letters)
}

var updatedRowPattern = regexp.MustCompile(`![A-Z]+(\d+)`)

// rowFromRange extracts the first row number of an A1 range like
// "'Orders'!A15:O15"
func rowFromRange(rng string) int {
	m := updatedRowPattern.FindStringSubmatch(rng)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
