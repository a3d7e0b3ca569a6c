package order

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/order-bot/internal/sheet"
)

// ErrNoRecords is returned when there is nothing to export
var ErrNoRecords = errors.New("no records to export")

const exportSheetName = "Orders"

// exportCommands are the chat texts that request an accounting export
var exportCommands = []string{"export", "ขอไฟล์เบิกเงิน", "ทำบัญชี"}

// IsExportCommand reports whether a chat message asks for the export
func IsExportCommand(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	for _, cmd := range exportCommands {
		if text == cmd {
			return true
		}
	}
	return false
}

// SheetReader reads the full order sheet
type SheetReader interface {
	ReadAll(ctx context.Context) (*sheet.Snapshot, error)
}

// Exporter builds the accounting workbook and uploads it next to the images
type Exporter struct {
	sheet      SheetReader
	blobs      BlobStore
	folders    FolderResolver
	timeSource TimeSource
}

// NewExporter creates a new Exporter
func NewExporter(reader SheetReader, blobs BlobStore, folders FolderResolver) *Exporter {
	return NewExporterWithDeps(reader, blobs, folders, &defaultTimeSource{})
}

// NewExporterWithDeps creates a new Exporter with a custom time source for testing
func NewExporterWithDeps(reader SheetReader, blobs BlobStore, folders FolderResolver, timeSrc TimeSource) *Exporter {
	return &Exporter{
		sheet:      reader,
		blobs:      blobs,
		folders:    folders,
		timeSource: timeSrc,
	}
}

// Export writes every order, sorted by shop, item and price, to an xlsx file
// in the sheet's folder
func (e *Exporter) Export(ctx context.Context) (*Blob, error) {
	snap, err := e.sheet.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading orders: %w", err)
	}
	if len(snap.Rows) == 0 {
		return nil, ErrNoRecords
	}

	folderID, err := e.folders.Folder()
	if err != nil {
		return nil, fmt.Errorf("resolving folder: %w", err)
	}

	rows := sortForAccounting(snap.Headers, snap.Rows)
	data, err := buildWorkbook(snap.Headers, rows)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("Accounting_Report_%s.xlsx", e.timeSource.Now().Format("20060102_1504"))
	blob, err := e.blobs.Upload(ctx, data, folderID, filename)
	if err != nil {
		return nil, fmt.Errorf("uploading report: %w", err)
	}

	slog.Info("Exported accounting report", "file", filename, "rows", len(rows))
	return blob, nil
}

// sortForAccounting orders rows by the shop (H), item (K) and numeric price (I)
// columns. Rows that tie keep their sheet order.
func sortForAccounting(headers []string, rows []sheet.Row) []sheet.Row {
	shop := headerAt(headers, sheet.ColShop)
	item := headerAt(headers, sheet.ColItem)
	price := headerAt(headers, sheet.ColPrice)

	sorted := make([]sheet.Row, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a[shop] != b[shop] {
			return a[shop] < b[shop]
		}
		if a[item] != b[item] {
			return a[item] < b[item]
		}
		return sheet.ParseAmount(a[price]).LessThan(sheet.ParseAmount(b[price]))
	})
	return sorted
}

func headerAt(headers []string, col int) string {
	if col-1 < len(headers) {
		return headers[col-1]
	}
	return ""
}

func buildWorkbook(headers []string, rows []sheet.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheetName); err != nil {
		return nil, fmt.Errorf("naming worksheet: %w", err)
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, row := range rows {
		values := make([]interface{}, len(headers))
		for j, h := range headers {
			values[j] = row[h]
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("addressing row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(exportSheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), nil
}
