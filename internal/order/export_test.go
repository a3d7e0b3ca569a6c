package order

import (
	"bytes"
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/order-bot/internal/sheet"
)

// fakeSheetReader serves a fixed snapshot
type fakeSheetReader struct {
	snap *sheet.Snapshot
	err  error
}

func (f *fakeSheetReader) ReadAll(ctx context.Context) (*sheet.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func exportRow(run, shop, item, price string) sheet.Row {
	headers := normalizedHeaders()
	row := sheet.Row{}
	for _, h := range headers {
		row[h] = ""
	}
	row["Run No"] = run
	row["ชื่อร้าน"] = shop
	row["ชื่อของ"] = item
	row["ราคาของ"] = price
	return row
}

func normalizedHeaders() []string {
	headers := orderHeaders()
	headers[4] = "Column5"
	return headers
}

var _ = Describe("Exporter", func() {
	var (
		reader   *fakeSheetReader
		blobs    *fakeBlobStore
		folders  *fakeFolders
		exporter *Exporter
		blob     *Blob
		err      error
	)

	BeforeEach(func() {
		reader = &fakeSheetReader{snap: &sheet.Snapshot{
			Headers: normalizedHeaders(),
			Rows: []sheet.Row{
				exportRow("1", "Xiaomi", "Buds", "1,000.00"),
				exportRow("2", "Anker", "Cable", "200.00"),
				exportRow("3", "Xiaomi", "Buds", "200.00"),
				exportRow("4", "Xiaomi", "Adapter", "50.00"),
			},
		}}
		blobs = newFakeBlobStore()
		folders = &fakeFolders{folder: "folder-1"}
	})

	JustBeforeEach(func() {
		exporter = NewExporterWithDeps(reader, blobs, folders, &mockTimeSource{now: time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)})
		blob, err = exporter.Export(context.Background())
	})

	When("the sheet has rows", func() {
		It("should upload a timestamped workbook to the folder", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(blobs.uploads).To(Equal([]string{"folder-1/Accounting_Report_20261016_0930.xlsx"}))
			Expect(blob.URL).NotTo(BeEmpty())
		})

		It("should sort by shop, item and numeric price", func() {
			f, openErr := excelize.OpenReader(bytes.NewReader(blobs.files["folder-1/Accounting_Report_20261016_0930.xlsx"]))
			Expect(openErr).NotTo(HaveOccurred())
			defer f.Close()

			rows, rowsErr := f.GetRows(exportSheetName)
			Expect(rowsErr).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(5))
			Expect(rows[0][3]).To(Equal("Run No"))

			runs := []string{rows[1][3], rows[2][3], rows[3][3], rows[4][3]}
			Expect(runs).To(Equal([]string{"2", "4", "3", "1"}))
		})
	})

	When("the sheet is empty", func() {
		BeforeEach(func() {
			reader.snap = &sheet.Snapshot{Headers: normalizedHeaders(), Rows: []sheet.Row{}}
		})

		It("returns ErrNoRecords", func() {
			Expect(err).To(MatchError(ErrNoRecords))
			Expect(blobs.uploads).To(BeEmpty())
		})
	})

	When("the sheet cannot be read", func() {
		BeforeEach(func() {
			reader.err = errors.New("quota exceeded")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("reading orders")))
		})
	})

	When("there is no folder", func() {
		BeforeEach(func() {
			folders.err = ErrNoFolder
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ErrNoFolder))
		})
	})

	When("the upload fails", func() {
		BeforeEach(func() {
			blobs.uploadErr = errors.New("drive unavailable")
		})

		It("returns the error", func() {
			Expect(err).To(MatchError(ContainSubstring("uploading report")))
		})
	})
})
