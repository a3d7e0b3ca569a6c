package order

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/order-bot/internal/sheet"
)

// fakeOrderBook serves a fixed snapshot and records status updates
type fakeOrderBook struct {
	snap      *sheet.Snapshot
	err       error
	updateErr error
	updates   []string
}

func (f *fakeOrderBook) Records(ctx context.Context) (*sheet.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

func (f *fakeOrderBook) UpdateStatus(ctx context.Context, orderID string, status sheet.Status) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, orderID+"="+string(status))
	return nil
}

func dashboardSnapshot() *sheet.Snapshot {
	row := exportRow("1", "Xiaomi", "Buds", "250.00")
	row["Image Link"] = "https://drive.google.com/file/d/abc123/view?usp=drivesdk"
	row["ชื่อหน้ากล่อง"] = "Somchai"
	row["Order ID"] = "ORD1"
	row["Status"] = "Pending"
	return &sheet.Snapshot{Headers: normalizedHeaders(), Rows: []sheet.Row{row}}
}

var _ = Describe("Dashboard", func() {
	var (
		ctx       context.Context
		orders    *fakeOrderBook
		blobs     *fakeBlobStore
		folders   *fakeFolders
		dashboard *Dashboard
	)

	BeforeEach(func() {
		ctx = context.Background()
		orders = &fakeOrderBook{snap: dashboardSnapshot()}
		blobs = newFakeBlobStore()
		folders = &fakeFolders{folder: "folder-1", sheet: "Orders"}
		dashboard = NewDashboard(orders, blobs, folders)
	})

	Describe("Orders", func() {
		It("should rename known columns", func() {
			views, err := dashboard.Orders(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(views).To(HaveLen(1))
			Expect(views[0]).To(HaveKeyWithValue("Name", "Somchai"))
			Expect(views[0]).To(HaveKeyWithValue("Shop", "Xiaomi"))
			Expect(views[0]).To(HaveKeyWithValue("Price", "250.00"))
			Expect(views[0]).To(HaveKeyWithValue("Order ID", "ORD1"))
			Expect(views[0]).To(HaveKeyWithValue("Column5", ""))
		})

		It("should rename headers that contain a known name", func() {
			orders.snap = &sheet.Snapshot{
				Headers: []string{"Run No.", "วันที่ซื้อ", "วันที่ได้รับ", "สถานะ (Status)"},
				Rows: []sheet.Row{{
					"Run No.":        "5",
					"วันที่ซื้อ":     "01/02",
					"วันที่ได้รับ":   "05/02",
					"สถานะ (Status)": "Checked",
				}},
			}

			views, err := dashboard.Orders(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(views[0]).To(HaveKeyWithValue("Run No", "5"))
			Expect(views[0]).To(HaveKeyWithValue("Date", "01/02"))
			Expect(views[0]).To(HaveKeyWithValue("วันที่ได้รับ", "05/02"))
			Expect(views[0]).To(HaveKeyWithValue("Status", "Checked"))
			Expect(views[0]).NotTo(HaveKey("Run No."))
		})

		It("should add a direct image link", func() {
			views, err := dashboard.Orders(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(views[0]).To(HaveKeyWithValue("DirectImage", "https://lh3.googleusercontent.com/d/abc123=s1000"))
			Expect(views[0]).To(HaveKeyWithValue("RawImageLink", "https://drive.google.com/file/d/abc123/view?usp=drivesdk"))
		})

		It("returns read errors", func() {
			orders.err = errors.New("quota exceeded")
			_, err := dashboard.Orders(ctx)
			Expect(err).To(MatchError(ContainSubstring("listing orders")))
		})
	})

	Describe("SetStatus", func() {
		It("should update the order", func() {
			Expect(dashboard.SetStatus(ctx, " ORD1 ", sheet.StatusChecked)).To(Succeed())
			Expect(orders.updates).To(Equal([]string{"ORD1=Checked"}))
		})

		It("should require an order id", func() {
			Expect(dashboard.SetStatus(ctx, " ", sheet.StatusChecked)).To(HaveOccurred())
			Expect(orders.updates).To(BeEmpty())
		})
	})

	Describe("FindImage", func() {
		When("the image was uploaded", func() {
			BeforeEach(func() {
				_, err := blobs.Upload(ctx, []byte("jpeg"), "folder-1", "3.jpg")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return it", func() {
				found, err := dashboard.FindImage(ctx, "3")
				Expect(err).NotTo(HaveOccurred())
				Expect(found.Found).To(BeTrue())
				Expect(found.ID).To(Equal("folder-1/3.jpg"))
				Expect(found.URL).To(Equal("https://drive.google.com/file/d/3.jpg/view"))
				Expect(found.Direct).To(Equal("https://lh3.googleusercontent.com/d/3=s1000"))
			})
		})

		When("an image was uploaded without extension", func() {
			BeforeEach(func() {
				_, err := blobs.Upload(ctx, []byte("jpeg"), "folder-1", "8")
				Expect(err).NotTo(HaveOccurred())
			})

			It("should find it by bare run number", func() {
				found, err := dashboard.FindImage(ctx, "8")
				Expect(err).NotTo(HaveOccurred())
				Expect(found.ID).To(Equal("folder-1/8"))
			})
		})

		When("there is no image", func() {
			It("should report not found", func() {
				found, err := dashboard.FindImage(ctx, "3")
				Expect(err).NotTo(HaveOccurred())
				Expect(found.Found).To(BeFalse())
			})
		})

		When("the run number is not a number", func() {
			It("returns the error", func() {
				_, err := dashboard.FindImage(ctx, "../secrets")
				Expect(err).To(MatchError(ContainSubstring("invalid run number")))
			})
		})
	})

	Describe("Folder", func() {
		It("should describe the folder", func() {
			info, err := dashboard.Folder(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(info).To(Equal(&FolderInfo{Sheet: "Orders", FolderID: "folder-1", FolderName: "Receipts 2026"}))
		})

		It("should change the folder", func() {
			Expect(dashboard.SetFolder(" folder-2 ")).To(Succeed())
			Expect(folders.folder).To(Equal("folder-2"))
		})
	})
})

var _ = DescribeTable("DirectImage",
	func(cell, expected string) {
		Expect(DirectImage(cell)).To(Equal(expected))
	},
	Entry("empty", "", ""),
	Entry("drive viewer link", "https://drive.google.com/file/d/abc_1-2/view", "https://lh3.googleusercontent.com/d/abc_1-2=s1000"),
	Entry("drive open link", "https://drive.google.com/open?id=xyz789", "https://lh3.googleusercontent.com/d/xyz789=s1000"),
	Entry("hyperlink formula", `=HYPERLINK("https://drive.google.com/file/d/abc/view", "Check Order 1")`, "https://lh3.googleusercontent.com/d/abc=s1000"),
	Entry("already direct", "https://lh3.googleusercontent.com/d/abc=s1000", "https://lh3.googleusercontent.com/d/abc=s1000"),
	Entry("local blob link", "http://localhost:8080/api/blobs/receipts/1.jpg", "http://localhost:8080/api/blobs/receipts/1.jpg"),
	Entry("label only", "Check Order 1", ""),
)
