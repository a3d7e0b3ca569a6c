package order

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/zombor/order-bot/internal/sheet"
)

// OrderBook is the order sheet as the dashboard sees it
type OrderBook interface {
	Records(ctx context.Context) (*sheet.Snapshot, error)
	UpdateStatus(ctx context.Context, orderID string, status sheet.Status) error
}

// FolderSettings reads and changes the active sheet's upload folder
type FolderSettings interface {
	FolderResolver
	SetFolder(folderID string) error
	Sheet() string
}

// columnAliases maps the header spellings found in existing sheets to the
// names the dashboard uses. A header takes the name of the first alias it
// contains, so "Run No." and "วันที่ซื้อ" match too.
var columnAliases = []struct{ alias, name string }{
	{"Run No", "Run No"}, {"run_no", "Run No"}, {"ลำดับ", "Run No"},
	{"Name", "Name"}, {"receiver_name", "Name"}, {"ชื่อลูกค้า", "Name"}, {"ชื่อหน้ากล่อง", "Name"},
	{"Item", "Item"}, {"item_name", "Item"}, {"ชื่อของ", "Item"}, {"รายการสินค้า", "Item"},
	{"Price", "Price"}, {"price", "Price"}, {"ยอดรวม", "Price"}, {"ราคาของ", "Price"},
	{"Status", "Status"}, {"status", "Status"}, {"สถานะ", "Status"},
	{"Order ID", "Order ID"}, {"order_id", "Order ID"}, {"เลขออเดอร์", "Order ID"},
	{"Image Link", "Image Link"}, {"image_link", "Image Link"}, {"Link รูป", "Image Link"},
	{"Tracking Number", "Tracking"}, {"tracking_number", "Tracking"}, {"เลขพัสดุ", "Tracking"},
	{"Platform", "Platform"}, {"platform", "Platform"},
	{"Coins", "Coins"}, {"coins", "Coins"}, {"เหรียญ", "Coins"},
	{"Date", "Date"}, {"date", "Date"}, {"วันที่ bought", "Date"}, {"วันที่", "Date"},
	{"Location", "Location"}, {"location", "Location"}, {"ที่อยู่", "Location"}, {"ส่งที่ไหน", "Location"},
	{"shop_name", "Shop"}, {"ชื่อร้าน", "Shop"},
}

// columnName is the dashboard name for a sheet header
func columnName(header string) (string, bool) {
	for _, a := range columnAliases {
		if strings.Contains(header, a.alias) {
			return a.name, true
		}
	}
	return "", false
}

// OrderView is one row as served to the dashboard
type OrderView map[string]string

// FoundImage is the result of an image lookup by run number
type FoundImage struct {
	Found  bool   `json:"found"`
	ID     string `json:"id,omitempty"`
	URL    string `json:"url,omitempty"`
	Direct string `json:"direct,omitempty"`
}

// FolderInfo describes the upload folder of the active sheet
type FolderInfo struct {
	Sheet      string `json:"sheet"`
	FolderID   string `json:"folder_id"`
	FolderName string `json:"folder_name,omitempty"`
}

// Dashboard serves the review screens: order list, status toggle, images and
// folder settings
type Dashboard struct {
	orders  OrderBook
	blobs   BlobStore
	folders FolderSettings
}

// NewDashboard creates a new Dashboard
func NewDashboard(orders OrderBook, blobs BlobStore, folders FolderSettings) *Dashboard {
	return &Dashboard{orders: orders, blobs: blobs, folders: folders}
}

// Orders returns the cached rows with canonical column names and a direct image link
func (d *Dashboard) Orders(ctx context.Context) ([]OrderView, error) {
	snap, err := d.orders.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}

	imageHeader := ""
	if len(snap.Headers) > 0 {
		imageHeader = snap.Headers[sheet.ColImage-1]
	}

	views := make([]OrderView, 0, len(snap.Rows))
	for _, row := range snap.Rows {
		view := make(OrderView, len(row)+2)
		renamed := make(map[string]bool, len(snap.Headers))
		for _, h := range snap.Headers {
			key := h
			// the first header wins a name, later ones keep their own
			if name, ok := columnName(h); ok && !renamed[name] {
				key = name
				renamed[name] = true
			}
			view[key] = row[h]
		}

		raw, ok := view["Image Link"]
		if !ok {
			raw = row[imageHeader]
		}
		view["RawImageLink"] = raw
		view["DirectImage"] = DirectImage(raw)
		views = append(views, view)
	}
	return views, nil
}

// SetStatus checks or unchecks an order
func (d *Dashboard) SetStatus(ctx context.Context, orderID string, status sheet.Status) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return errors.New("order id is required")
	}
	return d.orders.UpdateStatus(ctx, orderID, status)
}

// FindImage looks for the uploaded image of a run number
func (d *Dashboard) FindImage(ctx context.Context, run string) (*FoundImage, error) {
	run = strings.TrimSpace(run)
	if _, err := strconv.Atoi(run); err != nil {
		return nil, fmt.Errorf("invalid run number %q", run)
	}

	folderID, err := d.folders.Folder()
	if err != nil {
		return nil, fmt.Errorf("resolving folder: %w", err)
	}

	for _, name := range []string{run + ".jpg", run} {
		blob, err := d.blobs.Find(ctx, folderID, name)
		if errors.Is(err, ErrBlobNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("finding image %s: %w", name, err)
		}
		return &FoundImage{Found: true, ID: blob.ID, URL: blob.URL, Direct: DirectImage(blob.URL)}, nil
	}
	return &FoundImage{Found: false}, nil
}

// Blob returns a stored file
func (d *Dashboard) Blob(ctx context.Context, id string) ([]byte, string, error) {
	return d.blobs.Download(ctx, id)
}

// Folder describes the current upload folder
func (d *Dashboard) Folder(ctx context.Context) (*FolderInfo, error) {
	folderID, err := d.folders.Folder()
	if err != nil {
		return nil, err
	}

	info := &FolderInfo{Sheet: d.folders.Sheet(), FolderID: folderID}
	if name, err := d.blobs.FolderName(ctx, folderID); err == nil {
		info.FolderName = name
	}
	return info, nil
}

// SetFolder changes the upload folder of the active sheet
func (d *Dashboard) SetFolder(folderID string) error {
	return d.folders.SetFolder(strings.TrimSpace(folderID))
}

var (
	quotedURL   = regexp.MustCompile(`"(http[^"]+)"`)
	driveFileID = regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`)
	driveQuery  = regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`)
)

// DirectImage turns an image cell (a HYPERLINK formula or a Drive viewer link)
// into a URL an <img> tag can load. Non-Drive links are returned unchanged.
func DirectImage(cell string) string {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return ""
	}
	if strings.Contains(cell, "lh3.googleusercontent.com") {
		return cell
	}

	link := cell
	if m := quotedURL.FindStringSubmatch(cell); m != nil {
		link = m[1]
	}
	if !strings.HasPrefix(link, "http") {
		return ""
	}
	if !strings.Contains(link, "google.com") {
		return link
	}

	m := driveFileID.FindStringSubmatch(link)
	if m == nil {
		m = driveQuery.FindStringSubmatch(link)
	}
	if m == nil {
		return link
	}
	return fmt.Sprintf("https://lh3.googleusercontent.com/d/%s=s1000", m[1])
}
