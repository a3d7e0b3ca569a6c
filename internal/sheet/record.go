package sheet

import (
	"errors"
	"fmt"
)

// Status is the processing state of an order row
type Status string

const (
	StatusPending Status = "Pending"
	StatusChecked Status = "Checked"
)

// Valid reports whether s is one of the two known states
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusChecked
}

// Column positions (1-based) of the order sheet. The layout is shared with rows
// written before this service existed and must not be reordered.
const (
	ColImage        = 1  // A
	ColReceiver     = 2  // B
	ColLocation     = 3  // C
	ColRunNumber    = 4  // D
	ColReserved     = 5  // E
	ColPlatform     = 6  // F
	ColDate         = 7  // G
	ColShop         = 8  // H
	ColPrice        = 9  // I
	ColCoins        = 10 // J
	ColItem         = 11 // K
	ColOrderID      = 12 // L
	ColTracking     = 13 // M
	ColDeliveryDate = 14 // N
	ColStatus       = 15 // O

	columnCount = 15
)

var (
	orderIDHeaders   = []string{"Order ID", "order_id", "เลขออเดอร์"}
	statusHeaders    = []string{"Status", "สถานะ"}
	runNumberHeaders = []string{"Run No", "run_no", "ลำดับ"}
)

var (
	// ErrNotFound is returned when an order id has no row in the sheet
	ErrNotFound = errors.New("order not found")

	// ErrInvalidStatus is returned for statuses other than Pending and Checked
	ErrInvalidStatus = errors.New("invalid status")
)

// Record is one order row
type Record struct {
	RunNumber      int
	ReceiverName   string
	Location       string
	Platform       string
	Date           string // DD/MM
	ShopName       string
	ItemName       string
	Price          string
	Coins          string
	OrderID        string
	TrackingNumber string
	DeliveryDate   string
	Status         Status
	ImageURL       string
}

// Row is a loosely typed sheet row keyed by normalized header
type Row map[string]string

// values lays the record out in sheet column order
func (r Record) values() []string {
	status := r.Status
	if status == "" {
		status = StatusPending
	}

	row := make([]string, columnCount)
	row[ColImage-1] = ImageCell(r.ImageURL, r.RunNumber)
	row[ColReceiver-1] = r.ReceiverName
	row[ColLocation-1] = r.Location
	if r.RunNumber > 0 {
		row[ColRunNumber-1] = fmt.Sprintf("%d", r.RunNumber)
	}
	row[ColPlatform-1] = r.Platform
	row[ColDate-1] = r.Date
	row[ColShop-1] = r.ShopName
	row[ColPrice-1] = FormatAmount(r.Price)
	row[ColCoins-1] = FormatAmount(r.Coins)
	row[ColItem-1] = r.ItemName
	row[ColOrderID-1] = r.OrderID
	row[ColTracking-1] = r.TrackingNumber
	row[ColDeliveryDate-1] = r.DeliveryDate
	row[ColStatus-1] = string(status)
	return row
}
