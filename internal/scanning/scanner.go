package scanning

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderData contains the fields extracted from an order receipt
type OrderData struct {
	Platform       string `json:"platform"`
	ShopName       string `json:"shop_name"`
	ItemName       string `json:"item_name"`
	Price          Amount `json:"price"`
	Coins          Amount `json:"coins"`
	ReceiverName   string `json:"receiver_name"`
	Location       string `json:"location"`
	Date           string `json:"date"` // DD/MM
	OrderID        string `json:"order_id"`
	TrackingNumber string `json:"tracking_number"`
}

// Amount is a money value. Models return it as a number most of the time and
// as a string with separators the rest.
type Amount struct {
	decimal.Decimal
}

// NewAmount parses an amount the way model output is parsed. Unreadable
// values are zero.
func NewAmount(s string) Amount {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" || s == "-" {
		return Amount{}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}
	}
	return Amount{d}
}

// UnmarshalJSON accepts numbers, numeric strings and null
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = Amount{}
		return nil
	}

	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s = str
	}

	*a = NewAmount(s)
	return nil
}

// String renders the amount without trailing zeros
func (a Amount) String() string {
	return a.Decimal.String()
}

// Extractor defines the interface for reading order data out of an image
type Extractor interface {
	// Extract analyzes a receipt image and returns the order fields
	Extract(ctx context.Context, imageData []byte) (*OrderData, error)
	// Close closes the extractor and releases resources
	Close() error
}
