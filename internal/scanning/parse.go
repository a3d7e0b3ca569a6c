package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// dateLayouts are the shapes models return besides the requested DD/MM
var dateLayouts = []string{
	"2/1",
	"2/1/2006",
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
}

// parseOrderJSON parses the JSON object in a model response
func parseOrderJSON(text string) (*OrderData, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var data OrderData
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	data.Platform = capitalize(strings.TrimSpace(data.Platform))
	data.ShopName = strings.TrimSpace(data.ShopName)
	data.ItemName = strings.TrimSpace(data.ItemName)
	data.ReceiverName = strings.TrimSpace(data.ReceiverName)
	data.Location = strings.TrimSpace(data.Location)
	data.OrderID = strings.TrimSpace(data.OrderID)
	data.Date = normalizeDate(data.Date)

	data.TrackingNumber = strings.TrimSpace(data.TrackingNumber)
	if data.TrackingNumber == "-" || data.TrackingNumber == "ไม่มี" {
		data.TrackingNumber = ""
	}

	if data.OrderID == "" && data.ShopName == "" && data.ReceiverName == "" && data.Price.IsZero() {
		return nil, fmt.Errorf("no order fields found in response")
	}

	return &data, nil
}

// normalizeDate rewrites a purchase date as DD/MM, leaving unknown shapes as-is
func normalizeDate(date string) string {
	date = strings.TrimSpace(date)
	if date == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, date); err == nil {
			return d.Format("02/01")
		}
	}
	return date
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
