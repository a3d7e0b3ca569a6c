package scanning

import (
	"encoding/json"
	"fmt"
)

type orderField struct {
	name        string
	number      bool
	description string
}

// orderFields lists the keys of OrderData in the order models should emit them
var orderFields = []orderField{
	{"platform", false, "Shopping platform, capitalized"},
	{"shop_name", false, "Shop name without store suffixes"},
	{"item_name", false, "Main product, at most 30 characters"},
	{"price", true, "Net amount paid"},
	{"coins", true, "Discount paid with coins or points"},
	{"receiver_name", false, "Receiver as printed, without phone number"},
	{"location", false, "Location keyword or district"},
	{"date", false, "Purchase date as DD/MM"},
	{"order_id", false, "Order number, letters and digits only"},
	{"tracking_number", false, "Amaze parcel number or empty"},
}

// ollamaOrderFormat is the JSON schema Ollama's structured output accepts
var ollamaOrderFormat = mustOrderFormat()

func mustOrderFormat() json.RawMessage {
	props := make(map[string]map[string]string, len(orderFields))
	required := make([]string, 0, len(orderFields))
	for _, f := range orderFields {
		typ := "string"
		if f.number {
			typ = "number"
		}
		props[f.name] = map[string]string{"type": typ, "description": f.description}
		required = append(required, f.name)
	}

	out, err := json.Marshal(map[string]interface{}{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
	if err != nil {
		panic(fmt.Sprintf("building order schema: %v", err))
	}
	return out
}
