package sheet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatAmount renders a money value as a fixed two-decimal string with
// thousands separators. Blank, "-" and unparsable input become "0.00".
func FormatAmount(raw string) string {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" || s == "-" {
		return "0.00"
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return "0.00"
	}
	return groupThousands(d.StringFixed(2))
}

// ParseAmount reads a formatted amount back into a decimal, zero when unparsable
func ParseAmount(raw string) decimal.Decimal {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func groupThousands(fixed string) string {
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}

	whole, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	if frac == "" {
		return sign + b.String()
	}
	return sign + b.String() + "." + frac
}

// ImageCell builds the hyperlink formula stored in column A. An empty url
// leaves the cell blank.
func ImageCell(url string, runNumber int) string {
	if url == "" {
		return ""
	}

	label := "Check Order"
	if runNumber > 0 {
		label = fmt.Sprintf("Check Order %d", runNumber)
	}
	return fmt.Sprintf(`=HYPERLINK("%s", "%s")`, escapeFormula(url), label)
}

func escapeFormula(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}
