package analytics

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a Shopify decimal string. ok is false for empty or
// non-numeric input; callers pick their own fallback.
func ParseAmount(s string) (d decimal.Decimal, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
