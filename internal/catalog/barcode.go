package catalog

import "strings"

// NormalizeBarcode strips every non-digit character. An empty result means
// the product has no barcode.
func NormalizeBarcode(raw string) *string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return nil
	}
	return &digits
}

// IsValidBarcode normalizes raw and accepts an absent barcode or an EAN-8,
// UPC-A or EAN-13 code with a correct check digit.
func IsValidBarcode(raw string) bool {
	code := NormalizeBarcode(raw)
	if code == nil {
		return true
	}
	s := *code
	switch len(s) {
	case 8, 12, 13:
	default:
		return false
	}
	sum := 0
	weight := 3
	for i := len(s) - 2; i >= 0; i-- {
		sum += int(s[i]-'0') * weight
		weight = 4 - weight
	}
	check := (10 - sum%10) % 10
	return int(s[len(s)-1]-'0') == check
}
