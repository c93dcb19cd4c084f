package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// SummaryField is the header field a summary label stands for.
type SummaryField int

const (
	SummarySubtotal SummaryField = iota
	SummaryTax
	SummaryTotal
)

// NormalizeWord lower-cases w and trims the punctuation OCR leaves around labels.
func NormalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ":.,;()[]|*#"))
}

// SummaryLabel reduces the words of a summary line to its label, stripping
// rate annotations such as "@ 20%" or "(20%)". A rate found on the way is
// returned as a fraction.
func SummaryLabel(words []string) (string, decimal.NullDecimal) {
	var label []string
	var rate decimal.NullDecimal
	for _, w := range words {
		n := NormalizeWord(w)
		switch {
		case n == "" || n == "@" || IsSymbolOnly(n):
			continue
		case strings.HasSuffix(n, "%"):
			if v := NormalizeNumeric(strings.TrimSuffix(n, "%")); v.Valid {
				rate = decimal.NewNullDecimal(v.Decimal.Div(decimal.NewFromInt(100)))
			}
			continue
		}
		label = append(label, n)
	}
	return strings.Join(label, " "), rate
}

// ClassifySummary maps a summary label onto the field it declares.
func ClassifySummary(label string) SummaryField {
	switch {
	case strings.Contains(label, "sub") || strings.Contains(label, "net") ||
		strings.Contains(label, "goods") || strings.Contains(label, "excl"):
		return SummarySubtotal
	case strings.Contains(label, "vat") || strings.Contains(label, "tax"):
		return SummaryTax
	default:
		return SummaryTotal
	}
}
