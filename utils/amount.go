package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// currencyReplacer strips the currency symbols and thousands separators we accept,
// including the usual mis-decodings of the pound sign coming out of OCR engines.
var currencyReplacer = strings.NewReplacer(
	"Ã‚Â£", "",
	"Â£", "",
	"â‚¬", "",
	"£", "",
	"₤", "",
	"$", "",
	"€", "",
	",", "",
)

var amountPattern = regexp.MustCompile(`^-?(?:\d+(?:\.\d{1,4})?|\.\d{1,4})$`)

// NormalizeNumeric parses an OCR token as an amount or quantity. Anything that is
// not a plain number after symbol stripping yields an invalid NullDecimal.
func NormalizeNumeric(raw string) decimal.NullDecimal {
	s := norm.NFKC.String(raw)
	s = currencyReplacer.Replace(s)
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" || !amountPattern.MatchString(s) {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// IsNumeric reports whether NormalizeNumeric would accept raw.
func IsNumeric(raw string) bool {
	return NormalizeNumeric(raw).Valid
}

// IsSymbolOnly reports whether the token carries no letters or digits, e.g. a
// stray currency sign or separator.
func IsSymbolOnly(raw string) bool {
	for _, r := range norm.NFKC.String(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// CleanText applies NFKC normalisation and collapses runs of whitespace.
func CleanText(raw string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(raw)), " ")
}

// Round2 rounds to pence.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
