package utils

import (
	"regexp"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/shopspring/decimal"
)

var (
	finalLabel = regexp.MustCompile(`(?i)\b(?:grand\s+total|invoice\s+total|total\s+due|balance\s+due|amount\s+due)\b`)

	totalScanPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)total[\s:]*(?:Â£|£|€|\$)?\s*([0-9,]+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(?i)grand\s+total[\s:]*(?:Â£|£|€|\$)?\s*([0-9,]+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(?i)balance\s+due[\s:]*(?:Â£|£|€|\$)?\s*([0-9,]+(?:\.\d{1,2})?)`),
		regexp.MustCompile(`(?i)amount\s+due[\s:]*(?:Â£|£|€|\$)?\s*([0-9,]+(?:\.\d{1,2})?)`),
	}
)

// ExtractHeaderFields reads the printed subtotal, VAT, VAT rate and total from
// recognised invoice text. A line counts only when the words before its
// trailing amount are exactly one of summaryPhrases, so body rows such as
// "Tax advisory 1 100.00 100.00" are never read as header fields.
func ExtractHeaderFields(text string, summaryPhrases []string) dto.HeaderFields {
	phrases := make(map[string]bool, len(summaryPhrases))
	for _, p := range summaryPhrases {
		if label, _ := SummaryLabel(strings.Fields(p)); label != "" {
			phrases[label] = true
		}
	}

	var fields dto.HeaderFields
	finalSeen := false

	for _, line := range strings.Split(text, "\n") {
		label, rate, amount := splitSummaryLine(strings.Fields(CleanText(line)))
		if !phrases[label] {
			continue
		}

		switch ClassifySummary(label) {
		case SummarySubtotal:
			if amount.Valid {
				fields.Subtotal = amount
			}
		case SummaryTax:
			if rate.Valid {
				fields.TaxRate = rate
			}
			if amount.Valid {
				fields.Tax = amount
			}
		default:
			if !amount.Valid {
				continue
			}
			// "Balance due" and friends beat a plain "Total" line.
			final := finalLabel.MatchString(label)
			if final || !finalSeen {
				fields.Total = amount
			}
			finalSeen = finalSeen || final
		}
	}

	return fields
}

// splitSummaryLine separates the trailing run of amounts from the label words
// and returns the label, any rate annotation and the right-most amount.
func splitSummaryLine(words []string) (string, decimal.NullDecimal, decimal.NullDecimal) {
	var amount decimal.NullDecimal
	end := len(words)
	for end > 0 {
		w := words[end-1]
		if v := NormalizeNumeric(strings.TrimRight(w, ":")); v.Valid {
			if !amount.Valid {
				amount = v
			}
			end--
			continue
		}
		if IsSymbolOnly(w) {
			end--
			continue
		}
		break
	}
	label, rate := SummaryLabel(words[:end])
	return label, rate, amount
}

// ScanTextForTotal looks for a "total"-labelled amount in the raw text that lies
// within 1.00 of expected and returns the closest one. It is used to correct
// totals whose digit grouping was misread.
func ScanTextForTotal(rawText string, expected decimal.Decimal) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	limit := decimal.NewFromInt(1)

	for _, re := range totalScanPatterns {
		for _, m := range re.FindAllStringSubmatch(rawText, -1) {
			v := NormalizeNumeric(m[1])
			if !v.Valid {
				continue
			}
			diff := v.Decimal.Sub(expected).Abs()
			if diff.GreaterThanOrEqual(limit) {
				continue
			}
			if !found || diff.LessThan(best.Sub(expected).Abs()) {
				best = v.Decimal
				found = true
			}
		}
	}

	return best, found
}
