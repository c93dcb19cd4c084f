package validation

import (
	"fmt"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/Aashish23092/invoice-line-verification/utils"
	"github.com/shopspring/decimal"
)

const (
	FieldSubtotal = "subtotal"
	FieldTax      = "tax"
	FieldTotal    = "total"
)

const (
	SourceComputed = "computed_from_items"
	SourceRawText  = "raw_text_scan"
)

// CriticalPrefix tags issues that always require escalation.
const CriticalPrefix = "CRITICAL"

var (
	// a subtotal correction needs most items to carry a total
	subtotalCoverageFloor = decimal.RequireFromString("0.8")
	magnitudeLowTotal     = decimal.NewFromInt(10)
	magnitudeHighExpected = decimal.NewFromInt(1000)
	magnitudeRatio        = decimal.NewFromInt(100)
	rateInferenceSlack    = decimal.RequireFromString("0.01")
	commonTaxRates        = []decimal.Decimal{
		decimal.Zero,
		decimal.RequireFromString("0.05"),
		decimal.RequireFromString("0.175"),
		decimal.RequireFromString("0.20"),
	}
)

// Correction is the audit record of one proposed change to a header field.
type Correction struct {
	Field   string
	Old     decimal.NullDecimal
	New     decimal.Decimal
	Source  string
	Applied bool
}

// Details carries the counters the score and escalation rules are built on.
type Details struct {
	ItemsWithTotals    int
	ItemsMissingTotals int
	ChecksRun          int
	ChecksPassed       int
	CriticalIssues     int
	// Confidence is the recognition confidence the score started from.
	Confidence float64
}

// check is one pass of the numeric state machine over a document.
type check struct {
	items         []table.LineItem
	itemsSubtotal decimal.Decimal
	issues        []string
	corrections   map[string]decimal.Decimal
	audit         []Correction
	details       Details
	mismatches    int
	// inferredTaxRate is informational and never scored or applied.
	inferredTaxRate decimal.NullDecimal
}

func (c *check) issuef(format string, args ...any) {
	c.issues = append(c.issues, fmt.Sprintf(format, args...))
}

func (c *check) propose(field string, old decimal.NullDecimal, value decimal.Decimal, source string) {
	c.corrections[field] = value
	c.audit = append(c.audit, Correction{Field: field, Old: old, New: value, Source: source})
}

// tolerance is the larger of the absolute and the relative tolerance.
func tolerance(declared decimal.Decimal, cfg config.PipelineConfig) decimal.Decimal {
	abs := decimal.NewFromFloat(cfg.AmountToleranceAbs)
	rel := decimal.NewFromFloat(cfg.AmountToleranceRel).Mul(declared.Abs())
	return decimal.Max(abs, rel)
}

func within(a, b decimal.Decimal, cfg config.PipelineConfig) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance(b, cfg))
}

// runChecks recomputes subtotal, tax and total from the items and compares
// them with the declared header fields. Every failed comparison adds an issue.
func runChecks(items []table.LineItem, header dto.HeaderFields, rawText string, cfg config.PipelineConfig) *check {
	c := &check{corrections: make(map[string]decimal.Decimal)}

	// 1-2: recompute missing totals, then sum
	c.items = make([]table.LineItem, len(items))
	sum := decimal.Zero
	for i, it := range items {
		it = table.DeriveMissing(it)
		c.items[i] = it
		if it.LineTotal.Valid {
			sum = sum.Add(it.LineTotal.Decimal)
			c.details.ItemsWithTotals++
		} else {
			c.details.ItemsMissingTotals++
		}
	}
	c.itemsSubtotal = utils.Round2(sum)
	hasItems := c.details.ItemsWithTotals > 0

	// 3: subtotal
	if header.Subtotal.Valid {
		declared := header.Subtotal.Decimal
		switch {
		case !hasItems:
			c.issuef("No line item totals recovered to support declared subtotal £%s", declared.StringFixed(2))
		case within(c.itemsSubtotal, declared, cfg):
			c.pass()
		default:
			c.fail()
			diff := c.itemsSubtotal.Sub(declared)
			c.issuef("Subtotal mismatch: line items sum to £%s but document shows £%s (difference £%s)",
				c.itemsSubtotal.StringFixed(2), declared.StringFixed(2), diff.StringFixed(2))
			if coverage(c.details).GreaterThanOrEqual(subtotalCoverageFloor) {
				c.propose(FieldSubtotal, header.Subtotal, c.itemsSubtotal, SourceComputed)
			}
		}
	}

	// 4: tax
	var expectedTax decimal.NullDecimal
	if header.TaxRate.Valid && hasItems {
		expectedTax = decimal.NewNullDecimal(utils.Round2(c.itemsSubtotal.Mul(header.TaxRate.Decimal)))
		if header.Tax.Valid {
			declared := header.Tax.Decimal
			if within(expectedTax.Decimal, declared, cfg) {
				c.pass()
			} else {
				c.fail()
				c.issuef("VAT mismatch: %s%% of £%s is £%s but document shows £%s",
					header.TaxRate.Decimal.Mul(decimal.NewFromInt(100)).String(), c.itemsSubtotal.StringFixed(2),
					expectedTax.Decimal.StringFixed(2), declared.StringFixed(2))
				c.propose(FieldTax, header.Tax, expectedTax.Decimal, SourceComputed)
			}
		}
	}
	if !header.TaxRate.Valid && header.Tax.Valid && header.Subtotal.Valid && header.Subtotal.Decimal.IsPositive() {
		if rate, ok := inferTaxRate(header.Tax.Decimal, header.Subtotal.Decimal); ok {
			c.inferredTaxRate = decimal.NewNullDecimal(rate)
		}
	}

	// 5-6: total and magnitude errors
	if header.Total.Valid {
		base, ok := c.itemsSubtotal, hasItems
		if !ok && header.Subtotal.Valid {
			base, ok = header.Subtotal.Decimal, true
		}
		if ok {
			taxPart := decimal.Zero
			switch {
			case expectedTax.Valid:
				taxPart = expectedTax.Decimal
			case header.Tax.Valid:
				taxPart = header.Tax.Decimal
			}
			c.checkTotal(header.Total, base.Add(taxPart), rawText, cfg)
		}
	}

	return c
}

func (c *check) checkTotal(declaredTotal decimal.NullDecimal, expected decimal.Decimal, rawText string, cfg config.PipelineConfig) {
	declared := declaredTotal.Decimal
	expected = utils.Round2(expected)

	switch {
	case declared.LessThan(magnitudeLowTotal) && expected.GreaterThan(magnitudeHighExpected):
		c.fail()
		c.details.CriticalIssues++
		c.issuef("%s: Total £%s is implausibly low against expected £%s (likely misread digit grouping or decimal point)",
			CriticalPrefix, declared.StringFixed(2), expected.StringFixed(2))
		if scanned, ok := utils.ScanTextForTotal(rawText, expected); ok {
			c.propose(FieldTotal, declaredTotal, scanned, SourceRawText)
		} else {
			c.propose(FieldTotal, declaredTotal, expected, SourceComputed)
		}
	case expected.IsPositive() && declared.GreaterThan(expected.Mul(magnitudeRatio)):
		c.fail()
		c.details.CriticalIssues++
		c.issuef("%s: Total £%s is implausibly high against expected £%s (likely misread decimal point)",
			CriticalPrefix, declared.StringFixed(2), expected.StringFixed(2))
		c.propose(FieldTotal, declaredTotal, expected, SourceComputed)
	case within(expected, declared, cfg):
		c.pass()
	default:
		c.fail()
		c.issuef("Total mismatch: expected £%s from items and VAT but document shows £%s (difference £%s)",
			expected.StringFixed(2), declared.StringFixed(2), expected.Sub(declared).StringFixed(2))
		c.propose(FieldTotal, declaredTotal, expected, SourceComputed)
	}
}

func (c *check) pass() {
	c.details.ChecksRun++
	c.details.ChecksPassed++
}

func (c *check) fail() {
	c.details.ChecksRun++
	c.mismatches++
}

func coverage(d Details) decimal.Decimal {
	n := d.ItemsWithTotals + d.ItemsMissingTotals
	if n == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(d.ItemsWithTotals)).Div(decimal.NewFromInt(int64(n)))
}

// inferTaxRate matches declared tax / declared subtotal against the common VAT rates.
func inferTaxRate(tax, subtotal decimal.Decimal) (decimal.Decimal, bool) {
	ratio := tax.Div(subtotal)
	for _, r := range commonTaxRates {
		if ratio.Sub(r).Abs().LessThanOrEqual(rateInferenceSlack) {
			return r, true
		}
	}
	return decimal.Decimal{}, false
}

// corrected returns header with every proposed correction applied.
func corrected(header dto.HeaderFields, corrections map[string]decimal.Decimal) dto.HeaderFields {
	for field, v := range corrections {
		nv := decimal.NewNullDecimal(v)
		switch field {
		case FieldSubtotal:
			header.Subtotal = nv
		case FieldTax:
			header.Tax = nv
		case FieldTotal:
			header.Total = nv
		}
	}
	return header
}
