package table

import (
	"fmt"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/utils"
	"github.com/shopspring/decimal"
)

const (
	FieldQuantity  = "quantity"
	FieldUnitPrice = "unit_price"
	FieldLineTotal = "line_total"
)

// LineItem is one reconstructed table row. Any of the three figures may be
// missing; at least one is always present.
type LineItem struct {
	Description      string
	Quantity         decimal.NullDecimal
	UnitPrice        decimal.NullDecimal
	LineTotal        decimal.NullDecimal
	SourceConfidence float64
	// Derived names the figures computed from the other two.
	Derived  []string
	RowIndex int
}

// DeriveMissing fills the one absent figure from the other two:
// total = quantity × unit price, unit price = total / quantity,
// quantity = total / unit price. A zero divisor leaves the figure absent.
func DeriveMissing(li LineItem) LineItem {
	li.Derived = append([]string(nil), li.Derived...)
	q, p, t := li.Quantity, li.UnitPrice, li.LineTotal

	switch {
	case q.Valid && p.Valid && !t.Valid:
		li.LineTotal = decimal.NewNullDecimal(q.Decimal.Mul(p.Decimal))
		li.Derived = append(li.Derived, FieldLineTotal)
	case q.Valid && t.Valid && !p.Valid:
		if !q.Decimal.IsZero() {
			li.UnitPrice = decimal.NewNullDecimal(t.Decimal.DivRound(q.Decimal, 4))
			li.Derived = append(li.Derived, FieldUnitPrice)
		}
	case p.Valid && t.Valid && !q.Valid:
		if !p.Decimal.IsZero() {
			li.Quantity = decimal.NewNullDecimal(t.Decimal.DivRound(p.Decimal, 4))
			li.Derived = append(li.Derived, FieldQuantity)
		}
	}
	return li
}

type numericValue struct {
	value decimal.Decimal
	raw   string
}

// fractionDigits counts digits after the decimal point in the raw text.
func (v numericValue) fractionDigits() int {
	if i := strings.LastIndex(v.raw, "."); i >= 0 {
		return len(strings.TrimRight(v.raw[i+1:], " "))
	}
	return 0
}

// looksLikePrice treats values printed with two or more decimals as money.
func (v numericValue) looksLikePrice() bool {
	return v.fractionDigits() >= 2
}

type reconstruction struct {
	items   []LineItem
	summary dto.HeaderFields
	notes   []string
	// consumed holds the row or line indices that went into items.
	consumed map[int]bool
}

func (r *reconstruction) consume(indices ...int) {
	if r.consumed == nil {
		r.consumed = make(map[int]bool)
	}
	for _, i := range indices {
		r.consumed[i] = true
	}
}

func (r *reconstruction) notef(format string, args ...any) {
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}

func (r *reconstruction) captureSummary(label string, rate decimal.NullDecimal, value decimal.NullDecimal) {
	if rate.Valid && !r.summary.TaxRate.Valid {
		r.summary.TaxRate = rate
	}
	if !value.Valid {
		return
	}
	switch utils.ClassifySummary(label) {
	case utils.SummarySubtotal:
		if !r.summary.Subtotal.Valid {
			r.summary.Subtotal = value
		}
	case utils.SummaryTax:
		if !r.summary.Tax.Valid {
			r.summary.Tax = value
		}
	default:
		if !r.summary.Total.Valid {
			r.summary.Total = value
		}
	}
}

type reconstructor struct {
	cfg     config.PipelineConfig
	header  phraseSet
	summary phraseSet
	cols    []ColumnSpec
	// ambiguous resolves the quantity-or-price column for the whole region.
	ambiguous Role
}

func newReconstructor(cols []ColumnSpec, cfg config.PipelineConfig) *reconstructor {
	return &reconstructor{
		cfg:       cfg,
		header:    newPhraseSet(cfg.HeaderPhrases),
		summary:   newPhraseSet(cfg.SummaryPhrases),
		cols:      cols,
		ambiguous: RoleQuantity,
	}
}

// rowContent is a row split into description words and per-role figures.
type rowContent struct {
	words  []string
	values map[Role]numericValue
	// rightmost is the right-most figure of the row, whatever its column.
	rightmost decimal.NullDecimal
}

func (rc *reconstructor) split(row Row) (rowContent, []string) {
	content := rowContent{values: make(map[Role]numericValue)}
	var notes []string
	numeric := make(map[Role][]WordToken)
	var order []Role

	for _, t := range row.Tokens {
		col, ok := columnForX(rc.cols, t.BBox.CenterX())
		if !ok {
			col.Role = RoleUnknown
		}
		switch {
		case col.Role.numeric() && utils.IsNumeric(t.Text):
			if _, seen := numeric[col.Role]; !seen {
				order = append(order, col.Role)
			}
			numeric[col.Role] = append(numeric[col.Role], t)
		case utils.IsSymbolOnly(t.Text):
			// stray currency signs and separators
		default:
			content.words = append(content.words, t.Text)
		}
	}

	for _, role := range order {
		v, extra := pickValue(numeric[role])
		if extra > 0 {
			notes = append(notes, fmt.Sprintf("row %d: %d extra figure(s) ignored in %s column", row.Index, extra, role))
		}
		if v == nil {
			continue
		}
		if role == RoleQuantityOrUnitPrice {
			role = rc.ambiguous
		}
		content.values[role] = *v
		content.rightmost = decimal.NewNullDecimal(v.value)
	}
	return content, notes
}

// pickValue joins horizontally adjacent numeric tokens (OCR often splits
// "1,504.32" after the comma) and returns the right-most group that parses.
func pickValue(tokens []WordToken) (*numericValue, int) {
	var groups []numericValue
	var raw strings.Builder
	for i, t := range tokens {
		if i > 0 && t.BBox.XMin-tokens[i-1].BBox.XMax > tokens[i-1].BBox.Height()/2 {
			groups = append(groups, numericValue{raw: raw.String()})
			raw.Reset()
		}
		raw.WriteString(t.Text)
	}
	groups = append(groups, numericValue{raw: raw.String()})

	var picked *numericValue
	for i := len(groups) - 1; i >= 0; i-- {
		if v := utils.NormalizeNumeric(groups[i].raw); v.Valid {
			groups[i].value = v.Decimal
			picked = &groups[i]
			break
		}
	}
	if picked == nil {
		// joining made it unparsable; fall back to the last single token
		for i := len(tokens) - 1; i >= 0; i-- {
			if v := utils.NormalizeNumeric(tokens[i].Text); v.Valid {
				return &numericValue{value: v.Decimal, raw: tokens[i].Text}, len(groups) - 1
			}
		}
		return nil, 0
	}
	return picked, len(groups) - 1
}

// resolveAmbiguous decides, once per region, whether a two-figure layout
// carries quantities or unit prices in its first numeric column.
func (rc *reconstructor) resolveAmbiguous(rows []Row) {
	var prices, quantities int
	for _, row := range rows {
		for _, t := range row.Tokens {
			col, ok := columnForX(rc.cols, t.BBox.CenterX())
			if !ok || col.Role != RoleQuantityOrUnitPrice || !utils.IsNumeric(t.Text) {
				continue
			}
			if (numericValue{raw: t.Text}).looksLikePrice() {
				prices++
			} else {
				quantities++
			}
		}
	}
	if prices > quantities {
		rc.ambiguous = RoleUnitPrice
	}
}

func (rc *reconstructor) run(rows []Row) reconstruction {
	var out reconstruction
	rc.resolveAmbiguous(rows)

	var pending []string
	var pendingRows []int
	inSummary := false

	for _, row := range rows {
		content, notes := rc.split(row)
		out.notes = append(out.notes, notes...)
		desc := strings.Join(content.words, " ")
		words := strings.Fields(desc)

		if len(content.values) == 0 {
			label, rate := utils.SummaryLabel(words)
			switch {
			case rc.header.isHeader(words):
				pending, pendingRows = nil, nil
				out.notef("row %d: header row skipped", row.Index)
			case rc.summary.exact(label):
				inSummary = true
				out.captureSummary(label, rate, decimal.NullDecimal{})
			case inSummary:
				out.notef("row %d: text after summary ignored", row.Index)
			case len([]rune(desc)) < rc.cfg.MinDescriptionLength:
				if desc != "" {
					out.notef("row %d: discarded short text row %q", row.Index, desc)
				}
			default:
				pending = append(pending, desc)
				pendingRows = append(pendingRows, row.Index)
			}
			continue
		}

		if label, rate := utils.SummaryLabel(words); rc.summary.exact(label) {
			value := content.rightmost
			if v, ok := content.values[RoleTotal]; ok {
				value = decimal.NewNullDecimal(v.value)
			}
			out.captureSummary(label, rate, value)
			inSummary = true
			continue
		}
		if inSummary {
			out.notef("row %d: figures after summary ignored", row.Index)
			continue
		}

		item := buildItem(content.values, meanConfidence(row.Tokens), row.Index)
		switch {
		case desc == "" && len(pending) > 0:
			desc = strings.Join(pending, " ")
		case len(pending) > 0 && len(out.items) > 0:
			last := &out.items[len(out.items)-1]
			last.Description = joinText(last.Description, strings.Join(pending, " "))
		case len(pending) > 0:
			desc = joinText(strings.Join(pending, " "), desc)
		}
		out.consume(row.Index)
		out.consume(pendingRows...)
		pending, pendingRows = nil, nil
		item.Description = desc
		out.items = append(out.items, item)
	}

	if len(pending) > 0 && len(out.items) > 0 {
		last := &out.items[len(out.items)-1]
		last.Description = joinText(last.Description, strings.Join(pending, " "))
		out.consume(pendingRows...)
	}

	return out
}

func buildItem(values map[Role]numericValue, confidence float64, rowIndex int) LineItem {
	item := LineItem{SourceConfidence: confidence, RowIndex: rowIndex}
	if v, ok := values[RoleQuantity]; ok {
		item.Quantity = decimal.NewNullDecimal(v.value)
	}
	if v, ok := values[RoleUnitPrice]; ok {
		item.UnitPrice = decimal.NewNullDecimal(v.value)
	}
	if v, ok := values[RoleTotal]; ok {
		item.LineTotal = decimal.NewNullDecimal(v.value)
	}
	return DeriveMissing(item)
}

func joinText(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
