package table

import (
	"fmt"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
)

// Method names the strategy that produced a region's line items.
type Method string

const (
	MethodSpatial  Method = "spatial_clustering"
	MethodFlatText Method = "flat_text_heuristic"
	MethodGrid     Method = "grid_structure"
	MethodNone     Method = "none"
)

const (
	ReasonInsufficientEvidence = "insufficient_evidence"
	ReasonNoLineItems          = "no_line_items"
	ReasonUnavailable          = "unavailable"
	ReasonDisabled             = "disabled"
	ReasonNoGrid               = "no_grid"
	ReasonNotApplicable        = "not_applicable"
)

const (
	// flat text carries no geometry, so its confidence is discounted
	flatTextConfidenceFactor = 0.85
	// used when the engine reports no confidence for flat text
	defaultFlatTextConfidence = 0.6
	gridConfidenceFactor      = 0.7
)

// RegionInput is everything known about one table region.
type RegionInput struct {
	Tokens    []RawToken
	PageWidth int
	// Rules and Cells feed the grid tier and are optional.
	Rules []RuleSegment
	Cells CellReader
}

// Attempt records one tier that was considered, and why it did not produce
// the result when Reason is non-empty.
type Attempt struct {
	Method Method
	Reason string
}

type ExtractionResult struct {
	Method    Method
	LineItems []LineItem
	Columns   []ColumnSpec
	// Summary holds subtotal/VAT/total rows met inside the region.
	Summary dto.HeaderFields
	// Confidence is the region's recognition confidence after the tier discount.
	Confidence float64
	Attempts   []Attempt
	Notes      []string
	// RawText is the region as plain text, used to re-read misrecognised totals.
	RawText string
	// SummaryText is RawText without the rows that became line items. Header
	// fields missing from the request are read from it.
	SummaryText string
}

type tierResult struct {
	rec        reconstruction
	columns    []ColumnSpec
	confidence float64
	reason     string
	// leftover is the tier's input text minus the rows it turned into items.
	leftover string
}

// Extract runs the fallback chain over one region: spatial clustering when
// positional tokens exist, then the flat-text parser, then the grid tier. It
// never panics; a region nothing can read yields MethodNone and no items.
func Extract(in RegionInput, cfg config.PipelineConfig) ExtractionResult {
	ing := ingest(in.Tokens)
	res := ExtractionResult{Method: MethodNone, Notes: ing.notes}

	flatText := strings.Join(ing.flat, "\n")
	flatConfidence := defaultFlatTextConfidence
	if len(ing.flatConf) > 0 {
		flatConfidence = mean(ing.flatConf)
	}

	var rows []Row
	if len(ing.tokens) > 0 {
		rows = GroupRows(ing.tokens, cfg.RowYTolerancePx)
		synthesized := rowsText(rows)
		res.RawText = joinLines(flatText, synthesized)
		if flatText == "" {
			flatText = synthesized
			flatConfidence = meanConfidence(ing.tokens)
		}
	} else {
		res.RawText = flatText
	}
	res.SummaryText = res.RawText

	// Tier 1
	switch {
	case len(ing.tokens) == 0:
		res.Attempts = append(res.Attempts, Attempt{Method: MethodSpatial, Reason: ReasonUnavailable})
	case !cfg.TierEnabled(string(MethodSpatial)):
		res.Attempts = append(res.Attempts, Attempt{Method: MethodSpatial, Reason: ReasonDisabled})
	default:
		tr := runTier(func() tierResult { return spatialTier(ing.tokens, rows, in.PageWidth, cfg) })
		if res.accept(MethodSpatial, tr, 1) {
			res.SummaryText = joinLines(strings.Join(ing.flat, "\n"), res.SummaryText)
			return res
		}
	}

	// Tier 2
	switch {
	case strings.TrimSpace(flatText) == "":
		res.Attempts = append(res.Attempts, Attempt{Method: MethodFlatText, Reason: ReasonUnavailable})
	case !cfg.TierEnabled(string(MethodFlatText)):
		res.Attempts = append(res.Attempts, Attempt{Method: MethodFlatText, Reason: ReasonDisabled})
	default:
		tr := runTier(func() tierResult { return flatTextTier(flatText, flatConfidence, cfg) })
		if res.accept(MethodFlatText, tr, flatTextConfidenceFactor) {
			return res
		}
	}

	// Tier 3 is the last resort for regions without positional tokens whose
	// flat text, if any, yielded nothing.
	switch {
	case len(ing.tokens) > 0:
		res.Attempts = append(res.Attempts, Attempt{Method: MethodGrid, Reason: ReasonNotApplicable})
	case len(in.Rules) == 0 || in.Cells == nil:
		res.Attempts = append(res.Attempts, Attempt{Method: MethodGrid, Reason: ReasonUnavailable})
	case !cfg.TierEnabled(string(MethodGrid)):
		res.Attempts = append(res.Attempts, Attempt{Method: MethodGrid, Reason: ReasonDisabled})
	default:
		tr := runTier(func() tierResult { return gridTier(in.Rules, in.Cells, cfg) })
		if res.accept(MethodGrid, tr, gridConfidenceFactor) {
			return res
		}
	}

	res.Notes = append(res.Notes, "no reconstruction strategy produced line items")
	return res
}

// accept records the attempt and adopts its items when it succeeded.
func (res *ExtractionResult) accept(method Method, tr tierResult, factor float64) bool {
	res.Attempts = append(res.Attempts, Attempt{Method: method, Reason: tr.reason})
	res.Notes = append(res.Notes, tr.rec.notes...)
	res.Summary = res.Summary.FillFrom(tr.rec.summary)
	if tr.reason != "" {
		return false
	}

	res.Method = method
	res.LineItems = tr.rec.items
	res.Columns = tr.columns
	res.Confidence = clamp01(tr.confidence * factor)
	res.SummaryText = tr.leftover
	return true
}

// runTier converts a panic inside a tier into a failed attempt.
func runTier(fn func() tierResult) (tr tierResult) {
	defer func() {
		if r := recover(); r != nil {
			tr = tierResult{reason: fmt.Sprintf("recovered: %v", r)}
		}
	}()
	return fn()
}

func spatialTier(tokens []WordToken, rows []Row, pageWidth int, cfg config.PipelineConfig) tierResult {
	cols, ok := ClusterColumns(tokens, pageWidth, cfg)
	if !ok {
		return tierResult{reason: ReasonInsufficientEvidence}
	}

	rec := newReconstructor(cols, cfg).run(rows)
	if len(rec.items) == 0 {
		return tierResult{rec: rec, columns: cols, reason: ReasonNoLineItems}
	}
	return tierResult{
		rec:        rec,
		columns:    cols,
		confidence: itemConfidence(rec.items),
		leftover:   rowsText(leftoverRows(rows, rec.consumed)),
	}
}

func flatTextTier(text string, confidence float64, cfg config.PipelineConfig) tierResult {
	rec := parseFlatText(text, newReconstructor(nil, cfg))
	if len(rec.items) == 0 {
		return tierResult{rec: rec, reason: ReasonNoLineItems}
	}
	for i := range rec.items {
		rec.items[i].SourceConfidence = confidence
	}

	var leftover []string
	for i, line := range splitLines(text) {
		if !rec.consumed[i] {
			leftover = append(leftover, line)
		}
	}
	return tierResult{rec: rec, confidence: confidence, leftover: strings.Join(leftover, "\n")}
}

func gridTier(rules []RuleSegment, reader CellReader, cfg config.PipelineConfig) tierResult {
	g := newGridDetector().detect(rules)
	if len(g.cells) == 0 {
		return tierResult{reason: ReasonNoGrid}
	}

	rows, confidence := gridRows(g, reader)
	cols := gridColumns(g, rows)
	rec := newReconstructor(cols, cfg).run(rows)
	if len(rec.items) == 0 {
		return tierResult{rec: rec, columns: cols, reason: ReasonNoLineItems}
	}
	return tierResult{rec: rec, columns: cols, confidence: confidence, leftover: rowsText(leftoverRows(rows, rec.consumed))}
}

func itemConfidence(items []LineItem) float64 {
	vals := make([]float64, len(items))
	for i, it := range items {
		vals[i] = it.SourceConfidence
	}
	return mean(vals)
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// leftoverRows returns the rows that did not become line items.
func leftoverRows(rows []Row, consumed map[int]bool) []Row {
	var out []Row
	for _, r := range rows {
		if !consumed[r.Index] {
			out = append(out, r)
		}
	}
	return out
}

func rowsText(rows []Row) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		words := make([]string, len(r.Tokens))
		for i, t := range r.Tokens {
			words[i] = t.Text
		}
		lines = append(lines, strings.Join(words, " "))
	}
	return strings.Join(lines, "\n")
}

func joinLines(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}
