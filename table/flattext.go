package table

import (
	"strconv"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/utils"
	"github.com/shopspring/decimal"
)

// flatState is the position of the flat-text parser relative to the line-item window.
type flatState int

const (
	// SeekingHeader discards lines until a header line ("Qty Description Rate Amount").
	SeekingHeader flatState = iota
	// InTable has an open entry whose figures have not been seen yet.
	InTable
	// SeekingSummary has a complete entry; the next line either continues its
	// figures, starts a new entry, or is the summary marker.
	SeekingSummary
	// Done is past the summary marker; only further summary values are read.
	Done
)

func (s flatState) String() string {
	switch s {
	case SeekingHeader:
		return "seeking_header"
	case InTable:
		return "in_table"
	case SeekingSummary:
		return "seeking_summary"
	default:
		return "done"
	}
}

// maxContinuationLines bounds how many figure-only lines may follow a description.
const maxContinuationLines = 3

type flatEntry struct {
	words         []string
	values        []numericValue
	continuations int
	line          int
	lines         []int
}

type flatParser struct {
	rc    *reconstructor
	state flatState
	entry *flatEntry
	out   reconstruction
	// transitions records every state change as "from->to@line" for diagnostics.
	transitions []string
}

// parseFlatText runs the line-item state machine over recognised text. When no
// header line is found the whole text is treated as the table.
func parseFlatText(text string, rc *reconstructor) reconstruction {
	lines := splitLines(text)

	p := &flatParser{rc: rc, state: SeekingHeader}
	p.run(lines)
	if p.state == SeekingHeader {
		p = &flatParser{rc: rc, state: InTable}
		p.out.notef("flat text: no header line found, treating every line as table body")
		p.run(lines)
	}
	p.out.notes = append(p.out.notes, p.transitions...)
	return p.out
}

func splitLines(text string) []string {
	var lines []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if l = utils.CleanText(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func (p *flatParser) transition(to flatState, line int) {
	if p.state != to {
		p.transitions = append(p.transitions, "flat text: "+p.state.String()+"->"+to.String()+"@"+strconv.Itoa(line))
	}
	p.state = to
}

func (p *flatParser) run(lines []string) {
	for i, line := range lines {
		words := strings.Fields(line)
		desc, values := splitTrailingFigures(words)

		switch p.state {
		case SeekingHeader:
			if p.rc.header.isHeader(words) {
				p.transition(InTable, i)
			}

		case InTable, SeekingSummary:
			if label, rate := utils.SummaryLabel(desc); p.rc.summary.exact(label) {
				p.flush()
				p.out.captureSummary(label, rate, lastValue(values))
				p.transition(Done, i)
				continue
			}
			if p.rc.header.isHeader(words) {
				// repeated header, e.g. after a page break inside the region
				continue
			}

			if len(desc) == 0 {
				p.continueEntry(values, i)
				continue
			}

			if p.state == SeekingSummary {
				p.flush()
			}
			if p.entry == nil {
				p.entry = &flatEntry{line: i}
			}
			// a description without figures may wrap onto the next line
			p.entry.words = append(p.entry.words, desc...)
			p.entry.lines = append(p.entry.lines, i)
			p.entry.values = append(p.entry.values, values...)
			if len(p.entry.values) > 0 {
				p.transition(SeekingSummary, i)
			} else {
				p.transition(InTable, i)
			}

		case Done:
			if label, rate := utils.SummaryLabel(desc); p.rc.summary.exact(label) {
				p.out.captureSummary(label, rate, lastValue(values))
			}
		}
	}
	p.flush()
}

// continueEntry attaches a figures-only line to the open entry.
func (p *flatParser) continueEntry(values []numericValue, line int) {
	if len(values) == 0 {
		return
	}
	if p.entry == nil || p.entry.continuations >= maxContinuationLines {
		p.flush()
		p.entry = &flatEntry{line: line}
	}
	p.entry.values = append(p.entry.values, values...)
	p.entry.lines = append(p.entry.lines, line)
	p.entry.continuations++
	p.transition(SeekingSummary, line)
}

func (p *flatParser) flush() {
	e := p.entry
	p.entry = nil
	if e == nil {
		return
	}

	desc := strings.Join(e.words, " ")
	if len(e.values) == 0 {
		if len([]rune(desc)) >= p.rc.cfg.MinDescriptionLength && len(p.out.items) > 0 {
			last := &p.out.items[len(p.out.items)-1]
			last.Description = joinText(last.Description, desc)
			p.out.consume(e.lines...)
		} else if desc != "" {
			p.out.notef("flat text line %d: discarded text without figures %q", e.line, desc)
		}
		return
	}

	item := buildItem(figureRoles(e.values), 0, e.line)
	item.Description = desc
	p.out.items = append(p.out.items, item)
	p.out.consume(e.lines...)
}

// figureRoles maps an entry's figures onto roles, right-aligned: the last three
// are quantity, unit price and total.
func figureRoles(values []numericValue) map[Role]numericValue {
	if len(values) > 3 {
		values = values[len(values)-3:]
	}
	roles := numericRoles(len(values))
	out := make(map[Role]numericValue, len(values))
	for i, v := range values {
		role := roles[i]
		if role == RoleQuantityOrUnitPrice {
			role = RoleQuantity
			if v.looksLikePrice() {
				role = RoleUnitPrice
			}
		}
		out[role] = v
	}
	return out
}

// splitTrailingFigures separates a line into leading words and the trailing run
// of figures. Stray currency symbols inside the run are skipped.
func splitTrailingFigures(words []string) ([]string, []numericValue) {
	end := len(words)
	var values []numericValue
	for end > 0 {
		w := words[end-1]
		if v := utils.NormalizeNumeric(w); v.Valid {
			values = append(values, numericValue{value: v.Decimal, raw: w})
			end--
			continue
		}
		if utils.IsSymbolOnly(w) {
			end--
			continue
		}
		break
	}
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	return words[:end], values
}

func lastValue(values []numericValue) decimal.NullDecimal {
	if len(values) == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(values[len(values)-1].value)
}
