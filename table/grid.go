package table

import (
	"math"
	"sort"

	"github.com/Aashish23092/invoice-line-verification/utils"
	"github.com/tidwall/rtree"
)

// RuleSegment is a ruled line found on the page image, in pixels.
type RuleSegment struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// CellReader recognises the text inside one grid cell. It is supplied by the
// caller, which owns the page image and the recognition engine.
type CellReader interface {
	RecognizeCell(cell BBox) (text string, confidence float64)
}

// gridDetector finds table cells from ruled lines.
type gridDetector struct {
	// Tolerance for considering lines aligned (in pixels)
	AlignmentTolerance float64

	// Maximum deviation from the axis for a segment to count as horizontal or vertical
	SlopeTolerance float64

	// Minimum segment length to consider (in pixels)
	MinLineLength float64
}

func newGridDetector() gridDetector {
	return gridDetector{
		AlignmentTolerance: 3.0,
		SlopeTolerance:     2.0,
		MinLineLength:      10.0,
	}
}

// alignedLine is a group of segments sharing one position on the cross axis.
type alignedLine struct {
	Position  float64
	MinExtent float64
	MaxExtent float64
	count     int
}

type gridCell struct {
	row  int
	col  int
	bbox BBox
}

type grid struct {
	horizontals []alignedLine
	verticals   []alignedLine
	cells       []gridCell
}

type segment struct {
	pos, from, to float64
}

// detect classifies segments by axis, merges aligned ones and builds the cells
// whose four corners are all line intersections.
func (gd gridDetector) detect(rules []RuleSegment) grid {
	var hs, vs []segment
	for _, r := range rules {
		if !finite(r.X1, r.Y1, r.X2, r.Y2) {
			continue
		}
		dx, dy := math.Abs(r.X2-r.X1), math.Abs(r.Y2-r.Y1)
		switch {
		case dy <= gd.SlopeTolerance && dx >= gd.MinLineLength:
			hs = append(hs, segment{pos: (r.Y1 + r.Y2) / 2, from: math.Min(r.X1, r.X2), to: math.Max(r.X1, r.X2)})
		case dx <= gd.SlopeTolerance && dy >= gd.MinLineLength:
			vs = append(vs, segment{pos: (r.X1 + r.X2) / 2, from: math.Min(r.Y1, r.Y2), to: math.Max(r.Y1, r.Y2)})
		}
	}

	g := grid{
		horizontals: gd.groupAlignedLines(hs),
		verticals:   gd.groupAlignedLines(vs),
	}
	if len(g.horizontals) < 2 || len(g.verticals) < 2 {
		return g
	}

	corners := gd.findIntersections(g.horizontals, g.verticals)
	for i := 0; i+1 < len(g.horizontals); i++ {
		left := -1
		for k := range g.verticals {
			if !corners[i][k] || !corners[i+1][k] {
				continue
			}
			if left >= 0 {
				g.cells = append(g.cells, gridCell{
					row: i,
					col: left,
					bbox: BBox{
						XMin: int(math.Round(g.verticals[left].Position)),
						YMin: int(math.Round(g.horizontals[i].Position)),
						XMax: int(math.Round(g.verticals[k].Position)),
						YMax: int(math.Round(g.horizontals[i+1].Position)),
					},
				})
			}
			left = k
		}
	}
	return g
}

// groupAlignedLines groups segments whose positions lie within the alignment
// tolerance of the running group average.
func (gd gridDetector) groupAlignedLines(segments []segment) []alignedLine {
	if len(segments) == 0 {
		return nil
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].pos < segments[j].pos })

	var groups []alignedLine
	current := alignedLine{Position: segments[0].pos, MinExtent: segments[0].from, MaxExtent: segments[0].to, count: 1}
	for _, s := range segments[1:] {
		if s.pos-current.Position <= gd.AlignmentTolerance {
			current.count++
			current.Position = (current.Position*float64(current.count-1) + s.pos) / float64(current.count)
			current.MinExtent = math.Min(current.MinExtent, s.from)
			current.MaxExtent = math.Max(current.MaxExtent, s.to)
			continue
		}
		groups = append(groups, current)
		current = alignedLine{Position: s.pos, MinExtent: s.from, MaxExtent: s.to, count: 1}
	}
	return append(groups, current)
}

// findIntersections indexes the vertical lines in an R-tree and queries it with
// every horizontal line. corners[h][v] is true when they cross.
func (gd gridDetector) findIntersections(hs, vs []alignedLine) [][]bool {
	var tr rtree.RTreeG[int]
	for i, v := range vs {
		tr.Insert([2]float64{v.Position, v.MinExtent}, [2]float64{v.Position, v.MaxExtent}, i)
	}

	eps := gd.AlignmentTolerance
	corners := make([][]bool, len(hs))
	for i, h := range hs {
		corners[i] = make([]bool, len(vs))
		tr.Search(
			[2]float64{h.MinExtent - eps, h.Position - eps},
			[2]float64{h.MaxExtent + eps, h.Position + eps},
			func(_, _ [2]float64, v int) bool {
				corners[i][v] = true
				return true
			},
		)
	}
	return corners
}

// gridRows reads every cell through the reader and returns one Row per grid
// row, with the mean cell confidence.
func gridRows(g grid, reader CellReader) ([]Row, float64) {
	byRow := make(map[int][]WordToken)
	var confSum float64
	var confN int

	for _, c := range g.cells {
		text, conf := reader.RecognizeCell(c.bbox)
		text = utils.CleanText(text)
		if text == "" || !c.bbox.Valid() || math.IsNaN(conf) || math.IsInf(conf, 0) {
			continue
		}
		conf = clamp01(conf)
		byRow[c.row] = append(byRow[c.row], WordToken{Text: text, BBox: c.bbox, Confidence: conf})
		confSum += conf
		confN++
	}

	var rows []Row
	for i := 0; i+1 < len(g.horizontals); i++ {
		if tokens, ok := byRow[i]; ok {
			rows = append(rows, newRow(i, tokens))
		}
	}
	if confN == 0 {
		return rows, 0
	}
	return rows, confSum / float64(confN)
}

// gridColumns turns the vertical rules into column specs. The first column is
// the description; the others are numeric when at least half of their cells
// parse as figures (a column header is usually the only text cell), and
// Unknown otherwise.
func gridColumns(g grid, rows []Row) []ColumnSpec {
	n := len(g.verticals) - 1
	numericCells := make([]int, n)
	textCells := make([]int, n)
	colOf := func(x float64) int {
		for c := 0; c < n; c++ {
			if x >= g.verticals[c].Position && x < g.verticals[c+1].Position {
				return c
			}
		}
		return n - 1
	}
	for _, r := range rows {
		for _, t := range r.Tokens {
			c := colOf(t.BBox.CenterX())
			if utils.IsNumeric(t.Text) {
				numericCells[c]++
			} else {
				textCells[c]++
			}
		}
	}

	var numericCols []int
	for c := 1; c < n; c++ {
		if numericCells[c] > 0 && numericCells[c] >= textCells[c] {
			numericCols = append(numericCols, c)
		}
	}
	roles := make([]Role, n)
	for c := range roles {
		roles[c] = RoleUnknown
	}
	roles[0] = RoleDescription
	for i, r := range numericRoles(len(numericCols)) {
		roles[numericCols[i]] = r
	}

	cols := make([]ColumnSpec, n)
	for c := 0; c < n; c++ {
		low, high := g.verticals[c].Position, g.verticals[c+1].Position
		if c == 0 {
			low = 0
		}
		if c == n-1 {
			high = math.Inf(1)
		}
		cols[c] = ColumnSpec{Role: roles[c], Range: XRange{Low: low, High: high}}
	}
	return cols
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
