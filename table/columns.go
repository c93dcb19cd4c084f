package table

import (
	"math"
	"sort"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/utils"
)

type Role int

const (
	RoleDescription Role = iota
	RoleQuantity
	RoleUnitPrice
	RoleQuantityOrUnitPrice
	RoleTotal
	RoleUnknown
)

func (r Role) String() string {
	switch r {
	case RoleDescription:
		return "description"
	case RoleQuantity:
		return "quantity"
	case RoleUnitPrice:
		return "unit_price"
	case RoleQuantityOrUnitPrice:
		return "quantity_or_unit_price"
	case RoleTotal:
		return "total"
	default:
		return "unknown"
	}
}

func (r Role) numeric() bool {
	return r != RoleDescription && r != RoleUnknown
}

// XRange is the half-open interval [Low, High). High may be +Inf.
type XRange struct {
	Low  float64
	High float64
}

func (r XRange) Contains(x float64) bool {
	return x >= r.Low && x < r.High
}

type ColumnSpec struct {
	Role  Role
	Range XRange
}

// maxNumericColumns bounds the numeric bands so that, with the description
// band, a region never has more than five columns.
const maxNumericColumns = 4

// numericRoles maps the count of numeric bands, left to right, onto roles.
// Quantity precedes unit price precedes total by invoice convention.
func numericRoles(n int) []Role {
	switch n {
	case 0:
		return nil
	case 1:
		return []Role{RoleTotal}
	case 2:
		return []Role{RoleQuantityOrUnitPrice, RoleTotal}
	case 3:
		return []Role{RoleQuantity, RoleUnitPrice, RoleTotal}
	}
	roles := make([]Role, 0, n)
	for i := 0; i < n-3; i++ {
		roles = append(roles, RoleUnknown)
	}
	return append(roles, RoleQuantity, RoleUnitPrice, RoleTotal)
}

// columnForX returns the spec whose range contains x.
func columnForX(cols []ColumnSpec, x float64) (ColumnSpec, bool) {
	for _, c := range cols {
		if c.Range.Contains(x) {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

type numericBand struct {
	centers []float64
	minXMin int
}

func (b numericBand) low() float64  { return b.centers[0] }
func (b numericBand) high() float64 { return b.centers[len(b.centers)-1] }

// gapThreshold is the horizontal gap that separates two columns. It scales
// with the page width so the same configuration works across scan resolutions.
func gapThreshold(tokens []WordToken, pageWidth int, cfg config.PipelineConfig) float64 {
	width := pageWidth
	if width <= 0 {
		for _, t := range tokens {
			if t.BBox.XMax > width {
				width = t.BBox.XMax
			}
		}
	}
	return math.Max(cfg.ColumnGapMinPx, float64(width)*cfg.ColumnGapThresholdRatio)
}

// ClusterColumns derives column bands from the x-centers of all numeric tokens
// in a region. It returns false when the region holds fewer numeric tokens than
// cfg.MinNumericTokensForClustering.
func ClusterColumns(tokens []WordToken, pageWidth int, cfg config.PipelineConfig) ([]ColumnSpec, bool) {
	type point struct {
		center float64
		xMin   int
	}
	var points []point
	for _, t := range tokens {
		if utils.IsNumeric(t.Text) {
			points = append(points, point{center: t.BBox.CenterX(), xMin: t.BBox.XMin})
		}
	}
	if len(points) < cfg.MinNumericTokensForClustering || len(points) == 0 {
		return nil, false
	}

	sort.Slice(points, func(i, j int) bool { return points[i].center < points[j].center })
	threshold := gapThreshold(tokens, pageWidth, cfg)

	var bands []numericBand
	current := numericBand{centers: []float64{points[0].center}, minXMin: points[0].xMin}
	for _, p := range points[1:] {
		if p.center-current.high() > threshold {
			bands = append(bands, current)
			current = numericBand{minXMin: p.xMin}
		}
		current.centers = append(current.centers, p.center)
		if p.xMin < current.minXMin {
			current.minXMin = p.xMin
		}
	}
	bands = append(bands, current)

	bands = dropLeadingSingletons(bands)
	for len(bands) > maxNumericColumns {
		bands = mergeClosestBands(bands)
	}

	return buildColumns(bands, threshold), true
}

// dropLeadingSingletons discards one-token bands left of the first band with
// several members. Those are numbers inside description text ("Pack 12").
func dropLeadingSingletons(bands []numericBand) []numericBand {
	for i, b := range bands {
		if len(b.centers) > 1 {
			return bands[i:]
		}
	}
	return bands
}

func mergeClosestBands(bands []numericBand) []numericBand {
	best := 0
	bestGap := math.Inf(1)
	for i := 0; i+1 < len(bands); i++ {
		if gap := bands[i+1].low() - bands[i].high(); gap < bestGap {
			best, bestGap = i, gap
		}
	}

	merged := numericBand{
		centers: append(append([]float64{}, bands[best].centers...), bands[best+1].centers...),
		minXMin: min(bands[best].minXMin, bands[best+1].minXMin),
	}
	out := append([]numericBand{}, bands[:best]...)
	out = append(out, merged)
	return append(out, bands[best+2:]...)
}

func buildColumns(bands []numericBand, threshold float64) []ColumnSpec {
	first := bands[0]
	descEnd := float64(first.minXMin) - threshold/4
	if descEnd < first.low()/2 {
		descEnd = first.low() / 2
	}

	roles := numericRoles(len(bands))
	cols := []ColumnSpec{{Role: RoleDescription, Range: XRange{Low: 0, High: descEnd}}}

	low := descEnd
	for i, b := range bands {
		high := math.Inf(1)
		if i+1 < len(bands) {
			high = (b.high() + bands[i+1].low()) / 2
		}
		cols = append(cols, ColumnSpec{Role: roles[i], Range: XRange{Low: low, High: high}})
		low = high
	}
	return cols
}
