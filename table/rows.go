package table

import "sort"

// Row is a horizontal band of tokens, sorted left to right.
type Row struct {
	Index  int
	Tokens []WordToken
}

func (r Row) CenterY() float64 {
	if len(r.Tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range r.Tokens {
		sum += t.BBox.CenterY()
	}
	return sum / float64(len(r.Tokens))
}

// GroupRows clusters tokens by y-center. A row is anchored on its top-most
// token and accepts tokens whose y-center lies within tolerance of the anchor,
// so no two tokens of a row differ by more than tolerance. Tokens that overlap
// vertically but fall outside the tolerance start a new row.
func GroupRows(tokens []WordToken, tolerance float64) []Row {
	if len(tokens) == 0 {
		return nil
	}

	sorted := make([]WordToken, len(tokens))
	copy(sorted, tokens)
	sort.SliceStable(sorted, func(i, j int) bool {
		yi, yj := sorted[i].BBox.CenterY(), sorted[j].BBox.CenterY()
		if yi != yj {
			return yi < yj
		}
		return sorted[i].BBox.CenterX() < sorted[j].BBox.CenterX()
	})

	var rows []Row
	anchor := sorted[0].BBox.CenterY()
	current := []WordToken{sorted[0]}
	for _, t := range sorted[1:] {
		if t.BBox.CenterY()-anchor > tolerance {
			rows = append(rows, newRow(len(rows), current))
			anchor = t.BBox.CenterY()
			current = nil
		}
		current = append(current, t)
	}
	rows = append(rows, newRow(len(rows), current))

	return rows
}

func newRow(index int, tokens []WordToken) Row {
	sort.SliceStable(tokens, func(i, j int) bool {
		return tokens[i].BBox.CenterX() < tokens[j].BBox.CenterX()
	})
	return Row{Index: index, Tokens: tokens}
}
