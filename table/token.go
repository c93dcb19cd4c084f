package table

import (
	"fmt"
	"math"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/utils"
)

// BBox is an axis-aligned box in page pixel space.
type BBox struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

func (b BBox) CenterX() float64 { return float64(b.XMin+b.XMax) / 2 }
func (b BBox) CenterY() float64 { return float64(b.YMin+b.YMax) / 2 }
func (b BBox) Width() int       { return b.XMax - b.XMin }
func (b BBox) Height() int      { return b.YMax - b.YMin }

// Valid reports non-negative coordinates with positive width and height.
func (b BBox) Valid() bool {
	return b.XMin >= 0 && b.YMin >= 0 && b.XMax > b.XMin && b.YMax > b.YMin
}

// WordToken is one recognised word after ingestion. Text is NFKC-clean and
// Confidence lies in [0,1].
type WordToken struct {
	Text       string
	BBox       BBox
	Confidence float64
}

// RawToken is what a recognition engine hands us: either a positioned word or
// a flat run of text without geometry.
type RawToken interface {
	rawToken()
}

type Positioned struct {
	Text       string
	BBox       BBox
	Confidence float64
}

// FlatText is degraded engine output. A Confidence of zero means the engine
// did not report one.
type FlatText struct {
	Text       string
	Confidence float64
}

func (Positioned) rawToken() {}
func (FlatText) rawToken()   {}

// ingested is the normalised view of a region's raw input.
type ingested struct {
	tokens   []WordToken
	flat     []string
	flatConf []float64
	notes    []string
}

// ingest converts raw tokens into WordTokens, dropping malformed ones with a note.
func ingest(raw []RawToken) ingested {
	var in ingested

	for i, r := range raw {
		switch t := r.(type) {
		case Positioned:
			text := utils.CleanText(t.Text)
			switch {
			case text == "":
				in.notes = append(in.notes, fmt.Sprintf("token %d dropped: empty text", i))
				continue
			case !t.BBox.Valid():
				in.notes = append(in.notes, fmt.Sprintf("token %d (%q) dropped: invalid bbox %v", i, text, t.BBox))
				continue
			case math.IsNaN(t.Confidence) || math.IsInf(t.Confidence, 0):
				in.notes = append(in.notes, fmt.Sprintf("token %d (%q) dropped: non-finite confidence", i, text))
				continue
			}
			in.tokens = append(in.tokens, WordToken{
				Text:       text,
				BBox:       t.BBox,
				Confidence: clamp01(t.Confidence),
			})
		case FlatText:
			if strings.TrimSpace(t.Text) == "" {
				continue
			}
			in.flat = append(in.flat, t.Text)
			if t.Confidence > 0 && !math.IsNaN(t.Confidence) && !math.IsInf(t.Confidence, 0) {
				in.flatConf = append(in.flatConf, clamp01(t.Confidence))
			}
		case nil:
			in.notes = append(in.notes, fmt.Sprintf("token %d dropped: nil", i))
		}
	}

	return in
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func meanConfidence(tokens []WordToken) float64 {
	if len(tokens) == 0 {
		return 0
	}
	var sum float64
	for _, t := range tokens {
		sum += t.Confidence
	}
	return sum / float64(len(tokens))
}
