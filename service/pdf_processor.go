package service

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	// PDF points are scaled to 144 dpi pixels so that word boxes keep
	// sub-point precision as integers.
	pdfScale = 2.0
	// a gap wider than this fraction of the font size starts a new word
	pdfWordGapRatio = 0.25
	// embedded text carries no recognition uncertainty
	pdfTextConfidence = 1.0
)

// PDFWords are the positioned words of a text PDF, with pages stacked top to
// bottom into one coordinate space.
type PDFWords struct {
	Tokens    []table.RawToken
	PageWidth int
}

type PDFProcessor interface {
	ExtractWords(pdfData []byte, password string) (PDFWords, error)
	ExtractImages(pdfData []byte, password string) ([]image.Image, error)
}

type pdfProcessor struct{}

func NewPDFProcessor() PDFProcessor {
	return &pdfProcessor{}
}

// decrypt removes password protection so ledongthuc/pdf can read the file.
func decrypt(pdfData []byte, password string) ([]byte, error) {
	if password == "" {
		return pdfData, nil
	}

	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password

	var out bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(pdfData), &out, conf); err != nil {
		return nil, fmt.Errorf("failed to decrypt pdf: %w", err)
	}
	return out.Bytes(), nil
}

func (p *pdfProcessor) ExtractWords(pdfData []byte, password string) (PDFWords, error) {
	var words PDFWords

	data, err := decrypt(pdfData, password)
	if err != nil {
		return words, err
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return words, fmt.Errorf("failed to open pdf: %w", err)
	}

	var yOffset float64
	for pageIndex := 1; pageIndex <= r.NumPage(); pageIndex++ {
		page := r.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}

		rows, err := page.GetTextByRow()
		if err != nil {
			return words, fmt.Errorf("failed to read text of page %d: %w", pageIndex, err)
		}

		width, height := pageSize(page, rows)
		if w := int(width * pdfScale); w > words.PageWidth {
			words.PageWidth = w
		}
		for _, w := range wordsFromRows(rows, height, yOffset) {
			words.Tokens = append(words.Tokens, w)
		}
		yOffset += height
	}

	return words, nil
}

// pageSize reads the MediaBox, falling back to the extent of the text.
func pageSize(page pdf.Page, rows pdf.Rows) (width, height float64) {
	box := page.V.Key("MediaBox")
	if box.Kind() == pdf.Array && box.Len() == 4 {
		width = number(box.Index(2)) - number(box.Index(0))
		height = number(box.Index(3)) - number(box.Index(1))
		if width > 0 && height > 0 {
			return width, height
		}
	}

	for _, row := range rows {
		for _, t := range row.Content {
			width = max(width, t.X+t.W)
			height = max(height, t.Y+t.FontSize)
		}
	}
	return width, height
}

func number(v pdf.Value) float64 {
	if v.Kind() == pdf.Integer {
		return float64(v.Int64())
	}
	return v.Float64()
}

// wordsFromRows merges the glyph runs of each text row into words. PDF y grows
// upwards, so rows are flipped against the page height.
func wordsFromRows(rows pdf.Rows, pageHeight, yOffset float64) []table.Positioned {
	var words []table.Positioned

	for _, row := range rows {
		glyphs := make([]pdf.Text, len(row.Content))
		copy(glyphs, row.Content)
		sort.SliceStable(glyphs, func(i, j int) bool { return glyphs[i].X < glyphs[j].X })

		var cur *pdfWord
		flush := func() {
			if cur != nil && strings.TrimSpace(cur.text.String()) != "" {
				words = append(words, cur.token(pageHeight, yOffset))
			}
			cur = nil
		}

		for _, g := range glyphs {
			if strings.TrimSpace(g.S) == "" {
				flush()
				continue
			}
			gap := pdfWordGapRatio * g.FontSize
			if gap <= 0 {
				gap = 2
			}
			if cur != nil && g.X-cur.xMax > gap {
				flush()
			}
			if cur == nil {
				cur = &pdfWord{xMin: g.X, xMax: g.X + g.W, y: g.Y, size: g.FontSize}
			}
			cur.text.WriteString(g.S)
			cur.xMax = max(cur.xMax, g.X+g.W)
			cur.size = max(cur.size, g.FontSize)
		}
		flush()
	}

	return words
}

type pdfWord struct {
	text       strings.Builder
	xMin, xMax float64
	y, size    float64
}

func (w *pdfWord) token(pageHeight, yOffset float64) table.Positioned {
	size := w.size
	if size <= 0 {
		size = 10
	}
	top := yOffset + pageHeight - w.y - size
	return table.Positioned{
		Text: strings.TrimSpace(w.text.String()),
		BBox: table.BBox{
			XMin: int(w.xMin * pdfScale),
			YMin: int(top * pdfScale),
			XMax: int(max(w.xMax, w.xMin+1) * pdfScale),
			YMax: int((top + size) * pdfScale),
		},
		Confidence: pdfTextConfidence,
	}
}

func (p *pdfProcessor) ExtractImages(pdfData []byte, password string) ([]image.Image, error) {
	// Create a temporary directory for extraction
	tempDir, err := os.MkdirTemp("", "pdf_images")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile, err := os.CreateTemp("", "invoice-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(pdfData); err != nil {
		tempFile.Close()
		return nil, fmt.Errorf("failed to write pdf data: %w", err)
	}
	tempFile.Close()

	conf := model.NewDefaultConfiguration()
	if password != "" {
		conf.UserPW = password
	}

	// nil selects every page
	if err := api.ExtractImagesFile(tempFile.Name(), tempDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract images: %w", err)
	}

	files, err := os.ReadDir(tempDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read temp dir: %w", err)
	}

	var images []image.Image
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		img, err := openImage(filepath.Join(tempDir, file.Name()))
		if err != nil {
			continue
		}
		images = append(images, img)
	}

	return images, nil
}
