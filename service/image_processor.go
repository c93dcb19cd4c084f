package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/Aashish23092/invoice-line-verification/utils"
	"github.com/disintegration/imaging"
	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"

	// register decoders imaging does not cover
	_ "golang.org/x/image/webp"
)

const (
	// luminance below which a pixel counts as ink
	inkThreshold = 110
	// shortest pixel run accepted as a ruled line
	minRuleRun = 40
)

func openImage(path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

func decodeImage(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// enhanceForOCR converts to grayscale and sharpens, which helps both the
// recognition engine and ruled-line detection.
func enhanceForOCR(img image.Image) *image.NRGBA {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 20)
	return imaging.Sharpen(out, 1.0)
}

// stackPages pastes page images below each other on a white canvas.
func stackPages(pages []image.Image) image.Image {
	if len(pages) == 1 {
		return pages[0]
	}

	width, height := 0, 0
	for _, p := range pages {
		width = max(width, p.Bounds().Dx())
		height += p.Bounds().Dy()
	}

	canvas := imaging.New(width, height, color.White)
	y := 0
	for _, p := range pages {
		canvas = imaging.Paste(canvas, p, image.Pt(0, y))
		y += p.Bounds().Dy()
	}
	return canvas
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image to PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// detectRules finds horizontal and vertical ink runs long enough to be table
// rules. Thick rules yield several parallel runs, which the grid detector
// merges.
func detectRules(img image.Image) []table.RuleSegment {
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	ink := func(x, y int) bool {
		// grayscale keeps R=G=B
		return gray.Pix[gray.PixOffset(x, y)] < inkThreshold
	}

	var rules []table.RuleSegment
	for y := b.Min.Y; y < b.Max.Y; y++ {
		start := -1
		for x := b.Min.X; x <= b.Max.X; x++ {
			if x < b.Max.X && ink(x, y) {
				if start < 0 {
					start = x
				}
				continue
			}
			if start >= 0 && x-start >= minRuleRun {
				rules = append(rules, table.RuleSegment{X1: float64(start), Y1: float64(y), X2: float64(x - 1), Y2: float64(y)})
			}
			start = -1
		}
	}
	for x := b.Min.X; x < b.Max.X; x++ {
		start := -1
		for y := b.Min.Y; y <= b.Max.Y; y++ {
			if y < b.Max.Y && ink(x, y) {
				if start < 0 {
					start = y
				}
				continue
			}
			if start >= 0 && y-start >= minRuleRun {
				rules = append(rules, table.RuleSegment{X1: float64(x), Y1: float64(start), X2: float64(x), Y2: float64(y - 1)})
			}
			start = -1
		}
	}
	return rules
}

// imageCellReader recognises the text of one grid cell by cropping it out of
// the page and handing it to the recognition engine.
type imageCellReader struct {
	ctx        context.Context
	img        image.Image
	recognizer Recognizer
}

func (r *imageCellReader) RecognizeCell(cell table.BBox) (string, float64) {
	// inset so the rules themselves are not read as characters
	rect := image.Rect(cell.XMin+2, cell.YMin+2, cell.XMax-2, cell.YMax-2).Intersect(r.img.Bounds())
	if rect.Empty() {
		return "", 0
	}

	crop := imaging.Crop(r.img, rect)
	data, err := encodePNG(crop)
	if err != nil {
		return "", 0
	}

	tokens, err := r.recognizer.Recognize(r.ctx, data)
	if err != nil {
		log.Printf("Cell recognition failed: %v", err)
		return "", 0
	}

	var words []string
	var conf float64
	for _, tok := range tokens {
		switch t := tok.(type) {
		case table.Positioned:
			words = append(words, t.Text)
			conf += t.Confidence
		case table.FlatText:
			words = append(words, t.Text)
			conf += t.Confidence
		}
	}
	if len(words) == 0 {
		return "", 0
	}
	return strings.Join(words, " "), conf / float64(len(words))
}

// decodePaymentQR looks for a payment QR code on the page.
func decodePaymentQR(img image.Image) (dto.PaymentQR, bool) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return dto.PaymentQR{}, false
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	})
	if err != nil {
		return dto.PaymentQR{}, false
	}

	qr, ok := utils.ParsePaymentQR(result.GetText())
	if ok {
		log.Printf("Payment QR decoded: format=%s amount=%s", qr.Format, qr.Amount)
	}
	return qr, ok
}
