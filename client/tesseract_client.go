package client

import (
	"context"
	"fmt"
	"log"

	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/otiai10/gosseract/v2"
)

type TesseractClient struct {
	dataPath string
	language string
}

func NewTesseractClient(dataPath string) *TesseractClient {
	return &TesseractClient{
		dataPath: dataPath,
		language: "eng",
	}
}

// Recognize returns every word Tesseract finds in the image with its bounding
// box. Tesseract reports confidence on a 0-100 scale, it is returned as 0-1.
func (tc *TesseractClient) Recognize(ctx context.Context, image []byte) ([]table.RawToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if tc.dataPath != "" {
		client.SetTessdataPrefix(tc.dataPath)
	}
	if err := client.SetLanguage(tc.language); err != nil {
		return nil, fmt.Errorf("failed to set language: %w", err)
	}
	// sparse text keeps the words of a table row apart
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("failed to extract words: %w", err)
	}

	tokens := make([]table.RawToken, 0, len(boxes))
	for _, box := range boxes {
		tokens = append(tokens, table.Positioned{
			Text: box.Word,
			BBox: table.BBox{
				XMin: box.Box.Min.X,
				YMin: box.Box.Min.Y,
				XMax: box.Box.Max.X,
				YMax: box.Box.Max.Y,
			},
			Confidence: box.Confidence / 100,
		})
	}

	log.Printf("Tesseract recognised %d words", len(tokens))
	return tokens, nil
}

// Close performs cleanup
func (tc *TesseractClient) Close() {
	log.Println("Tesseract client closed")
}
