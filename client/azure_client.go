package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/Azure/azure-sdk-for-go/services/cognitiveservices/v3.0/computervision"
	"github.com/Azure/go-autorest/autorest"
)

// azureWordConfidence stands in for the per-word confidence the printed-text
// endpoint does not report.
const azureWordConfidence = 0.9

// AzureClient recognises printed text with the Azure Computer Vision OCR API.
type AzureClient struct {
	client *computervision.BaseClient
}

func NewAzureClient(endpoint, apiKey string) *AzureClient {
	client := computervision.New(endpoint)
	client.Authorizer = autorest.NewCognitiveServicesAuthorizer(apiKey)

	return &AzureClient{client: &client}
}

// Recognize returns every word of the OCR result with its bounding box.
func (ac *AzureClient) Recognize(ctx context.Context, image []byte) ([]table.RawToken, error) {
	result, err := ac.client.RecognizePrintedTextInStream(
		ctx,
		true,
		io.NopCloser(bytes.NewReader(image)),
		computervision.OcrLanguages(computervision.En),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}

	tokens := wordsFromOCRResult(result)
	log.Printf("Azure OCR recognised %d words", len(tokens))
	return tokens, nil
}

func wordsFromOCRResult(result computervision.OcrResult) []table.RawToken {
	var tokens []table.RawToken
	if result.Regions == nil {
		return tokens
	}
	for _, region := range *result.Regions {
		if region.Lines == nil {
			continue
		}
		for _, line := range *region.Lines {
			if line.Words == nil {
				continue
			}
			for _, word := range *line.Words {
				if word.Text == nil || word.BoundingBox == nil {
					continue
				}
				box, ok := parseBoundingBox(*word.BoundingBox)
				if !ok {
					continue
				}
				tokens = append(tokens, table.Positioned{Text: *word.Text, BBox: box, Confidence: azureWordConfidence})
			}
		}
	}
	return tokens
}

// parseBoundingBox reads Azure's "left,top,width,height" box.
func parseBoundingBox(s string) (table.BBox, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return table.BBox{}, false
	}
	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return table.BBox{}, false
		}
		v[i] = n
	}
	return table.BBox{XMin: v[0], YMin: v[1], XMax: v[0] + v[2], YMax: v[1] + v[3]}, true
}
