package service

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/Aashish23092/invoice-line-verification/validation"
	"github.com/google/uuid"
)

// minTextPDFWords separates text PDFs from scanned ones.
const minTextPDFWords = 10

// Recognizer is a recognition engine. Engines that report word geometry return
// table.Positioned tokens, the others return table.FlatText.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) ([]table.RawToken, error)
}

// ResultStore keeps verification results for audit.
type ResultStore interface {
	Save(ctx context.Context, documentID string, res validation.ValidationResult) error
	FindByDocumentID(ctx context.Context, documentID string) (*dto.StoredVerification, error)
}

// InvoiceService verifies invoice line-item tables.
type InvoiceService struct {
	recognizer   Recognizer
	pdfProcessor PDFProcessor
	store        ResultStore
	cfg          config.PipelineConfig
}

func NewInvoiceService(
	recognizer Recognizer,
	pdfProcessor PDFProcessor,
	store ResultStore,
	cfg config.PipelineConfig,
) *InvoiceService {
	return &InvoiceService{
		recognizer:   recognizer,
		pdfProcessor: pdfProcessor,
		store:        store,
		cfg:          cfg,
	}
}

// VerifyRegion verifies one region whose tokens were recognised upstream.
func (s *InvoiceService) VerifyRegion(ctx context.Context, req *dto.RegionVerificationRequest) (*dto.VerificationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}

	res := validation.ProcessRegion(regionFromRequest(req), req.Header, s.cfg)
	s.persist(ctx, docID, res)

	resp := toResponse(docID, res, nil)
	return &resp, nil
}

// VerifyBatch verifies independent regions concurrently. Results keep the
// order of the request.
func (s *InvoiceService) VerifyBatch(ctx context.Context, req *dto.BatchVerificationRequest) (*dto.BatchVerificationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	results := make([]dto.VerificationResponse, len(req.Regions))
	errs := make([]error, len(req.Regions))
	var wg sync.WaitGroup

	for i := range req.Regions {
		wg.Add(1)
		go func(i int, region *dto.RegionVerificationRequest) {
			defer wg.Done()

			resp, err := s.VerifyRegion(ctx, region)
			if err != nil {
				errs[i] = fmt.Errorf("region %d: %w", i, err)
				return
			}
			results[i] = *resp
		}(i, &req.Regions[i])
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	escalations := 0
	for _, r := range results {
		if r.ShouldEscalate {
			escalations++
		}
	}

	return &dto.BatchVerificationResponse{
		Results:     results,
		Escalations: escalations,
		ProcessedAt: time.Now().Format(time.RFC3339),
	}, nil
}

// ScanDocument recognises an uploaded invoice and verifies its line items.
// Text PDFs are read directly. Scanned PDFs and images go through the
// recognition engine, with ruled-line detection feeding the grid strategy and
// any payment QR code supplying a missing total.
func (s *InvoiceService) ScanDocument(ctx context.Context, fileData []byte, mimeType, password string, header dto.HeaderFields) (*dto.VerificationResponse, error) {
	docID := uuid.NewString()

	var region table.RegionInput
	var page image.Image

	if strings.Contains(mimeType, "pdf") {
		log.Printf("Processing PDF invoice %s", docID)

		words, err := s.pdfProcessor.ExtractWords(fileData, password)
		if err != nil {
			log.Printf("PDF text extraction failed for %s: %v", docID, err)
		}

		if len(words.Tokens) >= minTextPDFWords {
			region = table.RegionInput{Tokens: words.Tokens, PageWidth: words.PageWidth}
		} else {
			log.Printf("PDF %s seems to be scanned, attempting image-based OCR", docID)
			images, imgErr := s.pdfProcessor.ExtractImages(fileData, password)
			if imgErr != nil || len(images) == 0 {
				return nil, fmt.Errorf("pdf has no text and no page images: %v", imgErr)
			}
			page = stackPages(images)
		}
	} else {
		img, err := decodeImage(fileData)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", dto.ErrUnsupportedFile, err)
		}
		page = img
	}

	var qr *dto.PaymentQR
	if page != nil {
		var err error
		region, err = s.recognizePage(ctx, page)
		if err != nil {
			return nil, err
		}
		if p, ok := decodePaymentQR(page); ok {
			qr = &p
			if !header.Total.Valid && p.Amount.IsPositive() {
				header.Total.Decimal, header.Total.Valid = p.Amount, true
			}
		}
	}

	res := validation.ProcessRegion(region, header, s.cfg)
	s.persist(ctx, docID, res)

	resp := toResponse(docID, res, qr)
	return &resp, nil
}

// GetVerification returns a previously stored verification.
func (s *InvoiceService) GetVerification(ctx context.Context, documentID string) (*dto.StoredVerification, error) {
	if s.store == nil {
		return nil, dto.ErrStoreUnavailable
	}
	return s.store.FindByDocumentID(ctx, documentID)
}

func (s *InvoiceService) recognizePage(ctx context.Context, page image.Image) (table.RegionInput, error) {
	enhanced := enhanceForOCR(page)
	data, err := encodePNG(enhanced)
	if err != nil {
		return table.RegionInput{}, err
	}

	tokens, err := s.recognizer.Recognize(ctx, data)
	if err != nil {
		return table.RegionInput{}, fmt.Errorf("image OCR failed: %w", err)
	}

	return table.RegionInput{
		Tokens:    tokens,
		PageWidth: enhanced.Bounds().Dx(),
		Rules:     detectRules(enhanced),
		Cells:     &imageCellReader{ctx: ctx, img: enhanced, recognizer: s.recognizer},
	}, nil
}

func (s *InvoiceService) persist(ctx context.Context, docID string, res validation.ValidationResult) {
	if s.store == nil {
		return
	}
	if err := s.store.Save(ctx, docID, res); err != nil {
		log.Printf("Failed to store verification %s: %v", docID, err)
	}
}

// regionFromRequest turns request tokens into pipeline tokens. Tokens without a
// bbox and the raw text become flat text.
func regionFromRequest(req *dto.RegionVerificationRequest) table.RegionInput {
	tokens := make([]table.RawToken, 0, len(req.Tokens)+1)
	for _, t := range req.Tokens {
		if t.BBox == nil {
			tokens = append(tokens, table.FlatText{Text: t.Text, Confidence: t.Confidence})
			continue
		}
		tokens = append(tokens, table.Positioned{
			Text: t.Text,
			BBox: table.BBox{
				XMin: t.BBox.XMin,
				YMin: t.BBox.YMin,
				XMax: t.BBox.XMax,
				YMax: t.BBox.YMax,
			},
			Confidence: t.Confidence,
		})
	}
	if strings.TrimSpace(req.RawText) != "" {
		tokens = append(tokens, table.FlatText{Text: req.RawText})
	}
	return table.RegionInput{Tokens: tokens, PageWidth: req.PageWidth}
}
