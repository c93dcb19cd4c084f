package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/Aashish23092/invoice-line-verification/validation"
	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecognizer struct {
	mu     sync.Mutex
	calls  int
	tokens []table.RawToken
	err    error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, image []byte) ([]table.RawToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.tokens, f.err
}

type fakePDF struct {
	words  PDFWords
	images []image.Image
}

func (f *fakePDF) ExtractWords(pdfData []byte, password string) (PDFWords, error) {
	return f.words, nil
}

func (f *fakePDF) ExtractImages(pdfData []byte, password string) ([]image.Image, error) {
	return f.images, nil
}

type fakeStore struct {
	mu      sync.Mutex
	ids     []string
	results map[string]validation.ValidationResult
}

func (f *fakeStore) Save(ctx context.Context, documentID string, res validation.ValidationResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, documentID)
	if f.results == nil {
		f.results = make(map[string]validation.ValidationResult)
	}
	f.results[documentID] = res
	return nil
}

func (f *fakeStore) FindByDocumentID(ctx context.Context, documentID string) (*dto.StoredVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[documentID]
	if !ok {
		return nil, dto.ErrNotFound
	}
	return &dto.StoredVerification{
		DocumentID:     documentID,
		IntegrityScore: res.IntegrityScore,
		BadgeStatus:    string(res.Badge.Status),
		Issues:         res.Issues,
	}, nil
}

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func cleanHeader() dto.HeaderFields {
	return dto.HeaderFields{Subtotal: nd("382.45"), Tax: nd("76.49"), Total: nd("458.94"), TaxRate: nd("0.20")}
}

type box struct {
	text                   string
	xMin, yMin, xMax, yMax int
}

var storageWords = []box{
	{"Product", 10, 100, 80, 120}, {"Qty", 230, 100, 260, 120}, {"Price", 310, 100, 350, 120}, {"Total", 410, 100, 450, 120},
	{"Storage", 10, 140, 70, 160}, {"Unit", 75, 140, 105, 160}, {"5", 240, 140, 250, 160}, {"24.99", 310, 140, 350, 160}, {"124.95", 410, 140, 460, 160},
	{"Rate", 10, 180, 45, 200}, {"Card", 50, 180, 85, 200}, {"Display", 90, 180, 150, 200}, {"10.5", 232, 180, 258, 200}, {"15.00", 310, 180, 350, 200}, {"157.50", 410, 180, 460, 200},
	{"Flat", 10, 220, 40, 240}, {"Fee", 45, 220, 70, 240}, {"Service", 75, 220, 130, 240}, {"1", 242, 220, 248, 240}, {"100.00", 305, 220, 355, 240}, {"100.00", 410, 220, 460, 240},
}

func storageTokens() []table.RawToken {
	tokens := make([]table.RawToken, len(storageWords))
	for i, w := range storageWords {
		tokens[i] = table.Positioned{Text: w.text, BBox: table.BBox{XMin: w.xMin, YMin: w.yMin, XMax: w.xMax, YMax: w.yMax}, Confidence: 0.9}
	}
	return tokens
}

func storageRequest(id string) dto.RegionVerificationRequest {
	req := dto.RegionVerificationRequest{DocumentID: id, PageWidth: 600, Header: cleanHeader()}
	for _, w := range storageWords {
		req.Tokens = append(req.Tokens, dto.TokenInput{
			Text:       w.text,
			BBox:       &dto.BBoxInput{XMin: w.xMin, YMin: w.yMin, XMax: w.xMax, YMax: w.yMax},
			Confidence: 0.9,
		})
	}
	return req
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(300, 200, color.White), imaging.PNG))
	return buf.Bytes()
}

func newTestService(rec Recognizer, p PDFProcessor, store ResultStore) *InvoiceService {
	return NewInvoiceService(rec, p, store, config.DefaultPipelineConfig())
}

func TestVerifyRegion(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, store)
	req := storageRequest("inv-1")

	resp, err := svc.VerifyRegion(context.Background(), &req)

	require.NoError(t, err)
	assert.Equal(t, "inv-1", resp.DocumentID)
	assert.Equal(t, string(table.MethodSpatial), resp.MethodUsed)
	assert.Len(t, resp.LineItems, 3)
	assert.True(t, resp.IsConsistent)
	assert.Equal(t, "Math-verified", resp.Badge.Label)
	assert.False(t, resp.ShouldEscalate)
	assert.Equal(t, []string{"inv-1"}, store.ids)
}

func TestVerifyRegionAssignsDocumentID(t *testing.T) {
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, nil)
	req := dto.RegionVerificationRequest{RawText: "Consulting services 150.00"}

	resp, err := svc.VerifyRegion(context.Background(), &req)

	require.NoError(t, err)
	assert.NotEmpty(t, resp.DocumentID)
	assert.Equal(t, string(table.MethodFlatText), resp.MethodUsed)
	assert.Equal(t, "unverified", resp.Badge.Status)
	assert.True(t, resp.ShouldEscalate)
}

func TestVerifyRegionEmptyRequestIsUnverified(t *testing.T) {
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, nil)

	resp, err := svc.VerifyRegion(context.Background(), &dto.RegionVerificationRequest{})

	require.NoError(t, err)
	assert.Equal(t, string(table.MethodNone), resp.MethodUsed)
	assert.Equal(t, "unverified", resp.Badge.Status)
	assert.Empty(t, resp.LineItems)
	assert.True(t, resp.ShouldEscalate)
}

func TestGetVerification(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, store)
	req := storageRequest("inv-7")
	_, err := svc.VerifyRegion(context.Background(), &req)
	require.NoError(t, err)

	stored, err := svc.GetVerification(context.Background(), "inv-7")

	require.NoError(t, err)
	assert.Equal(t, "inv-7", stored.DocumentID)
	assert.Equal(t, "verified", stored.BadgeStatus)

	_, err = svc.GetVerification(context.Background(), "missing")
	assert.ErrorIs(t, err, dto.ErrNotFound)
}

func TestGetVerificationWithoutStore(t *testing.T) {
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, nil)

	_, err := svc.GetVerification(context.Background(), "inv-7")

	assert.ErrorIs(t, err, dto.ErrStoreUnavailable)
}

func TestVerifyBatchKeepsOrder(t *testing.T) {
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, &fakeStore{})
	req := &dto.BatchVerificationRequest{Regions: []dto.RegionVerificationRequest{
		storageRequest("a"),
		{DocumentID: "b", RawText: "Consulting services 150.00"},
		storageRequest("c"),
	}}

	resp, err := svc.VerifyBatch(context.Background(), req)

	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "a", resp.Results[0].DocumentID)
	assert.Equal(t, "b", resp.Results[1].DocumentID)
	assert.Equal(t, "c", resp.Results[2].DocumentID)
	assert.Equal(t, 1, resp.Escalations)
}

func TestVerifyBatchFailsOnInvalidRegion(t *testing.T) {
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, nil)
	req := &dto.BatchVerificationRequest{Regions: []dto.RegionVerificationRequest{storageRequest("a"), {PageWidth: -1}}}

	_, err := svc.VerifyBatch(context.Background(), req)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "region 1")

	_, err = svc.VerifyBatch(context.Background(), &dto.BatchVerificationRequest{})
	assert.ErrorIs(t, err, dto.ErrNoInput)
}

func TestScanDocumentImage(t *testing.T) {
	rec := &fakeRecognizer{tokens: storageTokens()}
	svc := newTestService(rec, &fakePDF{}, nil)

	resp, err := svc.ScanDocument(context.Background(), blankPNG(t), "image/png", "", cleanHeader())

	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, string(table.MethodSpatial), resp.MethodUsed)
	assert.Len(t, resp.LineItems, 3)
	assert.True(t, resp.IsConsistent)
	assert.Nil(t, resp.PaymentQR)
}

func TestScanDocumentTextPDFSkipsRecognition(t *testing.T) {
	rec := &fakeRecognizer{}
	svc := newTestService(rec, &fakePDF{words: PDFWords{Tokens: storageTokens(), PageWidth: 1190}}, nil)

	resp, err := svc.ScanDocument(context.Background(), []byte("%PDF"), "application/pdf", "", cleanHeader())

	require.NoError(t, err)
	assert.Equal(t, 0, rec.calls)
	assert.Len(t, resp.LineItems, 3)
}

func TestScanDocumentScannedPDF(t *testing.T) {
	rec := &fakeRecognizer{tokens: storageTokens()}
	pages := []image.Image{imaging.New(300, 200, color.White), imaging.New(300, 100, color.White)}
	svc := newTestService(rec, &fakePDF{images: pages}, nil)

	resp, err := svc.ScanDocument(context.Background(), []byte("%PDF"), "application/pdf", "", cleanHeader())

	require.NoError(t, err)
	assert.Equal(t, 1, rec.calls)
	assert.Len(t, resp.LineItems, 3)
}

func TestScanDocumentRecognizerError(t *testing.T) {
	svc := newTestService(&fakeRecognizer{err: errors.New("engine down")}, &fakePDF{}, nil)

	_, err := svc.ScanDocument(context.Background(), blankPNG(t), "image/png", "", dto.HeaderFields{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine down")
}

func TestScanDocumentUnsupportedFile(t *testing.T) {
	svc := newTestService(&fakeRecognizer{}, &fakePDF{}, nil)

	_, err := svc.ScanDocument(context.Background(), []byte("plain text"), "text/plain", "", dto.HeaderFields{})

	assert.ErrorIs(t, err, dto.ErrUnsupportedFile)
}

func TestRegionFromRequest(t *testing.T) {
	req := &dto.RegionVerificationRequest{
		Tokens: []dto.TokenInput{
			{Text: "Widget", BBox: &dto.BBoxInput{XMin: 1, YMin: 2, XMax: 30, YMax: 12}, Confidence: 0.8},
			{Text: "loose line", Confidence: 0.5},
		},
		RawText:   "Total 10.00",
		PageWidth: 800,
	}

	region := regionFromRequest(req)

	require.Len(t, region.Tokens, 3)
	assert.Equal(t, table.Positioned{Text: "Widget", BBox: table.BBox{XMin: 1, YMin: 2, XMax: 30, YMax: 12}, Confidence: 0.8}, region.Tokens[0])
	assert.Equal(t, table.FlatText{Text: "loose line", Confidence: 0.5}, region.Tokens[1])
	assert.Equal(t, table.FlatText{Text: "Total 10.00"}, region.Tokens[2])
	assert.Equal(t, 800, region.PageWidth)
}

func TestDetectRules(t *testing.T) {
	img := imaging.New(200, 100, color.White)
	for x := 10; x < 190; x++ {
		img.Set(x, 10, color.Black)
	}
	for y := 10; y < 90; y++ {
		img.Set(10, y, color.Black)
	}

	rules := detectRules(img)

	require.Len(t, rules, 2)
	assert.Equal(t, table.RuleSegment{X1: 10, Y1: 10, X2: 189, Y2: 10}, rules[0])
	assert.Equal(t, table.RuleSegment{X1: 10, Y1: 10, X2: 10, Y2: 89}, rules[1])
}

func TestStackPages(t *testing.T) {
	stacked := stackPages([]image.Image{imaging.New(300, 200, color.White), imaging.New(250, 100, color.White)})

	assert.Equal(t, 300, stacked.Bounds().Dx())
	assert.Equal(t, 300, stacked.Bounds().Dy())
}

func TestImageCellReader(t *testing.T) {
	rec := &fakeRecognizer{tokens: []table.RawToken{
		table.Positioned{Text: "Flat", Confidence: 0.8},
		table.Positioned{Text: "Fee", Confidence: 0.6},
	}}
	reader := &imageCellReader{ctx: context.Background(), img: imaging.New(100, 50, color.White), recognizer: rec}

	text, conf := reader.RecognizeCell(table.BBox{XMin: 0, YMin: 0, XMax: 60, YMax: 30})
	assert.Equal(t, "Flat Fee", text)
	assert.InDelta(t, 0.7, conf, 1e-9)

	text, conf = reader.RecognizeCell(table.BBox{XMin: 200, YMin: 200, XMax: 260, YMax: 230})
	assert.Empty(t, text)
	assert.Zero(t, conf)
}

func TestWordsFromRows(t *testing.T) {
	glyph := func(x, w float64, s string) pdf.Text {
		return pdf.Text{FontSize: 10, X: x, Y: 700, W: w, S: s}
	}
	rows := pdf.Rows{&pdf.Row{Position: 700, Content: pdf.TextHorizontal{
		glyph(50, 5, "T"), glyph(55, 5, "o"), glyph(60, 3, " "),
		glyph(100, 5, "1"), glyph(105, 5, "2"), glyph(110, 2, "."), glyph(112, 5, "5"), glyph(117, 5, "0"),
	}}}

	words := wordsFromRows(rows, 792, 0)

	require.Len(t, words, 2)
	assert.Equal(t, "To", words[0].Text)
	assert.Equal(t, table.BBox{XMin: 100, YMin: 164, XMax: 120, YMax: 184}, words[0].BBox)
	assert.Equal(t, "12.50", words[1].Text)
	assert.Equal(t, 1.0, words[1].Confidence)
}
