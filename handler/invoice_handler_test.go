package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/service"
	"github.com/Aashish23092/invoice-line-verification/validation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const regionBody = `{
	"document_id": "inv-42",
	"page_width": 600,
	"header": {"declared_subtotal": "382.45", "declared_tax": "76.49", "declared_total": "458.94", "tax_rate": "0.20"},
	"tokens": [
		{"text": "Product", "bbox": {"x_min": 10, "y_min": 100, "x_max": 80, "y_max": 120}, "confidence": 0.9},
		{"text": "Qty", "bbox": {"x_min": 230, "y_min": 100, "x_max": 260, "y_max": 120}, "confidence": 0.9},
		{"text": "Price", "bbox": {"x_min": 310, "y_min": 100, "x_max": 350, "y_max": 120}, "confidence": 0.9},
		{"text": "Total", "bbox": {"x_min": 410, "y_min": 100, "x_max": 450, "y_max": 120}, "confidence": 0.9},
		{"text": "Storage", "bbox": {"x_min": 10, "y_min": 140, "x_max": 70, "y_max": 160}, "confidence": 0.9},
		{"text": "Unit", "bbox": {"x_min": 75, "y_min": 140, "x_max": 105, "y_max": 160}, "confidence": 0.9},
		{"text": "5", "bbox": {"x_min": 240, "y_min": 140, "x_max": 250, "y_max": 160}, "confidence": 0.9},
		{"text": "24.99", "bbox": {"x_min": 310, "y_min": 140, "x_max": 350, "y_max": 160}, "confidence": 0.9},
		{"text": "124.95", "bbox": {"x_min": 410, "y_min": 140, "x_max": 460, "y_max": 160}, "confidence": 0.9},
		{"text": "Rate", "bbox": {"x_min": 10, "y_min": 180, "x_max": 45, "y_max": 200}, "confidence": 0.9},
		{"text": "Card", "bbox": {"x_min": 50, "y_min": 180, "x_max": 85, "y_max": 200}, "confidence": 0.9},
		{"text": "Display", "bbox": {"x_min": 90, "y_min": 180, "x_max": 150, "y_max": 200}, "confidence": 0.9},
		{"text": "10.5", "bbox": {"x_min": 232, "y_min": 180, "x_max": 258, "y_max": 200}, "confidence": 0.9},
		{"text": "15.00", "bbox": {"x_min": 310, "y_min": 180, "x_max": 350, "y_max": 200}, "confidence": 0.9},
		{"text": "157.50", "bbox": {"x_min": 410, "y_min": 180, "x_max": 460, "y_max": 200}, "confidence": 0.9},
		{"text": "Flat", "bbox": {"x_min": 10, "y_min": 220, "x_max": 40, "y_max": 240}, "confidence": 0.9},
		{"text": "Fee", "bbox": {"x_min": 45, "y_min": 220, "x_max": 70, "y_max": 240}, "confidence": 0.9},
		{"text": "Service", "bbox": {"x_min": 75, "y_min": 220, "x_max": 130, "y_max": 240}, "confidence": 0.9},
		{"text": "1", "bbox": {"x_min": 242, "y_min": 220, "x_max": 248, "y_max": 240}, "confidence": 0.9},
		{"text": "100.00", "bbox": {"x_min": 305, "y_min": 220, "x_max": 355, "y_max": 240}, "confidence": 0.9},
		{"text": "100.00", "bbox": {"x_min": 410, "y_min": 220, "x_max": 460, "y_max": 240}, "confidence": 0.9}
	]
}`

type memoryStore struct {
	mu      sync.Mutex
	results map[string]validation.ValidationResult
}

func (m *memoryStore) Save(ctx context.Context, documentID string, res validation.ValidationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]validation.ValidationResult)
	}
	m.results[documentID] = res
	return nil
}

func (m *memoryStore) FindByDocumentID(ctx context.Context, documentID string) (*dto.StoredVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.results[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dto.ErrNotFound, documentID)
	}
	return &dto.StoredVerification{
		DocumentID:     documentID,
		MethodUsed:     string(res.MethodUsed),
		IntegrityScore: res.IntegrityScore,
		BadgeStatus:    string(res.Badge.Status),
		Issues:         res.Issues,
	}, nil
}

func newRouter() *gin.Engine {
	return newRouterWithStore(nil)
}

func newRouterWithStore(store service.ResultStore) *gin.Engine {
	gin.SetMode(gin.TestMode)

	svc := service.NewInvoiceService(nil, service.NewPDFProcessor(), store, config.DefaultPipelineConfig())
	h := NewInvoiceHandler(svc, 1<<20)

	r := gin.New()
	r.POST("/regions/verify", h.VerifyRegion)
	r.POST("/regions/verify-batch", h.VerifyBatch)
	r.POST("/scan", h.ScanInvoice)
	r.GET("/:document_id", h.GetVerification)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVerifyRegionEndpoint(t *testing.T) {
	w := postJSON(newRouter(), "/regions/verify", regionBody)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.VerificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "inv-42", resp.DocumentID)
	assert.Equal(t, "spatial_clustering", resp.MethodUsed)
	assert.Len(t, resp.LineItems, 3)
	assert.True(t, resp.IsConsistent)
	assert.Equal(t, "Math-verified", resp.Badge.Label)
	assert.Equal(t, "green", resp.Badge.Color)
	assert.False(t, resp.ShouldEscalate)
	assert.Equal(t, "382.45", resp.ItemsSubtotal.StringFixed(2))
}

func TestVerifyRegionEndpointEmptyRegion(t *testing.T) {
	w := postJSON(newRouter(), "/regions/verify", `{"tokens": []}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.VerificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "none", resp.MethodUsed)
	assert.Equal(t, "unverified", resp.Badge.Status)
	assert.Equal(t, "Unverified", resp.Badge.Label)
	assert.True(t, resp.ShouldEscalate)
}

func TestVerifyRegionEndpointNegativePageWidth(t *testing.T) {
	w := postJSON(newRouter(), "/regions/verify", `{"page_width": -5}`)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "VERIFICATION_FAILED", resp.Error)
	assert.Equal(t, dto.ErrBadPageWidth.Error(), resp.Message)
}

func TestVerifyBatchEndpointEmpty(t *testing.T) {
	w := postJSON(newRouter(), "/regions/verify-batch", `{"regions": []}`)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestVerifyRegionEndpointMalformedJSON(t *testing.T) {
	w := postJSON(newRouter(), "/regions/verify", `{"tokens": [`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyBatchEndpoint(t *testing.T) {
	body := fmt.Sprintf(`{"regions": [%s, {"document_id": "b", "raw_text": "Consulting services 150.00"}]}`, regionBody)

	w := postJSON(newRouter(), "/regions/verify-batch", body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp dto.BatchVerificationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "inv-42", resp.Results[0].DocumentID)
	assert.Equal(t, "flat_text_heuristic", resp.Results[1].MethodUsed)
	assert.Equal(t, 1, resp.Escalations)
}

func TestVerifyBatchEndpointTooLarge(t *testing.T) {
	regions := make([]string, dto.MaxBatchRegions+1)
	for i := range regions {
		regions[i] = `{"raw_text": "Widget 1.00"}`
	}

	w := postJSON(newRouter(), "/regions/verify-batch", `{"regions": [`+strings.Join(regions, ",")+`]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScanInvoiceUnsupportedType(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("just some notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/scan", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestScanInvoiceMissingFile(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("header", "{}"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/scan", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVerificationEndpoint(t *testing.T) {
	r := newRouterWithStore(&memoryStore{})
	require.Equal(t, http.StatusOK, postJSON(r, "/regions/verify", regionBody).Code)

	w := get(r, "/inv-42")

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stored dto.StoredVerification
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stored))
	assert.Equal(t, "inv-42", stored.DocumentID)
	assert.Equal(t, "spatial_clustering", stored.MethodUsed)
	assert.Equal(t, "verified", stored.BadgeStatus)

	assert.Equal(t, http.StatusNotFound, get(r, "/inv-missing").Code)
}

func TestGetVerificationEndpointWithoutStore(t *testing.T) {
	w := get(newRouter(), "/inv-42")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDetectType(t *testing.T) {
	mime, ok := detectType([]byte("%PDF-1.7\n"), "application/octet-stream")
	assert.True(t, ok)
	assert.Equal(t, "application/pdf", mime)

	mime, ok = detectType([]byte("II*\x00"), "image/tiff")
	assert.True(t, ok)
	assert.Equal(t, "image/tiff", mime)

	_, ok = detectType([]byte("hello"), "text/plain")
	assert.False(t, ok)
}
