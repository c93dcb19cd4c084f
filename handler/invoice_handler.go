package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/gin-gonic/gin"
)

// InvoiceVerifier is the service behind the invoice endpoints.
type InvoiceVerifier interface {
	VerifyRegion(ctx context.Context, req *dto.RegionVerificationRequest) (*dto.VerificationResponse, error)
	VerifyBatch(ctx context.Context, req *dto.BatchVerificationRequest) (*dto.BatchVerificationResponse, error)
	ScanDocument(ctx context.Context, fileData []byte, mimeType, password string, header dto.HeaderFields) (*dto.VerificationResponse, error)
	GetVerification(ctx context.Context, documentID string) (*dto.StoredVerification, error)
}

var supportedTypes = []string{
	"application/pdf",
	"image/png",
	"image/jpeg",
	"image/tiff",
	"image/bmp",
	"image/webp",
}

type InvoiceHandler struct {
	invoiceService InvoiceVerifier
	maxFileSize    int64
}

func NewInvoiceHandler(invoiceService InvoiceVerifier, maxFileSize int64) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		maxFileSize:    maxFileSize,
	}
}

// VerifyRegion handles the POST /invoices/regions/verify endpoint
func (h *InvoiceHandler) VerifyRegion(c *gin.Context) {
	var req dto.RegionVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	log.Printf("Received region verification request with %d tokens", len(req.Tokens))

	response, err := h.invoiceService.VerifyRegion(c.Request.Context(), &req)
	if err != nil {
		h.sendError(c, statusFor(err), "Failed to verify region", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// VerifyBatch handles the POST /invoices/regions/verify-batch endpoint
func (h *InvoiceHandler) VerifyBatch(c *gin.Context) {
	var req dto.BatchVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.sendError(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	log.Printf("Received batch verification request with %d regions", len(req.Regions))

	response, err := h.invoiceService.VerifyBatch(c.Request.Context(), &req)
	if err != nil {
		h.sendError(c, statusFor(err), "Failed to verify batch", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ScanInvoice handles the POST /invoices/scan endpoint
func (h *InvoiceHandler) ScanInvoice(c *gin.Context) {
	var req dto.ScanRequest
	if err := c.ShouldBind(&req); err != nil {
		h.sendError(c, http.StatusBadRequest, "File is required", err)
		return
	}

	if h.maxFileSize > 0 && req.File.Size > h.maxFileSize {
		h.sendError(c, http.StatusRequestEntityTooLarge, "File too large", dto.ErrFileTooLarge)
		return
	}

	var header dto.HeaderFields
	if req.Header != "" {
		if err := json.Unmarshal([]byte(req.Header), &header); err != nil {
			h.sendError(c, http.StatusBadRequest, "Invalid header JSON", err)
			return
		}
	}

	file, err := req.File.Open()
	if err != nil {
		h.sendError(c, http.StatusBadRequest, "Failed to open file", err)
		return
	}
	defer file.Close()

	fileData, err := io.ReadAll(file)
	if err != nil {
		h.sendError(c, http.StatusBadRequest, "Failed to read file", err)
		return
	}

	mimeType, ok := detectType(fileData, req.File.Header.Get("Content-Type"))
	if !ok {
		h.sendError(c, http.StatusUnsupportedMediaType, "Unsupported file type", dto.ErrUnsupportedFile)
		return
	}

	log.Printf("Scanning invoice %s (%s, %d bytes)", req.File.Filename, mimeType, len(fileData))

	response, err := h.invoiceService.ScanDocument(c.Request.Context(), fileData, mimeType, c.PostForm("password"), header)
	if err != nil {
		h.sendError(c, statusFor(err), "Failed to scan invoice", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// GetVerification handles the GET /invoices/:document_id endpoint
func (h *InvoiceHandler) GetVerification(c *gin.Context) {
	documentID := c.Param("document_id")

	response, err := h.invoiceService.GetVerification(c.Request.Context(), documentID)
	if err != nil {
		h.sendError(c, statusFor(err), "Failed to load verification", err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// detectType sniffs the content and falls back to the declared type for
// formats the sniffer does not know.
func detectType(data []byte, declared string) (string, bool) {
	sniffed := http.DetectContentType(data)
	for _, candidate := range []string{sniffed, declared} {
		candidate = strings.ToLower(strings.TrimSpace(strings.Split(candidate, ";")[0]))
		for _, t := range supportedTypes {
			if candidate == t {
				return t, true
			}
		}
	}
	return "", false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dto.ErrNoInput), errors.Is(err, dto.ErrBatchTooLarge), errors.Is(err, dto.ErrBadPageWidth):
		return http.StatusBadRequest
	case errors.Is(err, dto.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, dto.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, dto.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// sendError sends a structured error response
func (h *InvoiceHandler) sendError(c *gin.Context, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = err.Error()
		log.Printf("Error: %s - %v", message, err)
	}

	c.JSON(statusCode, dto.ErrorResponse{
		Error:   "VERIFICATION_FAILED",
		Message: errorMsg,
		Code:    statusCode,
	})
}
