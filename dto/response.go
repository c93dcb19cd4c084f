package dto

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Custom errors
var (
	ErrNoInput          = errors.New("request carries no regions")
	ErrBatchTooLarge    = errors.New("too many regions in one batch")
	ErrBadPageWidth     = errors.New("page_width must not be negative")
	ErrUnsupportedFile  = errors.New("unsupported file type, expected PDF, PNG, JPEG, TIFF, BMP or WEBP")
	ErrFileTooLarge     = errors.New("file exceeds the maximum upload size")
	ErrNotFound         = errors.New("verification not found")
	ErrStoreUnavailable = errors.New("verification store is not configured")
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type LineItemResponse struct {
	Description      string              `json:"description"`
	Quantity         decimal.NullDecimal `json:"quantity"`
	UnitPrice        decimal.NullDecimal `json:"unit_price"`
	LineTotal        decimal.NullDecimal `json:"line_total"`
	SourceConfidence float64             `json:"source_confidence"`
	Derived          []string            `json:"derived,omitempty"`
}

// BadgeResponse is the verdict shown next to a verified invoice.
type BadgeResponse struct {
	Status  string `json:"status"`
	Label   string `json:"label"`
	Color   string `json:"color"`
	Tooltip string `json:"tooltip"`
}

// CorrectionResponse is the audit entry of one proposed correction.
type CorrectionResponse struct {
	Field    string              `json:"field"`
	OldValue decimal.NullDecimal `json:"old_value"`
	NewValue decimal.Decimal     `json:"new_value"`
	Source   string              `json:"source"`
	Applied  bool                `json:"applied"`
}

type AttemptResponse struct {
	Method string `json:"method"`
	Reason string `json:"reason,omitempty"`
}

// VerificationResponse is the final response structure
type VerificationResponse struct {
	DocumentID         string                     `json:"document_id"`
	MethodUsed         string                     `json:"method_used"`
	IsConsistent       bool                       `json:"is_consistent"`
	IntegrityScore     float64                    `json:"integrity_score"`
	ShouldEscalate     bool                       `json:"should_escalate"`
	Badge              BadgeResponse              `json:"badge"`
	Issues             []string                   `json:"issues"`
	Corrections        map[string]decimal.Decimal `json:"corrections"`
	CorrectionsApplied bool                       `json:"corrections_applied"`
	Audit              []CorrectionResponse       `json:"audit"`
	LineItems          []LineItemResponse         `json:"line_items"`
	ItemsSubtotal      decimal.Decimal            `json:"items_subtotal"`
	Header             HeaderFields               `json:"header"`
	InferredTaxRate    decimal.NullDecimal        `json:"inferred_tax_rate"`
	Attempts           []AttemptResponse          `json:"attempts"`
	Notes              []string                   `json:"notes"`
	PaymentQR          *PaymentQR                 `json:"payment_qr,omitempty"`
	ProcessedAt        string                     `json:"processed_at"`
}

// StoredVerification is a verified document as kept in the store.
type StoredVerification struct {
	DocumentID         string               `json:"document_id"`
	MethodUsed         string               `json:"method_used"`
	IsConsistent       bool                 `json:"is_consistent"`
	IntegrityScore     float64              `json:"integrity_score"`
	BadgeStatus        string               `json:"badge_status"`
	ShouldEscalate     bool                 `json:"should_escalate"`
	LineItemCount      int                  `json:"line_item_count"`
	ItemsSubtotal      decimal.Decimal      `json:"items_subtotal"`
	DeclaredTotal      decimal.NullDecimal  `json:"declared_total"`
	Issues             []string             `json:"issues"`
	CorrectionsApplied bool                 `json:"corrections_applied"`
	Audit              []CorrectionResponse `json:"audit"`
	VerifiedAt         string               `json:"verified_at"`
}

type BatchVerificationResponse struct {
	Results     []VerificationResponse `json:"results"`
	Escalations int                    `json:"escalations"`
	ProcessedAt string                 `json:"processed_at"`
}
