package service

import (
	"time"

	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/validation"
)

func toResponse(docID string, res validation.ValidationResult, qr *dto.PaymentQR) dto.VerificationResponse {
	items := make([]dto.LineItemResponse, len(res.LineItems))
	for i, it := range res.LineItems {
		items[i] = dto.LineItemResponse{
			Description:      it.Description,
			Quantity:         it.Quantity,
			UnitPrice:        it.UnitPrice,
			LineTotal:        it.LineTotal,
			SourceConfidence: it.SourceConfidence,
			Derived:          it.Derived,
		}
	}

	audit := make([]dto.CorrectionResponse, len(res.Audit))
	for i, c := range res.Audit {
		audit[i] = dto.CorrectionResponse{
			Field:    c.Field,
			OldValue: c.Old,
			NewValue: c.New,
			Source:   c.Source,
			Applied:  c.Applied,
		}
	}

	attempts := make([]dto.AttemptResponse, len(res.Attempts))
	for i, a := range res.Attempts {
		attempts[i] = dto.AttemptResponse{Method: string(a.Method), Reason: a.Reason}
	}

	return dto.VerificationResponse{
		DocumentID:     docID,
		MethodUsed:     string(res.MethodUsed),
		IsConsistent:   res.IsConsistent,
		IntegrityScore: res.IntegrityScore,
		ShouldEscalate: res.ShouldEscalate(),
		Badge: dto.BadgeResponse{
			Status:  string(res.Badge.Status),
			Label:   res.Badge.Label,
			Color:   res.Badge.Color,
			Tooltip: res.Badge.Tooltip,
		},
		Issues:             res.Issues,
		Corrections:        res.Corrections,
		CorrectionsApplied: res.CorrectionsApplied,
		Audit:              audit,
		LineItems:          items,
		ItemsSubtotal:      res.ItemsSubtotal,
		Header:             res.Header,
		InferredTaxRate:    res.InferredTaxRate,
		Attempts:           attempts,
		Notes:              res.Notes,
		PaymentQR:          qr,
		ProcessedAt:        time.Now().Format(time.RFC3339),
	}
}
