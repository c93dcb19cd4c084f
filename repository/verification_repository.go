package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/validation"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// VerificationRecord is one verified document.
type VerificationRecord struct {
	gorm.Model
	DocumentID         string `gorm:"uniqueIndex;size:64"`
	MethodUsed         string `gorm:"size:32"`
	IsConsistent       bool
	IntegrityScore     float64
	BadgeStatus        string `gorm:"size:32;index"`
	ShouldEscalate     bool   `gorm:"index"`
	LineItemCount      int
	ItemsSubtotal      decimal.Decimal     `gorm:"type:numeric(14,2)"`
	DeclaredTotal      decimal.NullDecimal `gorm:"type:numeric(14,2)"`
	Issues             string              `gorm:"type:text"`
	CorrectionsApplied bool
	Corrections        []CorrectionAudit `gorm:"foreignKey:VerificationID"`
}

// CorrectionAudit keeps the old and new value of every proposed correction.
type CorrectionAudit struct {
	gorm.Model
	VerificationID uint                `gorm:"index"`
	Field          string              `gorm:"size:32"`
	OldValue       decimal.NullDecimal `gorm:"type:numeric(14,4)"`
	NewValue       decimal.Decimal     `gorm:"type:numeric(14,4)"`
	Source         string              `gorm:"size:32"`
	Applied        bool
}

type VerificationRepository struct {
	db *gorm.DB
}

// Open connects to Postgres and migrates the verification tables.
func Open(dsn string) (*VerificationRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&VerificationRecord{}, &CorrectionAudit{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Println("Verification store connected")
	return NewVerificationRepository(db), nil
}

func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Save stores the result together with its correction audit trail.
func (r *VerificationRepository) Save(ctx context.Context, documentID string, res validation.ValidationResult) error {
	rec := recordFromResult(documentID, res)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to save verification %s: %w", documentID, err)
	}
	return nil
}

// FindByDocumentID loads a stored verification with its corrections.
func (r *VerificationRepository) FindByDocumentID(ctx context.Context, documentID string) (*dto.StoredVerification, error) {
	var rec VerificationRecord
	err := r.db.WithContext(ctx).Preload("Corrections").Where("document_id = ?", documentID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", dto.ErrNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load verification %s: %w", documentID, err)
	}
	stored := rec.toStored()
	return &stored, nil
}

func (rec VerificationRecord) toStored() dto.StoredVerification {
	issues := []string{}
	if rec.Issues != "" {
		issues = strings.Split(rec.Issues, "\n")
	}
	audit := make([]dto.CorrectionResponse, len(rec.Corrections))
	for i, c := range rec.Corrections {
		audit[i] = dto.CorrectionResponse{
			Field:    c.Field,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
			Source:   c.Source,
			Applied:  c.Applied,
		}
	}
	return dto.StoredVerification{
		DocumentID:         rec.DocumentID,
		MethodUsed:         rec.MethodUsed,
		IsConsistent:       rec.IsConsistent,
		IntegrityScore:     rec.IntegrityScore,
		BadgeStatus:        rec.BadgeStatus,
		ShouldEscalate:     rec.ShouldEscalate,
		LineItemCount:      rec.LineItemCount,
		ItemsSubtotal:      rec.ItemsSubtotal,
		DeclaredTotal:      rec.DeclaredTotal,
		Issues:             issues,
		CorrectionsApplied: rec.CorrectionsApplied,
		Audit:              audit,
		VerifiedAt:         rec.CreatedAt.Format(time.RFC3339),
	}
}

func recordFromResult(documentID string, res validation.ValidationResult) VerificationRecord {
	rec := VerificationRecord{
		DocumentID:         documentID,
		MethodUsed:         string(res.MethodUsed),
		IsConsistent:       res.IsConsistent,
		IntegrityScore:     res.IntegrityScore,
		BadgeStatus:        string(res.Badge.Status),
		ShouldEscalate:     res.ShouldEscalate(),
		LineItemCount:      len(res.LineItems),
		ItemsSubtotal:      res.ItemsSubtotal,
		DeclaredTotal:      res.Header.Total,
		Issues:             strings.Join(res.Issues, "\n"),
		CorrectionsApplied: res.CorrectionsApplied,
	}
	for _, c := range res.Audit {
		rec.Corrections = append(rec.Corrections, CorrectionAudit{
			Field:    c.Field,
			OldValue: c.Old,
			NewValue: c.New,
			Source:   c.Source,
			Applied:  c.Applied,
		})
	}
	return rec
}
