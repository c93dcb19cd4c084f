package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/shopspring/decimal"
)

// Score weights. A fully consistent, complete region read at confidence c
// scores 0.7 + 0.3c.
const (
	weightConfidence   = 0.3
	weightChecks       = 0.4
	weightCompleteness = 0.2
	bonusConsistent    = 0.1
	// without a single comparison the score stays below every accepting tier
	weightUnchecked       = 0.1
	penaltyIssue          = 0.1
	penaltyCritical       = 0.3
	penaltyCorrection     = 0.1
	mathVerifiedFloor     = 0.9
	missingTotalsCeiling  = 0.3
	completenessThreshold = 0.8
)

type BadgeStatus string

const (
	BadgeVerified    BadgeStatus = "verified"
	BadgeGood        BadgeStatus = "good"
	BadgeNeedsReview BadgeStatus = "needs_review"
	BadgeCritical    BadgeStatus = "critical"
	BadgeUnverified  BadgeStatus = "unverified"
)

type Badge struct {
	Status  BadgeStatus
	Label   string
	Color   string
	Tooltip string
}

// ValidationResult is the verdict for one document. It is never partially
// filled: Badge is always set and the maps and slices are non-nil.
type ValidationResult struct {
	IsConsistent   bool
	IntegrityScore float64
	Issues         []string
	Corrections    map[string]decimal.Decimal
	Badge          Badge

	MethodUsed    table.Method
	LineItems     []table.LineItem
	ItemsSubtotal decimal.Decimal
	Header        dto.HeaderFields
	// Audit lists every proposed correction with its old and new value.
	Audit              []Correction
	CorrectionsApplied bool
	Details            Details
	Attempts           []table.Attempt
	Notes              []string
	// InferredTaxRate is the common VAT rate matching declared tax over
	// declared subtotal when no rate was given. It does not affect the score.
	InferredTaxRate decimal.NullDecimal

	escalationThreshold float64
}

// ShouldEscalate reports whether the document needs a human or a secondary
// verifier: a score under the threshold, a critical issue, or more than 30% of
// items without a recoverable total.
func (r ValidationResult) ShouldEscalate() bool {
	return shouldEscalate(r.IntegrityScore, r.Issues, r.Details, r.escalationThreshold)
}

func shouldEscalate(score float64, issues []string, d Details, threshold float64) bool {
	if score < threshold {
		return true
	}
	for _, issue := range issues {
		if strings.HasPrefix(issue, CriticalPrefix) {
			return true
		}
	}
	n := d.ItemsWithTotals + d.ItemsMissingTotals
	return n > 0 && float64(d.ItemsMissingTotals)/float64(n) > missingTotalsCeiling
}

func score(c *check, confidence float64, appliedCorrections int) float64 {
	d := c.details
	completeness := 0.0
	if n := d.ItemsWithTotals + d.ItemsMissingTotals; n > 0 {
		completeness = float64(d.ItemsWithTotals) / float64(n)
	}

	if d.ChecksRun == 0 {
		return clamp(weightConfidence*confidence + weightUnchecked*completeness)
	}

	s := weightConfidence*confidence +
		weightChecks*float64(d.ChecksPassed)/float64(d.ChecksRun)
	if completeness >= completenessThreshold {
		s += weightCompleteness
	}
	if c.mismatches == 0 {
		s += bonusConsistent
	}
	critical := d.CriticalIssues
	s -= penaltyCritical * float64(critical)
	s -= penaltyIssue * float64(len(c.issues)-critical)
	s -= penaltyCorrection * float64(appliedCorrections)
	return clamp(s)
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func badgeFor(r ValidationResult) Badge {
	switch {
	case r.Details.ChecksRun == 0:
		return Badge{
			Status:  BadgeUnverified,
			Label:   "Unverified",
			Color:   "gray",
			Tooltip: "Insufficient data for validation",
		}
	case r.Details.CriticalIssues > 0:
		return Badge{
			Status:  BadgeCritical,
			Label:   "Needs Review",
			Color:   "yellow",
			Tooltip: "Critical OCR error detected. Review and correct before submitting.",
		}
	case r.ShouldEscalate():
		return needsReview(r)
	case r.IsConsistent && r.IntegrityScore >= mathVerifiedFloor:
		return Badge{
			Status:  BadgeVerified,
			Label:   "Math-verified",
			Color:   "green",
			Tooltip: fmt.Sprintf("Totals are internally consistent (score: %.2f)", r.IntegrityScore),
		}
	case r.IntegrityScore >= r.escalationThreshold:
		tooltip := fmt.Sprintf("Totals match within tolerance (score: %.2f)", r.IntegrityScore)
		if r.CorrectionsApplied {
			tooltip = fmt.Sprintf("%d correction(s) applied automatically (score: %.2f)", len(r.Corrections), r.IntegrityScore)
		}
		return Badge{Status: BadgeGood, Label: "Verified", Color: "blue", Tooltip: tooltip}
	default:
		return needsReview(r)
	}
}

func needsReview(r ValidationResult) Badge {
	return Badge{
		Status:  BadgeNeedsReview,
		Label:   "Needs Review",
		Color:   "yellow",
		Tooltip: fmt.Sprintf("%d issue(s) found. Review recommended.", len(r.Issues)),
	}
}

// Validate checks the extracted items against the header fields, decides
// whether proposed corrections may be applied and scores the result.
// Corrections are applied only when the re-validated document, penalised per
// applied correction, still scores at least cfg.AutoCorrectionScoreFloor.
// Applying them never lowers the score.
func Validate(ext table.ExtractionResult, header dto.HeaderFields, cfg config.PipelineConfig) ValidationResult {
	c := runChecks(ext.LineItems, header, ext.RawText, cfg)

	res := ValidationResult{
		IsConsistent:        c.details.ChecksRun > 0 && c.mismatches == 0,
		IntegrityScore:      score(c, ext.Confidence, 0),
		Issues:              nonNil(c.issues),
		Corrections:         c.corrections,
		MethodUsed:          ext.Method,
		LineItems:           c.items,
		ItemsSubtotal:       c.itemsSubtotal,
		Header:              header,
		Audit:               c.audit,
		Details:             c.details,
		Attempts:            ext.Attempts,
		Notes:               nonNil(ext.Notes),
		InferredTaxRate:     c.inferredTaxRate,
		escalationThreshold: cfg.EscalationScoreThreshold,
	}
	res.Details.Confidence = ext.Confidence
	if c.inferredTaxRate.Valid {
		res.Notes = append(res.Notes, fmt.Sprintf("VAT rate inferred as %s%% from declared VAT and subtotal",
			c.inferredTaxRate.Decimal.Mul(decimal.NewFromInt(100)).String()))
	}

	if len(c.corrections) > 0 {
		after := runChecks(ext.LineItems, corrected(header, c.corrections), ext.RawText, cfg)
		post := score(after, ext.Confidence, len(c.corrections))
		if post >= cfg.AutoCorrectionScoreFloor {
			res.CorrectionsApplied = true
			res.IntegrityScore = math.Max(res.IntegrityScore, post)
			for i := range res.Audit {
				res.Audit[i].Applied = true
			}
			res.Notes = append(res.Notes, fmt.Sprintf("applied %d correction(s), post-correction score %.2f", len(c.corrections), post))
		} else {
			res.Notes = append(res.Notes, fmt.Sprintf("corrections offered but not applied, post-correction score %.2f below %.2f", post, cfg.AutoCorrectionScoreFloor))
		}
	}

	res.Badge = badgeFor(res)
	return res
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
