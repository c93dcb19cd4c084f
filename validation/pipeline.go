package validation

import (
	"fmt"
	"log"

	"github.com/Aashish23092/invoice-line-verification/config"
	"github.com/Aashish23092/invoice-line-verification/dto"
	"github.com/Aashish23092/invoice-line-verification/table"
	"github.com/Aashish23092/invoice-line-verification/utils"
	"github.com/shopspring/decimal"
)

// ProcessRegion reconstructs the line-item table of one invoice region and
// verifies it against the declared header fields. Missing header fields are
// filled from the region's own summary rows and then from the text of rows that
// did not become line items. It always returns a fully populated result.
func ProcessRegion(in table.RegionInput, header dto.HeaderFields, cfg config.PipelineConfig) (res ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ProcessRegion: recovered from panic: %v", r)
			res = unverified(cfg, fmt.Sprintf("processing aborted: %v", r))
		}
	}()

	ext := table.Extract(in, cfg)
	header = header.FillFrom(ext.Summary)
	if ext.SummaryText != "" {
		header = header.FillFrom(utils.ExtractHeaderFields(ext.SummaryText, cfg.SummaryPhrases))
	}
	if header.IsEmpty() {
		log.Printf("ProcessRegion: no declared totals available, nothing to verify against")
	}

	res = Validate(ext, header, cfg)
	log.Printf("ProcessRegion: method=%s items=%d score=%.2f badge=%s issues=%d",
		res.MethodUsed, len(res.LineItems), res.IntegrityScore, res.Badge.Status, len(res.Issues))
	return res
}

func unverified(cfg config.PipelineConfig, note string) ValidationResult {
	r := ValidationResult{
		Issues:              []string{},
		Corrections:         map[string]decimal.Decimal{},
		MethodUsed:          table.MethodNone,
		LineItems:           []table.LineItem{},
		Notes:               []string{note},
		escalationThreshold: cfg.EscalationScoreThreshold,
	}
	r.Badge = badgeFor(r)
	return r
}
