package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort        string
	TesseractDataPath string
	MaxFileSize       int64
	OCREngine         string
	AzureEndpoint     string
	AzureKey          string
	PaddleAPIURL      string
	DatabaseURL       string
	Debug             bool
	Pipeline          PipelineConfig
}

// PipelineConfig carries every tunable of the region pipeline. It is passed by
// value into each run so that concurrent documents never share state.
type PipelineConfig struct {
	// Fraction of the page width that separates two numeric columns.
	ColumnGapThresholdRatio float64
	// Lower bound for the column gap in pixels.
	ColumnGapMinPx float64
	// Vertical tolerance between token y-centers of one row.
	RowYTolerancePx float64
	// Minimum numeric tokens before spatial clustering is attempted.
	MinNumericTokensForClustering int
	AutoCorrectionScoreFloor      float64
	AmountToleranceAbs            float64
	AmountToleranceRel            float64
	EscalationScoreThreshold      float64
	MinDescriptionLength          int
	// Exact phrases that mark table header rows. Matching is case-insensitive
	// and never applied to description text of body rows.
	HeaderPhrases []string
	// Exact phrases that mark summary rows (subtotal, VAT, total).
	SummaryPhrases []string
	// Reconstruction methods that must not run, by method name.
	DisabledTiers []string
}

func DefaultHeaderPhrases() []string {
	return []string{
		"item", "items", "description", "product", "details", "code", "sku",
		"qty", "quantity", "unit", "units", "price", "unit price", "rate",
		"amount", "total", "line total", "net", "vat", "each", "cost",
	}
}

func DefaultSummaryPhrases() []string {
	return []string{
		"subtotal", "sub total", "sub-total", "net total", "total net", "goods total",
		"vat", "tax", "vat total", "total vat", "vat amount", "tax amount",
		"total", "grand total", "invoice total", "total due", "amount due", "balance due", "total gbp",
	}
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ColumnGapThresholdRatio:       0.02,
		ColumnGapMinPx:                30,
		RowYTolerancePx:               15,
		MinNumericTokensForClustering: 3,
		AutoCorrectionScoreFloor:      0.8,
		AmountToleranceAbs:            0.01,
		AmountToleranceRel:            0.005,
		EscalationScoreThreshold:      0.75,
		MinDescriptionLength:          3,
		HeaderPhrases:                 DefaultHeaderPhrases(),
		SummaryPhrases:                DefaultSummaryPhrases(),
	}
}

// Validate reports the first out-of-range option.
func (p PipelineConfig) Validate() error {
	switch {
	case p.ColumnGapThresholdRatio <= 0 || p.ColumnGapThresholdRatio >= 1:
		return fmt.Errorf("column_gap_threshold_ratio must be in (0,1), got %v", p.ColumnGapThresholdRatio)
	case p.ColumnGapMinPx < 0:
		return fmt.Errorf("column_gap_min_px must be >= 0, got %v", p.ColumnGapMinPx)
	case p.RowYTolerancePx <= 0:
		return fmt.Errorf("row_y_tolerance_px must be > 0, got %v", p.RowYTolerancePx)
	case p.MinNumericTokensForClustering < 1:
		return fmt.Errorf("min_numeric_tokens_for_clustering must be >= 1, got %d", p.MinNumericTokensForClustering)
	case p.AutoCorrectionScoreFloor < 0 || p.AutoCorrectionScoreFloor > 1:
		return fmt.Errorf("auto_correction_score_floor must be in [0,1], got %v", p.AutoCorrectionScoreFloor)
	case p.AmountToleranceAbs < 0 || p.AmountToleranceRel < 0:
		return fmt.Errorf("amount tolerances must be >= 0")
	case p.EscalationScoreThreshold < 0 || p.EscalationScoreThreshold > 1:
		return fmt.Errorf("escalation_score_threshold must be in [0,1], got %v", p.EscalationScoreThreshold)
	case p.MinDescriptionLength < 0:
		return fmt.Errorf("min_description_length must be >= 0, got %d", p.MinDescriptionLength)
	}
	return nil
}

// TierEnabled reports whether the named reconstruction method may run.
func (p PipelineConfig) TierEnabled(method string) bool {
	for _, m := range p.DisabledTiers {
		if strings.EqualFold(strings.TrimSpace(m), method) {
			return false
		}
	}
	return true
}

func LoadConfig() *Config {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	tesseractDataPath := os.Getenv("TESSDATA_PREFIX")
	if tesseractDataPath == "" {
		tesseractDataPath = "/usr/share/tesseract-ocr/5/tessdata/"
	}

	engine := strings.ToLower(os.Getenv("OCR_ENGINE"))
	if engine == "" {
		engine = "tesseract"
	}

	paddleURL := os.Getenv("PADDLEOCR_API_URL")
	if paddleURL == "" {
		paddleURL = "http://paddleocr:8866/predict/ocr_system"
	}

	pipeline := DefaultPipelineConfig()
	pipeline.ColumnGapThresholdRatio = envFloat("COLUMN_GAP_THRESHOLD_RATIO", pipeline.ColumnGapThresholdRatio)
	pipeline.ColumnGapMinPx = envFloat("COLUMN_GAP_MIN_PX", pipeline.ColumnGapMinPx)
	pipeline.RowYTolerancePx = envFloat("ROW_Y_TOLERANCE_PX", pipeline.RowYTolerancePx)
	pipeline.MinNumericTokensForClustering = envInt("MIN_NUMERIC_TOKENS_FOR_CLUSTERING", pipeline.MinNumericTokensForClustering)
	pipeline.AutoCorrectionScoreFloor = envFloat("AUTO_CORRECTION_SCORE_FLOOR", pipeline.AutoCorrectionScoreFloor)
	pipeline.AmountToleranceAbs = envFloat("AMOUNT_TOLERANCE_ABS", pipeline.AmountToleranceAbs)
	pipeline.AmountToleranceRel = envFloat("AMOUNT_TOLERANCE_REL", pipeline.AmountToleranceRel)
	pipeline.EscalationScoreThreshold = envFloat("ESCALATION_SCORE_THRESHOLD", pipeline.EscalationScoreThreshold)
	pipeline.MinDescriptionLength = envInt("MIN_DESCRIPTION_LENGTH", pipeline.MinDescriptionLength)
	if phrases := envList("HEADER_PHRASES"); len(phrases) > 0 {
		pipeline.HeaderPhrases = phrases
	}
	if phrases := envList("SUMMARY_PHRASES"); len(phrases) > 0 {
		pipeline.SummaryPhrases = phrases
	}
	pipeline.DisabledTiers = envList("DISABLED_TIERS")

	if err := pipeline.Validate(); err != nil {
		log.Printf("Invalid pipeline configuration (%v), using defaults", err)
		pipeline = DefaultPipelineConfig()
	}

	return &Config{
		ServerPort:        serverPort,
		TesseractDataPath: tesseractDataPath,
		MaxFileSize:       int64(envInt("MAX_FILE_SIZE_MB", 10)) * 1024 * 1024,
		OCREngine:         engine,
		AzureEndpoint:     os.Getenv("AZURE_CV_ENDPOINT"),
		AzureKey:          os.Getenv("AZURE_CV_KEY"),
		PaddleAPIURL:      paddleURL,
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Debug:             envBool("DEBUG", false),
		Pipeline:          pipeline,
	}
}

func envFloat(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v", key, raw, err)
		return def
	}
	return v
}

func envInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("Ignoring %s=%q: %v", key, raw, err)
		return def
	}
	return v
}

func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
