package dto

import "mime/multipart"

// MaxBatchRegions bounds a single batch request.
const MaxBatchRegions = 50

// BBoxInput is a word's bounding box in page pixels.
type BBoxInput struct {
	XMin int `json:"x_min"`
	YMin int `json:"y_min"`
	XMax int `json:"x_max"`
	YMax int `json:"y_max"`
}

// TokenInput is one recognised word. A token without a bbox is treated as
// flat text.
type TokenInput struct {
	Text       string     `json:"text"`
	BBox       *BBoxInput `json:"bbox,omitempty"`
	Confidence float64    `json:"confidence"`
}

// RegionVerificationRequest carries one table region as produced by an
// upstream recognition engine.
type RegionVerificationRequest struct {
	DocumentID string       `json:"document_id"`
	Tokens     []TokenInput `json:"tokens"`
	RawText    string       `json:"raw_text"`
	PageWidth  int          `json:"page_width"`
	Header     HeaderFields `json:"header"`
}

// Validate performs basic validation on the request. A region without tokens
// or text is valid and verifies as unverified.
func (r *RegionVerificationRequest) Validate() error {
	if r.PageWidth < 0 {
		return ErrBadPageWidth
	}
	return nil
}

type BatchVerificationRequest struct {
	Regions []RegionVerificationRequest `json:"regions" binding:"required"`
}

func (r *BatchVerificationRequest) Validate() error {
	if len(r.Regions) == 0 {
		return ErrNoInput
	}
	if len(r.Regions) > MaxBatchRegions {
		return ErrBatchTooLarge
	}
	return nil
}

// ScanRequest is an uploaded invoice image or PDF.
type ScanRequest struct {
	File *multipart.FileHeader `form:"file" binding:"required"`
	// Header optionally carries declared header fields as JSON.
	Header string `form:"header"`
}
