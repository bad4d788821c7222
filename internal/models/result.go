package models

import "strings"

// Block is one recognized text region as returned by the OCR backend.
// Box holds the four corner points of the bounding quad.
type Block struct {
	Text       string       `json:"text"`
	Box        [][2]float64 `json:"box"`
	Confidence float64      `json:"conf"`
	CenterY    float64      `json:"cy,omitempty"`
	Height     float64      `json:"h,omitempty"`
	XStart     float64      `json:"x_start,omitempty"`
}

// OcrResult is the terminal artifact of a job. The wire fields mirror
// the backend response; Recovered is set client-side when the primary
// text was substituted from streamed output rather than confirmed by a
// successful response.
type OcrResult struct {
	Success  bool    `json:"success"`
	RawText  string  `json:"raw_text"`
	Blocks   []Block `json:"blocks"`
	RowCount int     `json:"row_count,omitempty"`
	DBID     int64   `json:"db_id,omitempty"`
	Filename string  `json:"filename,omitempty"`

	Recovered bool `json:"recovered,omitempty"`
}

// HasText reports whether the primary text field carries anything
// beyond whitespace.
func (r *OcrResult) HasText() bool {
	return r != nil && strings.TrimSpace(r.RawText) != ""
}
