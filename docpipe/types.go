package docpipe

import "strings"

// Format is the lowercase type tag used to select an extractor.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDoc  Format = "doc"
	FormatDocx Format = "docx"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatJPEG Format = "jpeg"
	FormatJPG  Format = "jpg"
	FormatPNG  Format = "png"
	FormatTXT  Format = "txt"
)

var allowedFormats = map[Format]bool{
	FormatPDF:  true,
	FormatDoc:  true,
	FormatDocx: true,
	FormatXLSX: true,
	FormatCSV:  true,
	FormatJPEG: true,
	FormatJPG:  true,
	FormatPNG:  true,
	FormatTXT:  true,
}

// IsImage reports whether the format is routed to OCR.
func (f Format) IsImage() bool {
	return f == FormatJPEG || f == FormatJPG || f == FormatPNG
}

// FormatOf returns the type tag of a filename: the lowercased suffix after
// the last dot. ok is false when the name has no dot or the suffix is not
// one of the supported formats.
func FormatOf(filename string) (Format, bool) {
	idx := strings.LastIndexByte(filename, '.')
	if idx < 0 {
		return "", false
	}
	f := Format(strings.ToLower(filename[idx+1:]))
	return f, allowedFormats[f]
}

// Allowed reports whether filename carries a supported extension.
func Allowed(filename string) bool {
	_, ok := FormatOf(filename)
	return ok
}

// SupportedFormats returns all supported type tags.
func SupportedFormats() []string {
	return []string{"pdf", "doc", "docx", "xlsx", "csv", "jpeg", "jpg", "png", "txt"}
}

// Result is the outcome of a successful extraction.
type Result struct {
	Format  Format             `json:"format"`
	Text    string             `json:"text"`
	Charset string             `json:"charset,omitempty"` // csv, txt
	Pages   int                `json:"pages,omitempty"`   // pdf
	Quality *ExtractionQuality `json:"quality,omitempty"` // pdf, best effort
}
