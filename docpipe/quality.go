package docpipe

import (
	"regexp"
	"strings"
	"unicode"
)

// ExtractionQuality describes how well a PDF text layer covers the document.
type ExtractionQuality struct {
	PageCount       int     `json:"page_count"`
	CharsPerPage    float64 `json:"chars_per_page"`
	PrintableRatio  float64 `json:"printable_ratio"`
	WordlikeRatio   float64 `json:"wordlike_ratio"`
	HasImageStreams bool    `json:"has_image_streams"`
	VisualRefCount  int     `json:"visual_ref_count"`
}

func newQuality(pageCount int, text string, hasImages bool) *ExtractionQuality {
	q := &ExtractionQuality{
		PageCount:       pageCount,
		PrintableRatio:  printableRatio(text),
		WordlikeRatio:   wordlikeRatio(text),
		HasImageStreams: hasImages,
		VisualRefCount:  countVisualRefs(text),
	}
	if pageCount > 0 {
		q.CharsPerPage = float64(len([]rune(text))) / float64(pageCount)
	}
	return q
}

// NeedsOCR is true for image-only scans and for text layers full of garbage.
func (q *ExtractionQuality) NeedsOCR() bool {
	return (q.CharsPerPage < 50 && q.HasImageStreams) || q.PrintableRatio < 0.85
}

// HasVisualGap is true when the text points at figures the text layer
// cannot carry.
func (q *ExtractionQuality) HasVisualGap() bool {
	return q.VisualRefCount > 0 && q.HasImageStreams
}

// printableRatio ignores private-use runes, U+FFFD and control characters
// other than \n \r \t.
func printableRatio(text string) float64 {
	total, printable := 0, 0
	for _, r := range text {
		total++
		if garbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func garbageRune(r rune) bool {
	switch {
	case r >= 0xE000 && r <= 0xF8FF:
		return true
	case r == unicode.ReplacementChar:
		return true
	case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
		return true
	}
	return false
}

// wordlikeRatio is the share of whitespace-separated tokens between 2 and 15
// runes long.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	n := 0
	for _, f := range fields {
		if l := len([]rune(f)); l >= 2 && l <= 15 {
			n++
		}
	}
	return float64(n) / float64(len(fields))
}

var visualRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(voir|cf\.?|see|refer\s+to)\s+(la\s+)?(figure|fig\.?|tableau|table|sch[eé]ma|schema|image|illustration|graphique|graph|diagramme|diagram)\s*\d`),
	regexp.MustCompile(`(?i)(figure|fig\.?|tableau|table)\s+\d+`),
}

func countVisualRefs(text string) int {
	n := 0
	for _, pat := range visualRefPatterns {
		n += len(pat.FindAllStringIndex(text, -1))
	}
	return n
}
