package docpipe

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

const byteOrderMark = "\ufeff"

// decodeText guesses the charset of data and returns the decoded text with
// any byte order mark removed, plus the charset name it used.
func decodeText(data []byte) (string, string, error) {
	name := detectCharset(data)
	text, err := decodeAs(data, name)
	if err != nil {
		return "", "", err
	}
	return text, name, nil
}

const (
	// fallbackCharset is assumed for non-UTF-8 bytes the detector cannot
	// place with confidence. It maps every byte, so decoding never fails.
	fallbackCharset = "windows-1252"

	// minDetectHighBytes is the number of non-ASCII bytes below which
	// statistical detection is not attempted.
	minDetectHighBytes = 16

	// minDetectConfidence is the lowest chardet confidence (0-100) accepted.
	minDetectConfidence = 50
)

// detectCharset trusts byte order marks and valid UTF-8 before falling back
// to statistical detection. Bytes that failed UTF-8 validation are never
// reported as UTF-8 or ASCII.
func detectCharset(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE, 0x00, 0x00}):
		return "UTF-32LE"
	case bytes.HasPrefix(data, []byte{0x00, 0x00, 0xFE, 0xFF}):
		return "UTF-32BE"
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return "UTF-16LE"
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return "UTF-16BE"
	case utf8.Valid(data):
		return "UTF-8"
	}

	if highBytes(data) < minDetectHighBytes {
		return fallbackCharset
	}
	results, err := chardet.NewTextDetector().DetectAll(data)
	if err != nil {
		return fallbackCharset
	}
	return pickCharset(data, results)
}

// pickCharset returns the first detector result that is confident, has a
// decoder, and decodes data to clean text. Results are in the detector's
// order.
func pickCharset(data []byte, results []chardet.Result) string {
	for _, r := range results {
		if r.Confidence < minDetectConfidence {
			continue
		}
		switch strings.ToUpper(r.Charset) {
		case "", "UTF-8", "UTF8", "ASCII", "US-ASCII":
			continue
		}
		text, err := decodeAs(data, r.Charset)
		if err != nil || !cleanText(text) {
			continue
		}
		return r.Charset
	}
	return fallbackCharset
}

func highBytes(data []byte) int {
	n := 0
	for _, b := range data {
		if b >= utf8.RuneSelf {
			n++
		}
	}
	return n
}

// cleanText reports whether s has no replacement characters and no control
// characters other than common whitespace.
func cleanText(s string) bool {
	for _, r := range s {
		switch {
		case r == utf8.RuneError:
			return false
		case r == '\t' || r == '\n' || r == '\r' || r == '\f':
		case r < 0x20, r >= 0x7F && r < 0xA0:
			return false
		}
	}
	return true
}

// decodeAs decodes data from the named charset and trims the result.
func decodeAs(data []byte, name string) (string, error) {
	enc, err := lookupEncoding(name)
	if err != nil {
		return "", err
	}
	var text string
	if enc == nil {
		text = string(data)
	} else {
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", name, err)
		}
		text = string(out)
	}
	text = strings.TrimPrefix(text, byteOrderMark)
	return strings.TrimSpace(text), nil
}

// lookupEncoding maps a detector charset name to a decoder. A nil encoding
// means the bytes are already UTF-8.
func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToUpper(name) {
	case "UTF-8", "UTF8", "ASCII", "US-ASCII":
		return nil, nil
	case "UTF-16LE":
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case "UTF-16BE":
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case "UTF-32LE":
		return utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM), nil
	case "UTF-32BE":
		return utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM), nil
	case "GB-18030":
		name = "gb18030"
	}
	enc, _ := charset.Lookup(name)
	if enc == nil {
		return nil, fmt.Errorf("unknown charset %q", name)
	}
	return enc, nil
}
