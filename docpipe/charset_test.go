package docpipe

import (
	"context"
	"testing"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

func TestDetectCharset(t *testing.T) {
	tests := []struct {
		data []byte
		want string
	}{
		{[]byte{0xFF, 0xFE, 0x00, 0x00, 'a', 0, 0, 0}, "UTF-32LE"},
		{[]byte{0x00, 0x00, 0xFE, 0xFF, 0, 0, 0, 'a'}, "UTF-32BE"},
		{[]byte{0xFF, 0xFE, 'a', 0}, "UTF-16LE"},
		{[]byte{0xFE, 0xFF, 0, 'a'}, "UTF-16BE"},
		{[]byte("plain ascii"), "UTF-8"},
		{[]byte("\xef\xbb\xbfwith bom"), "UTF-8"},
		{[]byte("caf\xe9"), "windows-1252"},
		{[]byte("Gr\xf6\xdfe"), "windows-1252"},
		{[]byte("a,b\nc,d\n\xe9,\xfc"), "windows-1252"},
	}
	for _, tt := range tests {
		if got := detectCharset(tt.data); got != tt.want {
			t.Errorf("detectCharset(%x) = %q, want %q", tt.data, got, tt.want)
		}
	}
}

func TestDecodeAs(t *testing.T) {
	tests := []struct {
		name    string
		charset string
		data    []byte
		want    string
	}{
		{"latin1", "ISO-8859-1", []byte("caf\xe9 cr\xe8me"), "café crème"},
		{"windows-1252", "windows-1252", []byte("\x93quoted\x94"), "“quoted”"},
		{"utf-8 bom", "UTF-8", []byte("\xef\xbb\xbf  hello "), "hello"},
		{"utf-32le", "UTF-32LE", []byte{0xFF, 0xFE, 0, 0, 'h', 0, 0, 0, 'i', 0, 0, 0}, "hi"},
		{"koi8-r", "KOI8-R", []byte{0xF0, 0xD2, 0xC9, 0xD7, 0xC5, 0xD4}, "Привет"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeAs(tt.data, tt.charset)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("decodeAs = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeAs_GB18030(t *testing.T) {
	data, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte("中文文本"))
	if err != nil {
		t.Fatal(err)
	}
	// chardet reports GB18030 as "GB-18030", which the WHATWG table lacks.
	got, err := decodeAs(data, "GB-18030")
	if err != nil {
		t.Fatal(err)
	}
	if got != "中文文本" {
		t.Errorf("decodeAs = %q", got)
	}
}

func TestPickCharset(t *testing.T) {
	latin := []byte("caf\xe9 cr\xe8me")
	gb, err := simplifiedchinese.GB18030.NewEncoder().Bytes([]byte("中文文本"))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		data    []byte
		results []chardet.Result
		want    string
	}{
		{"skips charsets without decoder", latin, []chardet.Result{
			{Charset: "IBM420_ltr", Confidence: 95},
			{Charset: "IBM424_rtl", Confidence: 90},
			{Charset: "ISO-8859-1", Confidence: 60},
		}, "ISO-8859-1"},
		{"never utf-8 for invalid bytes", latin, []chardet.Result{
			{Charset: "UTF-8", Confidence: 100},
			{Charset: "ASCII", Confidence: 90},
		}, "windows-1252"},
		{"low confidence", latin, []chardet.Result{
			{Charset: "KOI8-R", Confidence: 20},
		}, "windows-1252"},
		{"gb18030", gb, []chardet.Result{
			{Charset: "GB-18030", Confidence: 100},
		}, "GB-18030"},
		{"no results", latin, nil, "windows-1252"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pickCharset(tt.data, tt.results); got != tt.want {
				t.Errorf("pickCharset = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanText(t *testing.T) {
	if !cleanText("tab\there\r\nnew line") {
		t.Error("whitespace controls should be allowed")
	}
	if cleanText("bad \ufffd rune") {
		t.Error("replacement character should be rejected")
	}
	if cleanText("c1 \u0093 control") {
		t.Error("C1 control should be rejected")
	}
}

func TestDecodeAs_UnknownCharset(t *testing.T) {
	if _, err := decodeAs([]byte("x"), "IBM420_ltr"); err == nil {
		t.Fatal("expected error for unknown charset")
	}
}

func TestExtractText_NonUTF8(t *testing.T) {
	// WHAT: a file saved as UTF-16 decodes back to the original content.
	original := "Grüße aus Köln\nZweite Zeile"
	data, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(original))
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, "greeting.txt", data)

	res, err := New(Config{}).Extract(context.Background(), path, FormatTXT)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != original {
		t.Errorf("Text = %q, want %q", res.Text, original)
	}
}

func TestExtractText_Latin1(t *testing.T) {
	original := "Le cœur a ses raisons que la raison ne connaît point. " +
		"Nous connaissons la vérité, non seulement par la raison, mais encore par le cœur. " +
		"C'est de cette dernière sorte que nous connaissons les premiers principes."
	data, err := charmap.Windows1252.NewEncoder().Bytes([]byte(original))
	if err != nil {
		t.Fatal(err)
	}
	path := writeFile(t, "pensees.txt", data)

	text, charset, err := extractText(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != original {
		t.Errorf("text = %q (charset %s), want %q", text, charset, original)
	}
}

func TestExtractText_ShortWindows1252(t *testing.T) {
	// WHAT: a few accented letters are too little for statistical detection
	// and must not come back as a CJK or Cyrillic charset.
	for _, original := range []string{"café", "Größe", "naïve façade"} {
		data, err := charmap.Windows1252.NewEncoder().Bytes([]byte(original))
		if err != nil {
			t.Fatal(err)
		}
		path := writeFile(t, "short.txt", data)

		text, charset, err := extractText(path)
		if err != nil {
			t.Fatal(err)
		}
		if text != original || charset != "windows-1252" {
			t.Errorf("extractText = %q (%s), want %q (windows-1252)", text, charset, original)
		}
	}
}
