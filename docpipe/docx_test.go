package docpipe

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const docxHeader = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`

const docxFooter = `</w:body></w:document>`

// writeDocx packs body into a minimal .docx archive.
func writeDocx(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(docxHeader + body + docxFooter))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

func wp(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func TestExtractDocx_Paragraphs(t *testing.T) {
	// WHAT: two paragraphs and no tables give "p1\np2".
	path := writeDocx(t, "two.docx", wp("First paragraph")+wp("Second paragraph"))

	res, err := New(Config{}).Extract(context.Background(), path, FormatDocx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Text != "First paragraph\nSecond paragraph" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestExtractDocx_Runs(t *testing.T) {
	body := `<w:p><w:pPr><w:tabs><w:tab w:val="left" w:pos="720"/></w:tabs></w:pPr>` +
		`<w:r><w:t>Name</w:t></w:r><w:r><w:tab/><w:t>Value</w:t></w:r>` +
		`<w:r><w:br/><w:t>next</w:t></w:r>` +
		`<w:hyperlink><w:r><w:t xml:space="preserve"> link</w:t></w:r></w:hyperlink>` +
		`<w:r><w:instrText>HYPERLINK "x"</w:instrText></w:r></w:p>`
	path := writeDocx(t, "runs.docx", body)

	text, err := extractDocx(path)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Name\tValue\nnext link" {
		t.Errorf("text = %q", text)
	}
}

func TestExtractDocx_Tables(t *testing.T) {
	// WHAT: tables come after all paragraphs, cells followed by a space.
	table := `<w:tbl>` +
		`<w:tr><w:tc>` + wp("a") + `</w:tc><w:tc>` + wp("b") + `</w:tc></w:tr>` +
		`<w:tr><w:tc>` + wp("c") + wp("c2") + `</w:tc><w:tc>` + wp("d") + `</w:tc></w:tr>` +
		`</w:tbl>`
	body := wp("Intro") + table + wp("Outro")
	path := writeDocx(t, "table.docx", body)

	text, err := extractDocx(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Intro\nOutro\na b \nc\nc2 d"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestExtractDocx_DocTagRoutesToWord(t *testing.T) {
	path := writeDocx(t, "legacy.doc", wp("Zip based"))

	res, err := New(Config{}).ExtractFile(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != FormatDoc || res.Text != "Zip based" {
		t.Errorf("got %+v", res)
	}
}

func TestExtractDocx_NotAnArchive(t *testing.T) {
	// WHAT: legacy binary .doc files fail as parse failures.
	path := writeFile(t, "old.doc", []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1 binary word"))

	_, err := New(Config{}).ExtractFile(context.Background(), path)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestExtractDocx_MissingDocumentXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, _ := os.Create(path)
	w := zip.NewWriter(f)
	fw, _ := w.Create("word/styles.xml")
	fw.Write([]byte("<styles/>"))
	w.Close()
	f.Close()

	_, err := extractDocx(path)
	if err == nil || !strings.Contains(err.Error(), "word/document.xml not found") {
		t.Fatalf("expected missing document.xml error, got %v", err)
	}
}

func TestExtractDocx_XMLBomb(t *testing.T) {
	// WHAT: deeply nested XML is rejected.
	// WHY: unbounded nesting would grow the element stack without limit.
	var b strings.Builder
	for i := 0; i < 300; i++ {
		b.WriteString("<w:p>")
	}
	b.WriteString("<w:r><w:t>deep</w:t></w:r>")
	for i := 0; i < 300; i++ {
		b.WriteString("</w:p>")
	}
	path := writeDocx(t, "bomb.docx", b.String())

	_, err := extractDocx(path)
	if err == nil {
		t.Fatal("expected error for deeply nested XML")
	}
	if !strings.Contains(err.Error(), "nesting depth") {
		t.Errorf("expected 'nesting depth' error, got: %v", err)
	}
}
