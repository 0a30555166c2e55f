package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

// maxXMLDepth bounds element nesting in document.xml.
const maxXMLDepth = 256

// Element paths, by local name, of the parts of document.xml we keep.
const (
	bodyParagraph = "document/body/p"
	bodyTable     = "document/body/tbl"
	tableRow      = bodyTable + "/tr"
	tableCell     = tableRow + "/tc"
	cellParagraph = tableCell + "/p"
)

// extractDocx reads word/document.xml from the archive. Body paragraphs come
// first, each followed by a newline, then every table row as its cell texts
// each followed by a space.
func extractDocx(path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return "", fmt.Errorf("not a word document archive: %w", err)
		}
		return "", openErr("open docx", err)
	}
	defer r.Close()

	var docFile *zip.File
	for _, f := range r.File {
		if f.Name == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", fmt.Errorf("word/document.xml not found in archive")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	doc, err := parseWordDocument(rc)
	if err != nil {
		return "", err
	}
	return doc.text(), nil
}

type wordDocument struct {
	paragraphs []string
	tables     [][][]string // table, row, cell
}

func (d *wordDocument) text() string {
	var sb strings.Builder
	for _, p := range d.paragraphs {
		sb.WriteString(p)
		sb.WriteByte('\n')
	}
	for _, table := range d.tables {
		for _, row := range table {
			for _, cell := range row {
				sb.WriteString(cell)
				sb.WriteByte(' ')
			}
			sb.WriteByte('\n')
		}
	}
	return strings.TrimSpace(sb.String())
}

// parseWordDocument walks document.xml tokens. Only paragraphs that are
// direct children of the body or of a top-level table cell are collected;
// paragraphs nested deeper (text boxes, nested tables) are dropped.
func parseWordDocument(r io.Reader) (*wordDocument, error) {
	dec := xml.NewDecoder(r)

	var (
		doc    wordDocument
		stack  []string
		open   []*strings.Builder
		inText bool
		table  [][]string
		row    []string
		cell   []string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}
			stack = append(stack, t.Name.Local)
			if len(stack) > maxXMLDepth {
				return nil, fmt.Errorf("document.xml nesting depth exceeds %d", maxXMLDepth)
			}

			switch path := strings.Join(stack, "/"); {
			case path == bodyTable:
				table = nil
			case path == tableRow:
				row = nil
			case path == tableCell:
				cell = nil
			}

			if t.Name.Space != wordNS {
				continue
			}
			switch t.Name.Local {
			case "p":
				open = append(open, &strings.Builder{})
			case "t":
				inText = parent == "r"
			case "tab":
				if parent == "r" && len(open) > 0 {
					open[len(open)-1].WriteByte('\t')
				}
			case "br", "cr":
				if parent == "r" && len(open) > 0 {
					open[len(open)-1].WriteByte('\n')
				}
			}

		case xml.CharData:
			if inText && len(open) > 0 {
				open[len(open)-1].Write(t)
			}

		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			path := strings.Join(stack, "/")
			stack = stack[:len(stack)-1]

			if t.Name.Space == wordNS {
				switch t.Name.Local {
				case "t":
					inText = false
				case "p":
					if len(open) == 0 {
						continue
					}
					text := open[len(open)-1].String()
					open = open[:len(open)-1]
					switch path {
					case bodyParagraph:
						doc.paragraphs = append(doc.paragraphs, text)
					case cellParagraph:
						cell = append(cell, text)
					}
				}
			}

			switch path {
			case tableCell:
				row = append(row, strings.Join(cell, "\n"))
			case tableRow:
				table = append(table, row)
			case bodyTable:
				doc.tables = append(doc.tables, table)
			}
		}
	}
	return &doc, nil
}
