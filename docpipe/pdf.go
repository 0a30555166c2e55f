package docpipe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// extractPDF concatenates the plain text of every page in order, each page
// followed by a newline, and trims the result. A page without text still
// contributes its newline.
func (p *Pipeline) extractPDF(path string) (*Result, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, openErr("open pdf", err)
	}
	defer f.Close()

	pages := r.NumPage()
	var sb strings.Builder
	for i := 1; i <= pages; i++ {
		text, err := pageText(r.Page(i))
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}

	res := &Result{
		Text:  strings.TrimSpace(sb.String()),
		Pages: pages,
	}

	if !p.cfg.SkipPDFQuality {
		q, err := scorePDF(path, res.Text)
		if err != nil {
			p.logger.Debug("pdf quality skipped", "path", path, "error", err)
		} else {
			res.Quality = q
			p.reportQuality(path, q)
		}
	}
	return res, nil
}

// reportQuality logs a text layer that OCR would likely improve.
func (p *Pipeline) reportQuality(path string, q *ExtractionQuality) {
	if !q.NeedsOCR() && !q.HasVisualGap() {
		return
	}
	p.logger.Info("pdf text layer looks incomplete",
		"path", path,
		"chars_per_page", q.CharsPerPage,
		"printable_ratio", q.PrintableRatio,
		"has_images", q.HasImageStreams,
		"visual_gap", q.HasVisualGap(),
	)
}

func pageText(page pdf.Page) (string, error) {
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// scorePDF re-reads the file with pdfcpu to measure how much of the document
// the text layer covers.
func scorePDF(path, text string) (*ExtractionQuality, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	return newQuality(ctx.PageCount, text, hasImageStreams(ctx)), nil
}

// hasImageStreams checks page resources first, then falls back to scanning
// the xref table for image XObjects.
func hasImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

// openErr tags filesystem errors as I/O failures and everything else as
// parse failures.
func openErr(op string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return ioErr(fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}
