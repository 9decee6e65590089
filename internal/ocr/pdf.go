package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/lab-report-parser/constants"
)

// extractPDF reads the embedded text layer and falls back to rasterizing and
// OCRing the pages when the layer is missing or unreadable.
func (e *Extractor) extractPDF(ctx context.Context, path string) (ExtractionResult, error) {
	var warns []string
	txt, pages, err := e.pdfTextLayer(path)
	switch {
	case err != nil:
		warns = append(warns, fmt.Sprintf("pdf text layer: %v", err))
	case strings.TrimSpace(txt) != "":
		return ExtractionResult{
			Text:       Clean(txt),
			Pages:      pages,
			SourceType: constants.PDF,
			Method:     MethodPDFText,
		}, nil
	}

	e.logger.Debug("ocr.pdf.fallback", "path", path, "reason", "no text layer")
	txt, pages, w, err := e.pdfToOCR(ctx, path)
	warns = append(warns, w...)
	res := ExtractionResult{
		SourceType: constants.PDF,
		Method:     MethodPDFOCR,
		Language:   e.cfg.TesseractLang,
		Warnings:   warns,
	}
	if err != nil {
		return res, err
	}
	res.Text = Clean(txt)
	res.Pages = pages
	return res, nil
}

// pdfTextLayer joins per-page plain text with form feeds so pages stay separable.
func (e *Extractor) pdfTextLayer(path string) (text string, pages int, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	n := r.NumPage()
	if e.cfg.MaxPages > 0 && n > e.cfg.MaxPages {
		n = e.cfg.MaxPages
	}
	fonts := make(map[string]*pdf.Font)
	var b strings.Builder
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		t, err := p.GetPlainText(fonts)
		if err != nil {
			return "", 0, fmt.Errorf("page %d: %w", i, err)
		}
		if pages > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(t)
		pages++
	}
	return b.String(), pages, nil
}

func (e *Extractor) pdfToOCR(ctx context.Context, path string) (text string, pages int, warnings []string, err error) {
	tmpDir, err := os.MkdirTemp("", "labreport-pp-*")
	if err != nil {
		return "", 0, nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			e.logger.Warn("ocr.tmp.cleanup.failed", "dir", tmpDir, "error", err)
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{"-r", fmt.Sprintf("%d", e.cfg.DPI), "-png"}
	if e.cfg.MaxPages > 0 {
		args = append(args, "-l", fmt.Sprintf("%d", e.cfg.MaxPages))
	}
	// pdftoppm -r 300 -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm, append(args, path, prefix)...)
	if err != nil {
		return "", 0, []string{string(errb)}, fmt.Errorf("pdftoppm: %w", err)
	}

	// prefix-1.png, prefix-2.png, ... (zero padded when there are many pages)
	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if e.cfg.MaxPages > 0 && len(matches) > e.cfg.MaxPages {
		matches = matches[:e.cfg.MaxPages]
	}
	if len(matches) == 0 {
		return "", 0, []string{"pdftoppm produced no images"}, fmt.Errorf("no pages rendered")
	}

	var b strings.Builder
	var warns []string
	for _, img := range matches {
		if err := ctx.Err(); err != nil {
			return "", 0, warns, err
		}
		txt, w, err := e.tesseractOCR(ctx, img)
		if err != nil {
			warns = append(warns, err.Error())
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(txt)
		warns = append(warns, w...)
	}
	return b.String(), len(matches), warns, nil
}
