// Package pdfdoc holds the PDF primitives shared by the job handlers: page
// counting, single-page extraction, embedded text extraction, and
// rasterization for OCR.
package pdfdoc

import (
	"bytes"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	fitz "github.com/gen2brain/go-fitz"
	pdftext "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// RenderDPI is the resolution handed to the rasterizer: 2x the PDF's native
// 72 DPI, which is enough detail for OCR without huge intermediate images.
const RenderDPI = 144

func configuration() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	// User uploads are frequently produced by sloppy generators; reject
	// only files pdfcpu cannot parse at all.
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount returns the number of pages in the document.
func PageCount(document []byte) (int, error) {
	ctx, err := api.ReadContext(bytes.NewReader(document), configuration())
	if err != nil {
		return 0, fmt.Errorf("pdfdoc: read document: %w", err)
	}
	return ctx.PageCount, nil
}

// ExtractPage returns a new single-page PDF holding page n (1-based) of the
// document.
func ExtractPage(document []byte, n int) ([]byte, error) {
	var buf bytes.Buffer
	err := api.Trim(bytes.NewReader(document), &buf, []string{strconv.Itoa(n)}, configuration())
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: extract page %d: %w", n, err)
	}
	return buf.Bytes(), nil
}

// ExtractText pulls the embedded text layer out of the document and returns
// it along with the page count. Pages with no usable text layer contribute
// nothing; scanned documents typically return an empty string.
func ExtractText(document []byte) (string, int, error) {
	r, err := pdftext.NewReader(bytes.NewReader(document), int64(len(document)))
	if err != nil {
		return "", 0, fmt.Errorf("pdfdoc: open document: %w", err)
	}
	total := r.NumPage()
	var b strings.Builder
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page should not sink the whole
			// document; the caller judges the total yield.
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), total, nil
}

// RenderPages rasterizes up to maxPages pages to PNG at RenderDPI, in page
// order. Documents longer than maxPages are truncated, not rejected.
func RenderPages(document []byte, maxPages int) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(document)
	if err != nil {
		return nil, fmt.Errorf("pdfdoc: open document: %w", err)
	}
	defer doc.Close()

	count := doc.NumPage()
	if count > maxPages {
		count = maxPages
	}
	pages := make([][]byte, 0, count)
	for i := 0; i < count; i++ {
		img, err := doc.ImageDPI(i, RenderDPI)
		if err != nil {
			return nil, fmt.Errorf("pdfdoc: render page %d: %w", i+1, err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("pdfdoc: encode page %d: %w", i+1, err)
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}
