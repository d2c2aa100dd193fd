package processor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docmill/docmill/files"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/vision"
)

// The extraction cascade tries the cheapest strategy that yields usable
// text: the PDF's embedded text layer first, then rasterization plus local
// OCR, and AI vision only for images (where no text layer exists at all).

// Rasterizing an entire book-length scan would pin a worker for minutes, so
// the fallback reads at most this many pages.
const maxOCRPages = 20

const pageBreakSeparator = "\n--- Page Break ---\n"

// Below these thresholds a PDF's text layer is considered unusable (likely
// a scan) and the handler falls back to rasterization plus local OCR.
const (
	minCharsPerPage = 50
	minTotalChars   = 100
)

// ocr extracts text and/or a summary from a document and persists the
// output onto the file's record. This is the only handler with a side
// effect beyond creating new files.
func (h *Handlers) ocr(payload *models.OCRPayload, report func(int16)) (*models.Result, error) {
	switch payload.Mode {
	case models.ModeExtract, models.ModeSummary, models.ModeBoth:
	default:
		return nil, Permanent(fmt.Errorf("invalid ocr mode %q", payload.Mode))
	}
	report(5)
	source, err := h.Storage.Download(payload.StorageKey)
	if err != nil {
		return nil, err
	}
	report(10)

	var fullText, summary, how string
	if strings.HasSuffix(strings.ToLower(payload.Filename), ".pdf") {
		var pages int
		var usedLocalOCR bool
		fullText, pages, usedLocalOCR, err = h.pdfText(source, payload.Language, report)
		if err != nil {
			return nil, err
		}
		report(80)
		if usedLocalOCR {
			how = fmt.Sprintf("recognized text with local OCR on %d rasterized pages", pages)
		} else {
			how = fmt.Sprintf("extracted embedded text from %d pages", pages)
		}
		if payload.Mode != models.ModeExtract {
			summary = h.pdfSummary(fullText, usedLocalOCR)
		}
	} else {
		fullText, how = h.imageText(source, payload.Language)
		// The description already is a short account of the image, so
		// it doubles as the summary without a second model call.
		if payload.Mode != models.ModeExtract {
			summary = fullText
		}
	}
	report(85)

	update := files.OCRUpdate{ProcessedAt: time.Now().UTC()}
	if payload.Mode == models.ModeExtract || payload.Mode == models.ModeBoth {
		update.Text = &fullText
	}
	if payload.Mode == models.ModeSummary || payload.Mode == models.ModeBoth {
		update.Summary = &summary
	}
	if err := h.Files.UpdateFileOCRFields(payload.FileID, update); err != nil {
		return nil, err
	}
	report(100)

	return &models.Result{
		Success: true,
		Message: fmt.Sprintf("Processed %q (mode %s): %s", payload.Filename, payload.Mode, how),
	}, nil
}

// pdfText returns the document's text, the page count it covers, and
// whether the local OCR fallback was used.
func (h *Handlers) pdfText(source []byte, language string, report func(int16)) (string, int, bool, error) {
	extracted, count, xerr := h.extractText(source)
	trimmed := strings.TrimSpace(extracted)
	if xerr == nil && count > 0 {
		if len(trimmed)/count >= minCharsPerPage && len(trimmed) >= minTotalChars {
			return trimmed, count, false, nil
		}
	}
	report(20)

	images, rerr := h.renderPages(source, maxOCRPages)
	if rerr != nil {
		if xerr != nil {
			// Neither reader could make sense of the bytes.
			return "", 0, false, Permanent(fmt.Errorf("cannot read document: %w", rerr))
		}
		// Rasterizer is unavailable; the sparse text layer is still
		// better than nothing.
		return trimmed, count, false, nil
	}
	parts := make([]string, 0, len(images))
	for i, img := range images {
		recognized, err := h.OCR.Recognize(img, language)
		if err != nil {
			// One bad page should not sink the rest of the document.
			parts = append(parts, fmt.Sprintf("[OCR failed for page %d: %v]", i+1, err))
		} else {
			parts = append(parts, strings.TrimSpace(recognized))
		}
		report(int16(20 + (i+1)*60/len(images)))
	}
	return strings.Join(parts, pageBreakSeparator), len(images), true, nil
}

// imageText returns text for a non-PDF upload: an AI description when the
// collaborator is configured and responsive, recognized text otherwise, and
// an explicit placeholder when neither yields anything. The second return
// value describes which path produced the text.
func (h *Handlers) imageText(source []byte, language string) (string, string) {
	mimeType := sniffImageMime(source)
	if h.Vision != nil {
		description, err := h.Vision.DescribeImage(source, mimeType)
		if err == nil {
			return description, "described with AI vision"
		}
	}
	recognized, err := h.OCR.Recognize(source, language)
	if err == nil && len(strings.TrimSpace(recognized)) > 20 {
		return "Extracted text:\n" + strings.TrimSpace(recognized), "recognized text with local OCR"
	}
	return "[No significant text detected - image analysis unavailable]", "no significant text detected"
}

// pdfSummary turns extracted PDF text into a summary, substituting explicit
// markers when the AI collaborator is missing, over quota, or failing.
func (h *Handlers) pdfSummary(fullText string, usedLocalOCR bool) string {
	if len(strings.TrimSpace(fullText)) <= minCharsPerPage {
		return "[No text content found in this document]"
	}
	if h.Vision == nil {
		if usedLocalOCR {
			return "[AI summarization not configured - text recognized with local OCR only]"
		}
		return "[AI summarization not configured]"
	}
	summary, err := h.Vision.SummarizeText(fullText)
	switch {
	case err == nil:
		return summary
	case errors.Is(err, vision.ErrQuotaExceeded):
		return "[Summary unavailable - quota exceeded]"
	default:
		return "[Error generating summary]"
	}
}
