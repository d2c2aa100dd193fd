package processor

import (
	"fmt"

	"github.com/docmill/docmill/models"
)

// thumbnail stores the first page of a PDF as a standalone one-page PDF
// under a deterministic key, so re-running the job overwrites rather than
// accumulates. Rendering the page to an image is the consumer's job.
func (h *Handlers) thumbnail(payload *models.ThumbnailPayload, report func(int16)) (*models.Result, error) {
	report(10)
	source, err := h.Storage.Download(payload.StorageKey)
	if err != nil {
		return nil, err
	}
	count, err := h.pageCount(source)
	if err != nil {
		return nil, Permanent(fmt.Errorf("cannot read %q: %w", payload.Filename, err))
	}
	report(30)
	if count == 0 {
		report(100)
		return &models.Result{
			Success: false,
			Message: "PDF has no pages",
		}, nil
	}

	page, err := h.extractPage(source, 1)
	if err != nil {
		return nil, Permanent(fmt.Errorf("cannot extract first page of %q: %w", payload.Filename, err))
	}
	report(70)
	key := fmt.Sprintf("thumbnails/%s/%s.pdf", payload.UserID, payload.FileID)
	if err := h.Storage.Upload(key, page, "application/pdf"); err != nil {
		return nil, err
	}
	report(100)

	return &models.Result{
		Success:      true,
		Message:      fmt.Sprintf("Generated thumbnail for %q", payload.Filename),
		ThumbnailKey: key,
	}, nil
}
