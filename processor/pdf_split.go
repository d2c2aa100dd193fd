package processor

import (
	"fmt"

	"github.com/docmill/docmill/files"
	"github.com/docmill/docmill/models"
	"github.com/google/uuid"
)

// pdfSplit breaks a PDF into one single-page file per page, all parented
// under a newly created folder named after the payload's prefix. A zero-page
// PDF still gets its folder; the output list is just empty.
func (h *Handlers) pdfSplit(payload *models.SplitPayload, report func(int16)) (*models.Result, error) {
	report(5)
	source, err := h.Storage.Download(payload.StorageKey)
	if err != nil {
		return nil, err
	}
	count, err := h.pageCount(source)
	if err != nil {
		return nil, Permanent(fmt.Errorf("cannot read %q: %w", payload.Filename, err))
	}
	report(10)

	folderID := uuid.New()
	err = h.Files.InsertFolder(files.Folder{
		ID:       folderID,
		UserID:   payload.UserID,
		ParentID: payload.FolderID,
		Name:     payload.OutputNamePrefix,
	})
	if err != nil {
		return nil, err
	}
	report(15)

	folder := folderID.String()
	outputIDs := make([]string, 0, count)
	for i := 0; i < count; i++ {
		page, err := h.extractPage(source, i+1)
		if err != nil {
			return nil, Permanent(fmt.Errorf("cannot extract page %d of %q: %w", i+1, payload.Filename, err))
		}
		name := fmt.Sprintf("Page %d.pdf", i+1)
		key := h.Storage.GenerateKey(payload.UserID, name)
		if err := h.Storage.Upload(key, page, "application/pdf"); err != nil {
			return nil, err
		}
		fileID := uuid.New()
		err = h.Files.InsertFile(files.File{
			ID:         fileID,
			UserID:     payload.UserID,
			FolderID:   &folder,
			Name:       name,
			StorageKey: key,
			MimeType:   "application/pdf",
			Size:       int64(len(page)),
		})
		if err != nil {
			return nil, err
		}
		outputIDs = append(outputIDs, fileID.String())
		report(int16(15 + (i+1)*80/count))
	}
	report(100)

	return &models.Result{
		Success:       true,
		Message:       fmt.Sprintf("Split %q into %d pages", payload.Filename, count),
		OutputFileIDs: outputIDs,
	}, nil
}
