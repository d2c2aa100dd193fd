// Package processor implements the work behind each job type. A Handlers
// value owns the collaborators (blob storage, file metadata, AI model, local
// OCR) and routes a dequeued job to the matching handler by type.
package processor

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/docmill/docmill/files"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/pdfdoc"
	"github.com/google/uuid"
)

// Storage is the blob store collaborator.
type Storage interface {
	Download(key string) ([]byte, error)
	Upload(key string, data []byte, contentType string) error
	GenerateKey(userID uuid.UUID, filename string) string
}

// FileStore records file and folder metadata for handler outputs.
type FileStore interface {
	InsertFile(f files.File) error
	InsertFolder(f files.Folder) error
	UpdateFileOCRFields(fileID uuid.UUID, up files.OCRUpdate) error
}

// Vision is the hosted AI collaborator. Implementations return errors
// wrapping vision.ErrQuotaExceeded on rate/quota rejections.
type Vision interface {
	DescribeImage(image []byte, mimeType string) (string, error)
	SummarizeText(text string) (string, error)
}

// OCREngine recognizes text in a raster image locally.
type OCREngine interface {
	Recognize(image []byte, language string) (string, error)
}

// Handlers executes jobs. Vision may be nil, meaning no AI collaborator is
// configured; the OCR handler degrades to local extraction in that case.
type Handlers struct {
	Storage Storage
	Files   FileStore
	Vision  Vision
	OCR     OCREngine

	// PDF primitives, swappable in tests.
	pageCount   func(document []byte) (int, error)
	extractPage func(document []byte, n int) ([]byte, error)
	extractText func(document []byte) (string, int, error)
	renderPages func(document []byte, maxPages int) ([][]byte, error)
}

// New returns Handlers wired to the real PDF primitives.
func New(storage Storage, fileStore FileStore, vision Vision, ocr OCREngine) *Handlers {
	return &Handlers{
		Storage: storage,
		Files:   fileStore,
		Vision:  vision,
		OCR:     ocr,

		pageCount:   pdfdoc.PageCount,
		extractPage: pdfdoc.ExtractPage,
		extractText: pdfdoc.ExtractText,
		renderPages: pdfdoc.RenderPages,
	}
}

// Run executes one job and returns its result. report is called with
// percentages in [0, 100] as the handler advances. Errors wrapped by
// Permanent should not be retried.
func (h *Handlers) Run(name models.JobType, data json.RawMessage, report func(int16)) (*models.Result, error) {
	switch name {
	case models.TypePDFSplit:
		var payload models.SplitPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, Permanent(fmt.Errorf("invalid %s payload: %w", name, err))
		}
		return h.pdfSplit(&payload, report)
	case models.TypeImageConvert:
		var payload models.ConvertPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, Permanent(fmt.Errorf("invalid %s payload: %w", name, err))
		}
		return h.imageConvert(&payload, report)
	case models.TypeOCR:
		var payload models.OCRPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, Permanent(fmt.Errorf("invalid %s payload: %w", name, err))
		}
		return h.ocr(&payload, report)
	case models.TypePDFThumbnail:
		var payload models.ThumbnailPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, Permanent(fmt.Errorf("invalid %s payload: %w", name, err))
		}
		return h.thumbnail(&payload, report)
	default:
		// The jobs table enforces the closed type set, so reaching this
		// means the registry and this switch are out of sync.
		return nil, Permanent(fmt.Errorf("no handler for job type %q", name))
	}
}

// A PermanentError marks a failure that retrying cannot fix, such as a
// malformed payload or an unsupported format.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the dispatcher fails the job without retrying.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err (or anything it wraps) was marked with
// Permanent.
func IsPermanent(err error) bool {
	for err != nil {
		if _, ok := err.(*PermanentError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// sniffImageMime inspects magic bytes and returns the concrete image
// subtype. Anything unrecognized is reported as PNG, the most common
// upload type.
func sniffImageMime(data []byte) string {
	switch {
	case len(data) >= 3 && bytes.Equal(data[:3], []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case len(data) >= 4 && bytes.Equal(data[:4], []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	default:
		return "image/png"
	}
}
