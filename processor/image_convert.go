package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	_ "image/gif"

	"github.com/chai2010/webp"
	"github.com/docmill/docmill/files"
	"github.com/docmill/docmill/models"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// DefaultQuality applies to lossy targets when the payload omits one.
const DefaultQuality = 80

// imageConvert re-encodes an image as PNG, JPEG or WebP and records the
// result as a new file. The source file is left alone.
func (h *Handlers) imageConvert(payload *models.ConvertPayload, report func(int16)) (*models.Result, error) {
	target := strings.ToLower(payload.TargetFormat)
	switch target {
	case "png", "jpeg", "webp":
	default:
		return nil, Permanent(fmt.Errorf("unsupported target format %q", payload.TargetFormat))
	}
	quality := payload.Quality
	if quality <= 0 {
		quality = DefaultQuality
	}
	report(10)

	source, err := h.Storage.Download(payload.StorageKey)
	if err != nil {
		return nil, err
	}
	report(30)

	img, srcFormat, err := image.Decode(bytes.NewReader(source))
	if err != nil {
		return nil, Permanent(fmt.Errorf("cannot decode %q: %w", payload.Filename, err))
	}
	var buf bytes.Buffer
	switch target {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case "webp":
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)})
	}
	if err != nil {
		return nil, Permanent(fmt.Errorf("cannot encode %q as %s: %w", payload.Filename, target, err))
	}
	report(70)

	name := basename(payload.Filename) + "." + target
	key := h.Storage.GenerateKey(payload.UserID, name)
	if err := h.Storage.Upload(key, buf.Bytes(), "image/"+target); err != nil {
		return nil, err
	}
	report(90)

	fileID := uuid.New()
	err = h.Files.InsertFile(files.File{
		ID:         fileID,
		UserID:     payload.UserID,
		FolderID:   payload.FolderID,
		Name:       name,
		StorageKey: key,
		MimeType:   "image/" + target,
		Size:       int64(buf.Len()),
	})
	if err != nil {
		return nil, err
	}
	report(100)

	return &models.Result{
		Success:       true,
		Message:       fmt.Sprintf("Converted %q from %s to %s", payload.Filename, srcFormat, target),
		OutputFileIDs: []string{fileID.String()},
	}, nil
}

func basename(filename string) string {
	if i := strings.LastIndex(filename, "."); i > 0 {
		return filename[:i]
	}
	return filename
}
