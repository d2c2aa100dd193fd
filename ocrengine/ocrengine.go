// Package ocrengine runs local text recognition over raster images.
package ocrengine

import (
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// DefaultLanguage is used when a job does not name one.
const DefaultLanguage = "eng"

// Tesseract recognizes text with the locally installed tesseract engine.
// gosseract clients are not safe for concurrent use, so Recognize builds a
// fresh one per call.
type Tesseract struct{}

// Recognize runs OCR over a single image and returns the recognized text.
func (Tesseract) Recognize(image []byte, language string) (string, error) {
	if language == "" {
		language = DefaultLanguage
	}
	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(language); err != nil {
		return "", fmt.Errorf("ocrengine: set language %q: %w", language, err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("ocrengine: load image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocrengine: recognize: %w", err)
	}
	return text, nil
}
