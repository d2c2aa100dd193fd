package models

import "github.com/google/uuid"

// Payload fields are named the way the document-store API sends them; every
// payload carries the file being operated on, its owner, and the source blob.

// SplitPayload is the payload for a pdf-split job.
type SplitPayload struct {
	FileID           uuid.UUID `json:"fileId"`
	UserID           uuid.UUID `json:"userId"`
	StorageKey       string    `json:"storageKey"`
	Filename         string    `json:"filename"`
	OutputNamePrefix string    `json:"outputNamePrefix"`
	FolderID         *string   `json:"folderId,omitempty"`
}

// ConvertPayload is the payload for an image-convert job. Quality defaults to
// 80 and only applies to lossy targets (jpeg, webp).
type ConvertPayload struct {
	FileID       uuid.UUID `json:"fileId"`
	UserID       uuid.UUID `json:"userId"`
	StorageKey   string    `json:"storageKey"`
	Filename     string    `json:"filename"`
	TargetFormat string    `json:"targetFormat"`
	Quality      int       `json:"quality,omitempty"`
	FolderID     *string   `json:"folderId,omitempty"`
}

// OCR modes. Extract persists text only, Summary persists a summary only,
// Both persists both.
const (
	ModeExtract = "extract"
	ModeSummary = "summary"
	ModeBoth    = "both"
)

// OCRPayload is the payload for an ocr job.
type OCRPayload struct {
	FileID     uuid.UUID `json:"fileId"`
	UserID     uuid.UUID `json:"userId"`
	StorageKey string    `json:"storageKey"`
	Filename   string    `json:"filename"`
	Language   string    `json:"language,omitempty"`
	Mode       string    `json:"mode"`
}

// ThumbnailPayload is the payload for a pdf-thumbnail job.
type ThumbnailPayload struct {
	FileID     uuid.UUID `json:"fileId"`
	UserID     uuid.UUID `json:"userId"`
	StorageKey string    `json:"storageKey"`
	Filename   string    `json:"filename"`
}

// A Result is what a handler hands back on completion. Success false is a
// completed-but-degraded outcome (e.g. thumbnailing an empty PDF), not a job
// failure; Message always explains how the result was obtained.
type Result struct {
	Success       bool     `json:"success"`
	Message       string   `json:"message"`
	OutputFileIDs []string `json:"outputFileIds,omitempty"`
	ThumbnailKey  string   `json:"thumbnailKey,omitempty"`
}
