package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// JobType identifies one of the four document-processing operations. The set
// is closed; the dispatcher routes on it with an exhaustive switch.
type JobType string

const (
	TypePDFSplit     = JobType("pdf-split")
	TypeImageConvert = JobType("image-convert")
	TypeOCR          = JobType("ocr")
	TypePDFThumbnail = JobType("pdf-thumbnail")
)

// AllJobTypes lists every valid job type, in priority order.
var AllJobTypes = []JobType{TypePDFThumbnail, TypePDFSplit, TypeImageConvert, TypeOCR}

// Valid reports whether t is a member of the closed type set.
func (t JobType) Valid() bool {
	switch t {
	case TypePDFSplit, TypeImageConvert, TypeOCR, TypePDFThumbnail:
		return true
	}
	return false
}

// DefaultPriority returns the enqueue priority used when the caller doesn't
// specify one. Lower values are dequeued first: thumbnails ahead of
// split/convert, OCR last.
func (t JobType) DefaultPriority() int16 {
	switch t {
	case TypePDFThumbnail:
		return 1
	case TypePDFSplit, TypeImageConvert:
		return 2
	default:
		return 3
	}
}

// A Job is a registered job type: its retry budget and default priority.
// There is one row per member of the closed type set.
type Job struct {
	Name        JobType   `json:"name"`
	MaxAttempts uint8     `json:"max_attempts"`
	Priority    int16     `json:"priority"`
	CreatedAt   time.Time `json:"created_at"`
}

type JobStatus string

// StatusQueued indicates a QueuedJob is waiting to be run.
const StatusQueued = JobStatus("queued")

// StatusInProgress indicates a QueuedJob has been dequeued, and a worker is
// acting on it.
const StatusInProgress = JobStatus("in-progress")

// Terminal statuses. Jobs with these statuses live in archived_jobs only.
const StatusSucceeded = JobStatus("succeeded")
const StatusFailed = JobStatus("failed")
const StatusCancelled = JobStatus("cancelled")
const StatusExpired = JobStatus("expired")

// Scan implements the Scanner interface.
func (j *JobStatus) Scan(src interface{}) error {
	if src == nil {
		return nil
	} else if txt, ok := src.(string); ok {
		*j = JobStatus(txt)
		return nil
	} else if txt, ok := src.([]byte); ok {
		*j = JobStatus(string(txt))
		return nil
	}
	return fmt.Errorf("Unsupported JobStatus: %#v", src)
}

func (j JobStatus) Value() (driver.Value, error) {
	return string(j), nil
}

// Scan implements the Scanner interface.
func (t *JobType) Scan(src interface{}) error {
	if src == nil {
		return nil
	} else if txt, ok := src.(string); ok {
		*t = JobType(txt)
		return nil
	} else if txt, ok := src.([]byte); ok {
		*t = JobType(string(txt))
		return nil
	}
	return fmt.Errorf("Unsupported JobType: %#v", src)
}

func (t JobType) Value() (driver.Value, error) {
	return string(t), nil
}
