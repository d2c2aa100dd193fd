package models

import (
	"encoding/json"
	"time"

	types "github.com/Shyp/go-types"
	"github.com/google/uuid"
)

// A QueuedJob is a pending or running unit of document-processing work.
//
// QueuedJobs can have the status "queued" (waiting to be run), or
// "in-progress" (a dequeuer is acting on them). Terminal jobs are moved to
// archived_jobs.
type QueuedJob struct {
	ID        types.PrefixUUID `json:"id"`
	Name      JobType          `json:"name"`
	FileID    uuid.UUID        `json:"file_id"`
	Attempts  uint8            `json:"attempts"`
	Priority  int16            `json:"priority"`
	Progress  int16            `json:"progress"`
	RunAfter  time.Time        `json:"run_after"`
	ExpiresAt types.NullTime   `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Status    JobStatus        `json:"status"`
	Data      json.RawMessage  `json:"data"`
}
