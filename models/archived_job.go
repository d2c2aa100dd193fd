package models

import (
	"encoding/json"
	"time"

	types "github.com/Shyp/go-types"
	"github.com/google/uuid"
)

// An ArchivedJob is a job that reached a terminal state. The row keeps the
// original payload for diagnostics, plus either the handler's result
// (succeeded) or the last failure message (failed/expired).
type ArchivedJob struct {
	ID        types.PrefixUUID `json:"id"`
	Name      JobType          `json:"name"`
	FileID    uuid.UUID        `json:"file_id"`
	Attempts  uint8            `json:"attempts"`
	Status    JobStatus        `json:"status"`
	Data      json.RawMessage  `json:"data"`
	Result    types.NullString `json:"result"`
	Error     types.NullString `json:"error"`
	// EnqueuedAt is copied from the queued job; CreatedAt is when the job
	// reached its terminal state.
	EnqueuedAt time.Time      `json:"enqueued_at"`
	CreatedAt  time.Time      `json:"created_at"`
	ExpiresAt  types.NullTime `json:"expires_at"`
}
