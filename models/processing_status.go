package models

import (
	"encoding/json"
	"time"

	types "github.com/Shyp/go-types"
)

// ProcessingStatus is the projection of a job's lifecycle that pollers see.
// It is the same shape whether the job is still queued, running, or archived.
type ProcessingStatus struct {
	JobID      types.PrefixUUID `json:"jobId"`
	Type       JobType          `json:"type"`
	Status     JobStatus        `json:"status"`
	Progress   *int16           `json:"progress,omitempty"`
	Result     *Result          `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	FinishedAt types.NullTime   `json:"finishedAt,omitempty"`
}

// StatusFromQueued projects a live job. Progress is reported for queued and
// in-progress jobs; there is no result or error yet.
func StatusFromQueued(qj *QueuedJob) *ProcessingStatus {
	progress := qj.Progress
	return &ProcessingStatus{
		JobID:     qj.ID,
		Type:      qj.Name,
		Status:    qj.Status,
		Progress:  &progress,
		CreatedAt: qj.CreatedAt,
	}
}

// StatusFromArchived projects a terminal job. Succeeded jobs report progress
// 100 and carry the handler result; failed jobs carry the last error.
func StatusFromArchived(aj *ArchivedJob) *ProcessingStatus {
	ps := &ProcessingStatus{
		JobID:     aj.ID,
		Type:      aj.Name,
		Status:    aj.Status,
		CreatedAt: aj.EnqueuedAt,
		FinishedAt: types.NullTime{
			Valid: true,
			Time:  aj.CreatedAt,
		},
	}
	if aj.Status == StatusSucceeded {
		progress := int16(100)
		ps.Progress = &progress
	}
	if aj.Result.Valid {
		res := new(Result)
		if err := json.Unmarshal([]byte(aj.Result.String), res); err == nil {
			ps.Result = res
		}
	}
	if aj.Error.Valid {
		ps.Error = aj.Error.String
	}
	return ps
}
