// Mediation layer between the server and database queries.
//
// Logic that's not related to validating request input/turning errors into
// HTTP responses should go here.
package services

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"github.com/Shyp/go-dberror"
	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/archived_jobs"
	"github.com/docmill/docmill/models/jobs"
	"github.com/docmill/docmill/models/queued_jobs"
	"github.com/google/uuid"
)

// HandleStatusCallback moves a finished attempt to its next state. A
// succeeded job is archived with its result. A failed attempt is either
// requeued with a backoff delay (when retryable and attempts remain) or
// archived with the failure message.
//
// This can return an error if any of the following happens: the archived job
// already exists, the queued job no longer exists by the time you attempt to
// delete it, or the attempt count in queued_jobs doesn't match the passed in
// value (another thread already moved the job).
func HandleStatusCallback(id types.PrefixUUID, name models.JobType, status models.JobStatus, attempt uint8, retryable bool, result *models.Result, errMsg string) error {
	if status == models.StatusSucceeded {
		err := createAndDelete(id, name, models.StatusSucceeded, attempt, result, "")
		if err != nil {
			go metrics.Increment("archived_job.create.success.error")
		} else {
			go metrics.Increment(fmt.Sprintf("archived_job.create.%s.success", name))
			go metrics.Increment("archived_job.create.success")
			go metrics.Increment("archived_job.create")
		}
		return err
	} else if status == models.StatusFailed {
		err := handleFailedCallback(id, name, attempt, retryable, errMsg)
		if err != nil {
			go metrics.Increment("archived_job.create.failed.error")
		} else {
			go metrics.Increment(fmt.Sprintf("archived_job.create.%s.failed", name))
			go metrics.Increment("archived_job.create.failed")
			go metrics.Increment("archived_job.create")
		}
		return err
	} else {
		return fmt.Errorf("Unknown terminal job status: %s", status)
	}
}

// createAndDelete creates an archived job, deletes the queued job, and returns
// any errors.
func createAndDelete(id types.PrefixUUID, name models.JobType, status models.JobStatus, attempt uint8, result *models.Result, errMsg string) error {
	start := time.Now()
	_, err := archived_jobs.Create(id, name, status, attempt, result, errMsg)
	go metrics.Time("archived_job.create.latency", time.Since(start))
	if err != nil {
		switch derr := err.(type) {
		case *dberror.Error:
			if derr.Code == dberror.CodeUniqueViolation {
				// Some other thread beat us to it. Don't return an error, just
				// fall through and try to delete the record.
				log.Printf("Could not create archived job %s with status %s because "+
					"it was already present. Deleting the queued job.", id.String(), status)
			} else {
				return err
			}
		default:
			return err
		}
	}
	start = time.Now()
	err = queued_jobs.DeleteRetry(id, 3)
	go metrics.Time("queued_job.delete.latency", time.Since(start))
	return err
}

// GetRunAfter returns the time a job that just failed its attempt'th attempt
// (1-based) should next be eligible to run: one second doubled for every
// attempt already spent.
func GetRunAfter(attempt uint8) time.Time {
	if attempt < 1 {
		attempt = 1
	}
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * 1000 * time.Millisecond
	return time.Now().UTC().Add(backoff)
}

func handleFailedCallback(id types.PrefixUUID, name models.JobType, attempt uint8, retryable bool, errMsg string) error {
	if !retryable {
		return createAndDelete(id, name, models.StatusFailed, attempt, nil, errMsg)
	}
	job, err := jobs.GetRetry(name, 3)
	if err != nil {
		return err
	}
	if attempt >= job.MaxAttempts {
		return createAndDelete(id, name, models.StatusFailed, attempt, nil, errMsg)
	}
	// Try the job again. Note the database guards on the attempt counter.
	start := time.Now()
	_, err = queued_jobs.Requeue(id, attempt, GetRunAfter(attempt))
	go metrics.Time("queued_jobs.requeue.latency", time.Since(start))
	return err
}

// Cancel removes a still-waiting job from the queue, archiving it with the
// cancelled status. The dequeue and the archive write happen in one
// statement, so a cancel racing a dequeuer can't both succeed. It returns
// true only if the job was waiting at call time; a job that is unknown,
// already running, or already terminal is left untouched and reported as
// false.
func Cancel(id types.PrefixUUID) (bool, error) {
	_, err := archived_jobs.CreateCancelled(id)
	if err != nil {
		if err == queued_jobs.ErrNotFound {
			return false, nil
		}
		if derr, ok := err.(*dberror.Error); ok && derr.Code == dberror.CodeUniqueViolation {
			// Already terminal.
			return false, nil
		}
		return false, err
	}
	go metrics.Increment("archived_job.create.cancelled")
	return true, nil
}

// GetStatus returns the caller-facing projection of a job, looking in the
// live queue first and the archive second. An unknown id returns (nil, nil).
func GetStatus(id types.PrefixUUID) (*models.ProcessingStatus, error) {
	qj, err := queued_jobs.Get(id)
	if err == nil {
		return models.StatusFromQueued(qj), nil
	}
	if err != queued_jobs.ErrNotFound {
		return nil, err
	}
	aj, err := archived_jobs.Get(id)
	if err == nil {
		return models.StatusFromArchived(aj), nil
	}
	if err == archived_jobs.ErrNotFound {
		return nil, nil
	}
	return nil, err
}

// ListByFile returns every job, live or archived, that references fileID,
// ordered by enqueue time ascending.
func ListByFile(fileID uuid.UUID) ([]*models.ProcessingStatus, error) {
	queued, err := queued_jobs.ListByFile(fileID)
	if err != nil {
		return nil, err
	}
	archived, err := archived_jobs.ListByFile(fileID)
	if err != nil {
		return nil, err
	}
	statuses := make([]*models.ProcessingStatus, 0, len(queued)+len(archived))
	for _, qj := range queued {
		statuses = append(statuses, models.StatusFromQueued(qj))
	}
	for _, aj := range archived {
		statuses = append(statuses, models.StatusFromArchived(aj))
	}
	sort.SliceStable(statuses, func(i, j int) bool {
		return statuses[i].CreatedAt.Before(statuses[j].CreatedAt)
	})
	return statuses, nil
}
