package services

import (
	"log"
	"time"

	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/queued_jobs"
)

// ArchiveStuckJobs fails the current attempt of any in-progress job with an
// updated_at timestamp older than the olderThan value. A stuck job with
// attempts remaining is requeued with backoff; one out of budget is archived
// failed.
func ArchiveStuckJobs(olderThan time.Duration) error {
	var olderThanTime time.Time
	if olderThan >= 0 {
		olderThanTime = time.Now().Add(-1 * olderThan)
	} else {
		olderThanTime = time.Now().Add(olderThan)
	}
	jobs, err := queued_jobs.GetOldInProgressJobs(olderThanTime)
	if err != nil {
		return err
	}
	for _, qj := range jobs {
		err = HandleStatusCallback(qj.ID, qj.Name, models.StatusFailed, qj.Attempts, true, nil, "worker did not report progress, job timed out")
		if err == nil {
			log.Printf("Found stuck job %s and marked it as failed", qj.ID.String())
		} else {
			// Races with a worker finishing the job at the same moment are
			// expected; the next sweep will pick up anything still stuck.
			log.Printf("Found stuck job %s but could not process it: %s", qj.ID.String(), err.Error())
		}
	}
	return nil
}

// WatchStuckJobs polls the queued_jobs table for stuck jobs (defined as
// in-progress jobs that haven't been updated in olderThan time), and marks
// them as failed.
func WatchStuckJobs(interval time.Duration, olderThan time.Duration) {
	for range time.Tick(interval) {
		go func() {
			err := ArchiveStuckJobs(olderThan)
			if err != nil {
				log.Printf("Error archiving stuck jobs: %s\n", err.Error())
			}
		}()
	}
}
