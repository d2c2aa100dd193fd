package services

import (
	"log"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/archived_jobs"
)

// Retention windows for terminal jobs. Failures and expirations stick
// around longer for diagnostics.
var (
	SucceededRetention = 24 * time.Hour
	CancelledRetention = 24 * time.Hour
	FailedRetention    = 7 * 24 * time.Hour
	ExpiredRetention   = 7 * 24 * time.Hour
)

// SweepArchivedJobs deletes archived jobs older than their status's
// retention window and returns the number of rows removed.
func SweepArchivedJobs() (int64, error) {
	windows := map[models.JobStatus]time.Duration{
		models.StatusSucceeded: SucceededRetention,
		models.StatusCancelled: CancelledRetention,
		models.StatusFailed:    FailedRetention,
		models.StatusExpired:   ExpiredRetention,
	}
	var total int64
	for status, window := range windows {
		count, err := archived_jobs.DeleteOlderThan(status, time.Now().UTC().Add(-window))
		if err != nil {
			return total, err
		}
		if count > 0 {
			go metrics.Measure("archived_job.sweep."+string(status), count)
		}
		total += count
	}
	return total, nil
}

// WatchArchivedJobs runs SweepArchivedJobs on the given interval.
func WatchArchivedJobs(interval time.Duration) {
	for range time.Tick(interval) {
		count, err := SweepArchivedJobs()
		if err != nil {
			log.Printf("Error sweeping archived jobs: %s\n", err.Error())
		} else if count > 0 {
			log.Printf("Swept %d archived jobs past retention", count)
		}
	}
}
