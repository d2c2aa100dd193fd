package services

import (
	"fmt"
	"log"
	"time"

	metrics "github.com/Shyp/go-simple-metrics"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/queued_jobs"
	"github.com/docmill/docmill/processor"
)

// JobProcessor is the default implementation of the dequeuer.Worker
// interface. It runs the handler matching the job's type in-process.
type JobProcessor struct {
	Handlers *processor.Handlers
}

// NewJobProcessor creates a JobProcessor that executes jobs with h. The
// returned processor is safe to share between dequeuers.
func NewJobProcessor(h *processor.Handlers) *JobProcessor {
	return &JobProcessor{Handlers: h}
}

// DoWork runs the queued job to a terminal state or a retry. Every exit
// path goes through HandleStatusCallback, so the job is never dropped
// without reaching queued or a terminal status.
func (jp *JobProcessor) DoWork(qj *models.QueuedJob) error {
	log.Printf("processing job %s (type %s)", qj.ID.String(), qj.Name)
	if qj.ExpiresAt.Valid && time.Since(qj.ExpiresAt.Time) >= 0 {
		go metrics.Increment(fmt.Sprintf("process.%s.expired", qj.Name))
		return createAndDelete(qj.ID, qj.Name, models.StatusExpired, qj.Attempts, nil, "")
	}

	report := func(percent int16) {
		if err := queued_jobs.SetProgress(qj.ID, percent); err != nil && err != queued_jobs.ErrNotFound {
			log.Printf("error recording progress for job %s: %s", qj.ID.String(), err)
		}
	}

	start := time.Now()
	result, err := jp.run(qj, report)
	go metrics.Time(fmt.Sprintf("process.%s.latency", qj.Name), time.Since(start))
	if err != nil {
		log.Printf("job %s (type %s) attempt %d failed: %s", qj.ID.String(), qj.Name, qj.Attempts, err)
		retryable := !processor.IsPermanent(err)
		return HandleStatusCallback(qj.ID, qj.Name, models.StatusFailed, qj.Attempts, retryable, nil, err.Error())
	}
	log.Printf("job %s (type %s) completed after %v", qj.ID.String(), qj.Name, time.Since(start))
	return HandleStatusCallback(qj.ID, qj.Name, models.StatusSucceeded, qj.Attempts, false, result, "")
}

// run executes the handler, converting a panic into an ordinary error so a
// misbehaving handler costs one attempt, not the worker.
func (jp *JobProcessor) run(qj *models.QueuedJob, report func(int16)) (result *models.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			go metrics.Increment(fmt.Sprintf("process.%s.panic", qj.Name))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return jp.Handlers.Run(qj.Name, qj.Data, report)
}
