// Package factory contains helpers for instantiating tests.
package factory

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	types "github.com/Shyp/go-types"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/archived_jobs"
	"github.com/docmill/docmill/models/queued_jobs"
	"github.com/docmill/docmill/test"
	"github.com/google/uuid"
	guuid "github.com/nu7hatch/gouuid"
)

var EmptyData = json.RawMessage([]byte("{}"))

var JobId types.PrefixUUID

// FileID and UserID are the file and owner every fixture payload points at.
var FileID = uuid.MustParse("b102094f-4343-46e6-bd90-41ba4902d1cf")
var UserID = uuid.MustParse("57bd7f27-64ac-4b01-a20b-1b1cbbc9ebb9")

func init() {
	id, _ := types.NewPrefixUUID("job_6740b44e-13b9-475d-af06-979627e0e0d6")
	JobId = id
}

// RandomId returns a random UUID with the given prefix.
func RandomId(prefix string) types.PrefixUUID {
	id, err := guuid.NewV4()
	if err != nil {
		panic(err.Error())
	}
	return types.PrefixUUID{
		UUID:   id,
		Prefix: prefix,
	}
}

// OCRData returns an ocr payload for FileID in "both" mode.
func OCRData(t testing.TB) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(models.OCRPayload{
		FileID:     FileID,
		UserID:     UserID,
		StorageKey: "uploads/sample.pdf",
		Filename:   "sample.pdf",
		Mode:       models.ModeBoth,
	})
	test.AssertNotError(t, err, "marshaling ocr payload")
	return data
}

// SplitData returns a pdf-split payload for FileID.
func SplitData(t testing.TB) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(models.SplitPayload{
		FileID:           FileID,
		UserID:           UserID,
		StorageKey:       "uploads/sample.pdf",
		Filename:         "sample.pdf",
		OutputNamePrefix: "sample pages",
	})
	test.AssertNotError(t, err, "marshaling split payload")
	return data
}

// CreateQueuedJob enqueues a job of the given type with the given JSON data
// and a random id, and returns the created queued job. The job type registry
// is seeded by setup.PrepareAll, so any of the built-in types work here.
func CreateQueuedJob(t testing.TB, name models.JobType, data json.RawMessage) *models.QueuedJob {
	t.Helper()
	test.SetUp(t)
	qj, err := queued_jobs.Enqueue(RandomId("job_"), name, FileID, nil, time.Now().UTC(), types.NullTime{}, data)
	test.AssertNotError(t, err, fmt.Sprintf("Error creating queued job (type %s)", name))
	return qj
}

// CreateQJ creates an ocr queued job with a random id and a five-minute
// expiration.
func CreateQJ(t testing.TB) *models.QueuedJob {
	t.Helper()
	test.SetUp(t)
	expires := types.NullTime{
		Time:  time.Now().UTC().Add(5 * time.Minute),
		Valid: true,
	}
	qj, err := queued_jobs.Enqueue(RandomId("job_"), models.TypeOCR, FileID, nil, time.Now().UTC(), expires, OCRData(t))
	test.AssertNotError(t, err, "create queued job failed")
	return qj
}

// CreateArchivedJob enqueues a job and immediately archives it with the
// given terminal status.
func CreateArchivedJob(t testing.TB, status models.JobStatus) *models.ArchivedJob {
	t.Helper()
	qj := CreateQJ(t)
	var result *models.Result
	var errMsg string
	switch status {
	case models.StatusSucceeded:
		result = &models.Result{Success: true, Message: "done"}
	case models.StatusFailed:
		errMsg = "all attempts exhausted"
	}
	aj, err := archived_jobs.Create(qj.ID, qj.Name, status, qj.Attempts, result, errMsg)
	test.AssertNotError(t, err, "")
	err = queued_jobs.DeleteRetry(qj.ID, 3)
	test.AssertNotError(t, err, "")
	return aj
}
