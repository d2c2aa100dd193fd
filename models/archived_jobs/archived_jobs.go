// Logic for interacting with the "archived_jobs" table.
package archived_jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	dberror "github.com/Shyp/go-dberror"
	types "github.com/Shyp/go-types"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/db"
	"github.com/docmill/docmill/models/queued_jobs"
	"github.com/google/uuid"
)

const Prefix = "job_"

// ErrNotFound indicates that the archived job was not found.
var ErrNotFound = errors.New("Archived job not found")

var createStmt *sql.Stmt
var cancelStmt *sql.Stmt
var getStmt *sql.Stmt
var listByFileStmt *sql.Stmt
var deleteOlderThanStmt *sql.Stmt

// Setup prepares all database statements.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	if createStmt != nil {
		return
	}

	query := fmt.Sprintf(`-- archived_jobs.Create
INSERT INTO archived_jobs (%s)
SELECT id, $2, file_id, $4, $3, data, $5, $6, created_at, expires_at
FROM queued_jobs
WHERE id=$1
AND name=$2
RETURNING %s`, insertFields(), fields())
	createStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	// The queue row is removed and the archive row written in one statement.
	// DELETE takes the row lock, so a cancel racing an Acquire waits for it
	// and then re-checks the status guard: whichever commits first wins, and
	// a job a worker holds can never be archived cancelled. An in-progress
	// job always runs to a terminal state.
	query = fmt.Sprintf(`-- archived_jobs.CreateCancelled
WITH cancelled_job AS (
	DELETE FROM queued_jobs
	WHERE id=$1
	AND status='%s'
	RETURNING id, name, file_id, attempts, data, created_at, expires_at
)
INSERT INTO archived_jobs (%s)
SELECT id, name, file_id, attempts, '%s', data, NULL, NULL, created_at, expires_at
FROM cancelled_job
RETURNING %s`, models.StatusQueued, insertFields(), models.StatusCancelled, fields())
	cancelStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- archived_jobs.Get
SELECT %s
FROM archived_jobs
WHERE id = $1`, fields())
	getStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- archived_jobs.ListByFile
SELECT %s
FROM archived_jobs
WHERE file_id = $1
ORDER BY enqueued_at ASC`, fields())
	listByFileStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- archived_jobs.DeleteOlderThan
DELETE FROM archived_jobs WHERE status=$1 AND created_at < $2`
	deleteOlderThanStmt, err = db.Conn.Prepare(query)
	return
}

// Create an archived job with the given id, status, attempts, and outcome.
// Assumes that the job already exists in the queued_jobs table; the payload
// and enqueue time are copied from there. A succeeded job carries the
// handler's result, a failed one the last error message. If the job does not
// exist, queued_jobs.ErrNotFound is returned.
func Create(id types.PrefixUUID, name models.JobType, status models.JobStatus, attempt uint8, result *models.Result, errMsg string) (*models.ArchivedJob, error) {
	var res types.NullString
	if result != nil {
		bits, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		res = types.NullString{Valid: true, String: string(bits)}
	}
	var jobErr types.NullString
	if errMsg != "" {
		jobErr = types.NullString{Valid: true, String: errMsg}
	}
	aj := new(models.ArchivedJob)
	var bt []byte
	err := createStmt.QueryRow(id, name, status, attempt, res, jobErr).Scan(args(aj, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, queued_jobs.ErrNotFound
		}
		err = dberror.GetError(err)
		return nil, err
	}
	aj.Data = json.RawMessage(bt)
	return aj, nil
}

// CreateCancelled atomically removes a still-waiting job from the queue and
// archives it with the cancelled status. If the job doesn't exist, or has
// already been dequeued, queued_jobs.ErrNotFound is returned and the job is
// untouched.
func CreateCancelled(id types.PrefixUUID) (*models.ArchivedJob, error) {
	aj := new(models.ArchivedJob)
	var bt []byte
	err := cancelStmt.QueryRow(id).Scan(args(aj, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, queued_jobs.ErrNotFound
		}
		err = dberror.GetError(err)
		return nil, err
	}
	aj.Data = json.RawMessage(bt)
	return aj, nil
}

// Get returns the archived job with the given id, or ErrNotFound if it's
// not present.
func Get(id types.PrefixUUID) (*models.ArchivedJob, error) {
	if id.UUID == nil {
		return nil, errors.New("Invalid id")
	}
	aj := new(models.ArchivedJob)
	var bt []byte
	err := getStmt.QueryRow(id).Scan(args(aj, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		err = dberror.GetError(err)
		return nil, err
	}
	aj.Data = json.RawMessage(bt)
	return aj, nil
}

// GetRetry attempts to retrieve the job attempts times before giving up.
func GetRetry(id types.PrefixUUID, attempts uint8) (job *models.ArchivedJob, err error) {
	for i := uint8(0); i < attempts; i++ {
		job, err = Get(id)
		if err == nil || err == ErrNotFound {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return
}

// ListByFile returns every archived job that operated on the given file,
// ordered by enqueue time ascending, matching the queued_jobs ordering.
func ListByFile(fileID uuid.UUID) ([]*models.ArchivedJob, error) {
	rows, err := listByFileStmt.Query(fileID)
	var jobs []*models.ArchivedJob
	if err != nil {
		return jobs, err
	}
	defer rows.Close()
	for rows.Next() {
		aj := new(models.ArchivedJob)
		var bt []byte
		err = rows.Scan(args(aj, &bt)...)
		if err != nil {
			return jobs, err
		}
		aj.Data = json.RawMessage(bt)
		jobs = append(jobs, aj)
	}
	err = rows.Err()
	return jobs, err
}

// DeleteOlderThan removes archived jobs with the given terminal status that
// reached it before the cutoff. Returns the number of rows removed.
func DeleteOlderThan(status models.JobStatus, cutoff time.Time) (int64, error) {
	res, err := deleteOlderThanStmt.Exec(status, cutoff)
	if err != nil {
		return 0, dberror.GetError(err)
	}
	return res.RowsAffected()
}

func insertFields() string {
	return `id,
	name,
	file_id,
	attempts,
	status,
	data,
	result,
	error,
	enqueued_at,
	expires_at`
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	name,
	file_id,
	attempts,
	status,
	data,
	result,
	error,
	enqueued_at,
	created_at,
	expires_at`, Prefix)
}

func args(aj *models.ArchivedJob, byteptr *[]byte) []interface{} {
	return []interface{}{
		&aj.ID,
		&aj.Name,
		&aj.FileID,
		&aj.Attempts,
		&aj.Status,
		// can't scan into Data because of https://github.com/golang/go/issues/13905
		byteptr,
		&aj.Result,
		&aj.Error,
		&aj.EnqueuedAt,
		&aj.CreatedAt,
		&aj.ExpiresAt,
	}
}
