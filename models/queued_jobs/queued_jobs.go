// Logic for interacting with the "queued_jobs" table.
package queued_jobs

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
	"github.com/google/uuid"
)

const Prefix = "job_"

// ErrNotFound indicates that the job was not found.
var ErrNotFound = errors.New("Queued job not found")

// UnknownOrArchivedError is raised when the job type is unknown or the job
// has already been archived. It's unfortunate we can't distinguish these, but
// more important to minimize the total number of queries to the database.
type UnknownOrArchivedError struct {
	Err string
}

func (e *UnknownOrArchivedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Err
}

var enqueueStmt *sql.Stmt
var getStmt *sql.Stmt
var deleteStmt *sql.Stmt
var acquireStmt *sql.Stmt
var requeueStmt *sql.Stmt
var progressStmt *sql.Stmt
var listByFileStmt *sql.Stmt
var countReadyAndAllStmt *sql.Stmt
var countsByStatusStmt *sql.Stmt
var oldJobsStmt *sql.Stmt

// StuckJobLimit is the maximum number of stuck jobs to fetch in one database
// query.
var StuckJobLimit = 100

func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No DB connection was established, can't query")
	}

	if enqueueStmt != nil {
		return
	}

	query := fmt.Sprintf(`-- queued_jobs.Enqueue
INSERT INTO queued_jobs (%s)
SELECT $1, name, $3, 0, COALESCE($4, priority), 0, $5, $6, '%s', $7
FROM jobs
WHERE name=$2
AND NOT EXISTS (
	SELECT id FROM archived_jobs WHERE id=$1
)
RETURNING %s`, insertFields(), models.StatusQueued, fields())
	enqueueStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- queued_jobs.Get
SELECT %s
FROM queued_jobs
WHERE id = $1`, fields())
	getStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- queued_jobs.Delete
	DELETE FROM queued_jobs WHERE id = $1`
	deleteStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	// The priority/created_at sort is the queue's entire ordering contract:
	// lower priority value first, oldest first within a priority.
	query = fmt.Sprintf(`-- queued_jobs.Acquire
WITH queued_job as (
	SELECT id AS inner_id
	FROM queued_jobs
	WHERE status='%[1]s'
		AND run_after <= now()
	ORDER BY priority ASC, created_at ASC
	LIMIT 1
	FOR UPDATE
) UPDATE queued_jobs
SET status='%[2]s',
	updated_at=now(),
	attempts=attempts + 1
FROM queued_job
WHERE queued_jobs.id = queued_job.inner_id
	AND status='%[1]s'
RETURNING %[3]s`, models.StatusQueued, models.StatusInProgress, fields())
	acquireStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- queued_jobs.Requeue
UPDATE queued_jobs
SET status = '%s',
	updated_at = now(),
	run_after = $3
WHERE id = $1
	AND attempts=$2
	RETURNING %s`, models.StatusQueued, fields())
	requeueStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	// GREATEST keeps progress monotonic even if callbacks land out of order.
	query = fmt.Sprintf(`-- queued_jobs.SetProgress
UPDATE queued_jobs
SET progress = GREATEST(progress, $2),
	updated_at = now()
WHERE id = $1
	AND status='%s'`, models.StatusInProgress)
	progressStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- queued_jobs.ListByFile
SELECT %s
FROM queued_jobs
WHERE file_id = $1
ORDER BY created_at ASC`, fields())
	listByFileStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- queued_jobs.CountReadyAndAll
WITH all_count AS (
	SELECT count(*) FROM queued_jobs
), ready_count AS (
	SELECT count(*) FROM queued_jobs WHERE run_after <= now()
)
SELECT all_count.count, ready_count.count
FROM all_count, ready_count`
	countReadyAndAllStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = `-- queued_jobs.GetCountsByStatus
SELECT name, count(*) FROM queued_jobs WHERE status=$1 GROUP BY name`
	countsByStatusStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}

	query = fmt.Sprintf(`-- queued_jobs.GetOldInProgressJobs
SELECT %s FROM queued_jobs WHERE status='%s' AND updated_at < $1 LIMIT %d`,
		fields(), models.StatusInProgress, StuckJobLimit)
	oldJobsStmt, err = db.Conn.Prepare(query)
	if err != nil {
		return err
	}
	return
}

// Enqueue creates a new queued job with the given ID and fields. The job
// starts in the "queued" state with zero attempts. A nil priority takes the
// job type's default. A sql.ErrNoRows from the underlying insert means the
// job type is unknown or the id was already archived; that's reported as an
// UnknownOrArchivedError.
func Enqueue(id types.PrefixUUID, name models.JobType, fileID uuid.UUID, priority *int16, runAfter time.Time, expiresAt types.NullTime, data json.RawMessage) (*models.QueuedJob, error) {
	var pri sql.NullInt64
	if priority != nil {
		pri = sql.NullInt64{Valid: true, Int64: int64(*priority)}
	}
	qj := new(models.QueuedJob)
	// need to scan into a []byte, https://github.com/golang/go/issues/13905
	var bt []byte
	err := enqueueStmt.QueryRow(id, name, fileID, pri, runAfter, expiresAt, []byte(data)).Scan(args(qj, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			e := &UnknownOrArchivedError{
				Err: fmt.Sprintf("Job type %s does not exist or the job with that id has already been archived", name),
			}
			return nil, e
		}
		return nil, dberror.GetError(err)
	}
	qj.Data = json.RawMessage(bt)
	return qj, err
}

// Get the queued job with the given id. Returns the job, or an error. If no
// record could be found, the error will be `queued_jobs.ErrNotFound`.
func Get(id types.PrefixUUID) (*models.QueuedJob, error) {
	if id.UUID == nil {
		return nil, errors.New("Invalid id")
	}
	qj := new(models.QueuedJob)
	var bt []byte
	err := getStmt.QueryRow(id).Scan(args(qj, &bt)...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, dberror.GetError(err)
	}
	qj.Data = json.RawMessage(bt)
	return qj, nil
}

// GetRetry attempts to retrieve the job attempts times before giving up.
func GetRetry(id types.PrefixUUID, attempts uint8) (job *models.QueuedJob, err error) {
	for i := uint8(0); i < attempts; i++ {
		job, err = Get(id)
		if err == nil || err == ErrNotFound {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return
}

// Delete deletes the given queued job. Returns nil if the job was deleted
// successfully. If no job exists to be deleted, ErrNotFound is returned.
func Delete(id types.PrefixUUID) error {
	if id.UUID == nil {
		return errors.New("Invalid id")
	}
	res, err := deleteStmt.Exec(id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	} else if rows == 1 {
		return nil
	} else {
		// This should not be possible because of database constraints
		return fmt.Errorf("Multiple rows (%d) deleted for job %s, please investigate", rows, id)
	}
}

// DeleteRetry attempts to Delete the item `attempts` times.
func DeleteRetry(id types.PrefixUUID, attempts uint8) error {
	for i := uint8(0); i < attempts; i++ {
		err := Delete(id)
		if err == nil || err == ErrNotFound {
			return err
		}
	}
	return nil
}

// Acquire the highest-priority queued job that's able to run now,
// transitioning it to in-progress and incrementing its attempt counter.
// Concurrent callers never receive the same job. Returns sql.ErrNoRows if no
// jobs are available.
func Acquire() (*models.QueuedJob, error) {
	qj := new(models.QueuedJob)
	var bt []byte

	rows, err := acquireStmt.Query()
	if err != nil {
		err = dberror.GetError(err)
		return nil, err
	}
	defer rows.Close()
	count := 0
	scanned := false
	for rows.Next() {
		count += 1
		if !scanned {
			rows.Scan(args(qj, &bt)...)
			scanned = true
		}
	}
	if count == 0 {
		return nil, sql.ErrNoRows
	}
	if count > 1 {
		panic(fmt.Sprintf("Too many rows affected by Acquire: %d", count))
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	qj.Data = json.RawMessage(bt)
	return qj, nil
}

// Requeue sets an in-progress job's status back to 'queued' with a run_after
// in the future - a visible retry. If the queued job does not exist, or the
// attempts counter in the database does not match the passed in attempts
// value, sql.ErrNoRows will be returned.
func Requeue(id types.PrefixUUID, attempts uint8, runAfter time.Time) (*models.QueuedJob, error) {
	qj := new(models.QueuedJob)
	var bt []byte
	err := requeueStmt.QueryRow(id, attempts, runAfter).Scan(args(qj, &bt)...)
	if err != nil {
		err = dberror.GetError(err)
		return nil, err
	}
	qj.Data = json.RawMessage(bt)
	return qj, nil
}

// SetProgress records percent-complete for an in-progress job. Progress only
// ever moves forward. Returns ErrNotFound if the job doesn't exist or isn't
// in-progress anymore.
func SetProgress(id types.PrefixUUID, percent int16) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("Invalid progress percent %d", percent)
	}
	res, err := progressStmt.Exec(id, percent)
	if err != nil {
		return dberror.GetError(err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByFile returns every queued job operating on the given file, oldest
// first.
func ListByFile(fileID uuid.UUID) ([]*models.QueuedJob, error) {
	rows, err := listByFileStmt.Query(fileID)
	var jobs []*models.QueuedJob
	if err != nil {
		return jobs, err
	}
	defer rows.Close()
	for rows.Next() {
		qj := new(models.QueuedJob)
		var bt []byte
		err = rows.Scan(args(qj, &bt)...)
		if err != nil {
			return jobs, err
		}
		qj.Data = json.RawMessage(bt)
		jobs = append(jobs, qj)
	}
	err = rows.Err()
	return jobs, err
}

// GetOldInProgressJobs finds queued in-progress jobs with an updated_at
// timestamp older than olderThan. A maximum of StuckJobLimit jobs will be
// returned.
func GetOldInProgressJobs(olderThan time.Time) ([]*models.QueuedJob, error) {
	rows, err := oldJobsStmt.Query(olderThan)
	var jobs []*models.QueuedJob
	if err != nil {
		return jobs, err
	}
	defer rows.Close()
	for rows.Next() {
		qj := new(models.QueuedJob)
		var bt []byte
		err = rows.Scan(args(qj, &bt)...)
		if err != nil {
			return jobs, err
		}
		qj.Data = json.RawMessage(bt)
		jobs = append(jobs, qj)
	}
	err = rows.Err()
	return jobs, err
}

// CountReadyAndAll returns the total number of queued and ready jobs in the
// table.
func CountReadyAndAll() (allCount int, readyCount int, err error) {
	err = countReadyAndAllStmt.QueryRow().Scan(&allCount, &readyCount)
	return
}

// GetCountsByStatus returns a map with each job type as the key, followed by
// the number of <status> jobs it has. For example:
//
// "ocr": 5,
// "pdf-thumbnail": 7,
func GetCountsByStatus(status models.JobStatus) (map[string]int64, error) {
	rows, err := countsByStatusStmt.Query(status)
	m := make(map[string]int64)
	if err != nil {
		return m, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int64
		err = rows.Scan(&name, &count)
		if err != nil {
			return m, err
		}
		m[name] = count
	}
	err = rows.Err()
	return m, err
}

func insertFields() string {
	return `id,
	name,
	file_id,
	attempts,
	priority,
	progress,
	run_after,
	expires_at,
	status,
	data`
}

func fields() string {
	return fmt.Sprintf(`'%s' || id,
	name,
	file_id,
	attempts,
	priority,
	progress,
	run_after,
	expires_at,
	status,
	data,
	created_at,
	updated_at`, Prefix)
}

func args(qj *models.QueuedJob, byteptr *[]byte) []interface{} {
	return []interface{}{
		&qj.ID,
		&qj.Name,
		&qj.FileID,
		&qj.Attempts,
		&qj.Priority,
		&qj.Progress,
		&qj.RunAfter,
		&qj.ExpiresAt,
		&qj.Status,
		// can't scan into Data because of https://github.com/golang/go/issues/13905
		byteptr,
		&qj.CreatedAt,
		&qj.UpdatedAt,
	}
}
