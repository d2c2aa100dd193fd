// Logic for interacting with the "jobs" table: the closed registry of
// document-processing job types.
package jobs

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	dberror "github.com/Shyp/go-dberror"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/db"
	"github.com/lib/pq"
)

func init() {
	dberror.RegisterConstraint(attemptsConstraint)
}

// MaxAttempts is the retry budget given to every registered job type.
var MaxAttempts = uint8(3)

var insertJobStmt *sql.Stmt
var getJobStmt *sql.Stmt
var getAllJobStmt *sql.Stmt

// Setup prepares all database queries in this package.
func Setup() (err error) {
	if !db.Connected() {
		return errors.New("No database connection, bailing")
	}

	if insertJobStmt != nil {
		return
	}

	insertJobStmt, err = db.Conn.Prepare(fmt.Sprintf(`-- jobs.Create
INSERT INTO jobs (%s) VALUES ($1, $2, $3) RETURNING %s`,
		fields(false), fields(true)))
	if err != nil {
		return err
	}

	getJobStmt, err = db.Conn.Prepare(fmt.Sprintf(`-- jobs.Get
SELECT %s
FROM jobs
WHERE name = $1`, fields(true)))
	if err != nil {
		return err
	}

	getAllJobStmt, err = db.Conn.Prepare(fmt.Sprintf(`-- jobs.GetAll
SELECT %s
FROM jobs`, fields(true)))
	if err != nil {
		return err
	}

	return
}

func Create(job models.Job) (*models.Job, error) {
	dbJob := new(models.Job)
	err := insertJobStmt.QueryRow(job.Name, job.MaxAttempts, job.Priority).Scan(args(dbJob)...)
	if err != nil {
		err = dberror.GetError(err)
	}
	return dbJob, err
}

// CreateDefaults registers the four job types with their default priorities.
// Existing rows are left alone, so this is safe to run on every boot.
func CreateDefaults() error {
	for _, name := range models.AllJobTypes {
		_, err := Create(models.Job{
			Name:        name,
			MaxAttempts: MaxAttempts,
			Priority:    name.DefaultPriority(),
		})
		if err != nil {
			switch dberr := err.(type) {
			case *dberror.Error:
				if dberr.Code == dberror.CodeUniqueViolation {
					continue
				}
				return err
			default:
				return err
			}
		}
	}
	return nil
}

// Get a job type by name.
func Get(name models.JobType) (*models.Job, error) {
	job := new(models.Job)
	err := getJobStmt.QueryRow(name).Scan(args(job)...)
	return job, err
}

func GetAll() ([]*models.Job, error) {
	rows, err := getAllJobStmt.Query()
	if err != nil {
		return []*models.Job{}, err
	}
	defer rows.Close()
	var jobs []*models.Job
	for rows.Next() {
		job := new(models.Job)
		if err := rows.Scan(args(job)...); err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	err = rows.Err()
	return jobs, err
}

// GetRetry attempts to get the job `attempts` times before giving up.
func GetRetry(name models.JobType, attempts uint8) (job *models.Job, err error) {
	for i := uint8(0); i < attempts; i++ {
		job, err = Get(name)
		if err == nil || err == sql.ErrNoRows {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	return
}

func fields(includeCreatedAt bool) string {
	if includeCreatedAt {
		return `name,
max_attempts,
priority,
created_at`
	} else {
		return `name,
max_attempts,
priority`
	}
}

func args(job *models.Job) []interface{} {
	return []interface{}{
		&job.Name,
		&job.MaxAttempts,
		&job.Priority,
		&job.CreatedAt,
	}
}

var attemptsConstraint = &dberror.Constraint{
	Name: "jobs_max_attempts_check",
	GetError: func(e *pq.Error) *dberror.Error {
		return &dberror.Error{
			Message:    "Please set a greater-than-zero number of attempts",
			Constraint: e.Constraint,
			Table:      e.Table,
			Severity:   e.Severity,
			Detail:     e.Detail,
		}
	},
}
