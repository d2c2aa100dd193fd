// Package server provides the HTTP interface for the document-processing
// queue.
package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"net/http/pprof"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/Shyp/go-dberror"
	metrics "github.com/Shyp/go-simple-metrics"
	types "github.com/Shyp/go-types"
	"github.com/Shyp/rest"
	"github.com/docmill/docmill/config"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/models/jobs"
	"github.com/docmill/docmill/models/queued_jobs"
	"github.com/docmill/docmill/services"
	"github.com/google/uuid"
)

// The maximum payload size that can be sent in the body of a HTTP request.
const MAX_ENQUEUE_DATA_SIZE = 100 * 1024

var disallowUnencryptedRequests = true

// DefaultServer serves every route using the DefaultAuthorizer for
// authentication.
var DefaultServer http.Handler

// GET/DELETE /v1/jobs/job_123
var getJobRoute = regexp.MustCompile(`^/v1/jobs/(?P<id>job_[^\s\/]+)$`)

// GET /v1/jobs/types/:job-type
//
// Must go before the jobIdRoute so "types" is not read as a job type.
var jobTypeRoute = regexp.MustCompile(`^/v1/jobs/types/(?P<JobType>[^\s\/]+)$`)

// PUT /v1/jobs/:job-type/:id
var jobIdRoute = regexp.MustCompile(`^/v1/jobs/(?P<JobType>[^\s\/]+)/(?P<id>job_[^\s\/]+|random_id)$`)

// GET /v1/files/:file-id/jobs
var fileJobsRoute = regexp.MustCompile(`^/v1/files/(?P<fileId>[^\s\/]+)/jobs$`)

// Get returns a http.Handler with all routes initialized using the given
// Authorizer.
func Get(a Authorizer) http.Handler {
	h := new(RegexpHandler)

	h.Handler(jobTypeRoute, []string{"GET"}, authHandler(getJobType(), a))
	h.Handler(getJobRoute, []string{"GET", "DELETE"}, authHandler(handleJobRoute(), a))
	h.Handler(jobIdRoute, []string{"PUT"}, authHandler(enqueueJob(), a))
	h.Handler(fileJobsRoute, []string{"GET"}, authHandler(listFileJobs(), a))

	h.Handler(regexp.MustCompile("^/debug/pprof$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Index), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/cmdline$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Cmdline), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/profile$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Profile), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/symbol$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Symbol), a))
	h.Handler(regexp.MustCompile("^/debug/pprof/trace$"), []string{"GET"}, authHandler(http.HandlerFunc(pprof.Trace), a))

	h.Handler(regexp.MustCompile("^/$"), []string{"GET"}, authHandler(http.HandlerFunc(renderHomepage), a))

	return debugRequestBodyHandler(
		serverHeaderHandler(
			forbidNonTLSTrafficHandler(h),
		),
	)
}

func init() {
	DefaultServer = Get(DefaultAuthorizer)
	disallowUnencryptedRequests = os.Getenv("ALLOW_UNENCRYPTED_PROXY_TRAFFIC") != "true"
}

func serverHeaderHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hack, figure out how to put middleware on a subset of responses
		if strings.Contains(r.URL.Path, "/debug/pprof") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		} else if r.URL.Path == "/" {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
		} else {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}
		w.Header().Set("Server", fmt.Sprintf("docmill/%s", config.Version))
		h.ServeHTTP(w, r)
	})
}

// forbidNonTLSTrafficHandler returns a 403 to traffic that is sent via a proxy
func forbidNonTLSTrafficHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if disallowUnencryptedRequests == true {
			if r.Header.Get("X-Forwarded-Proto") == "http" {
				// It should always be set, but if it's not, let the request
				// through.
				forbidden(w, insecure403(r))
				return
			}
		}
		// This header doesn't mean anything when served over HTTP, but
		// detecting HTTPS in a general way is hard, so let's just send it
		// every time.
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		h.ServeHTTP(w, r)
	})
}

func authHandler(h http.Handler, a Authorizer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, token, ok := r.BasicAuth()
		if !ok {
			authenticate(w, new401(r))
			return
		}
		err := a.Authorize(user, token)
		if err != nil {
			metrics.Increment("auth.error")
			handleAuthorizeError(w, r, err)
			return
		}
		metrics.Increment("auth.success")
		h.ServeHTTP(w, r)
	})
}

// debugRequestBodyHandler prints all incoming and outgoing HTTP traffic if the
// DEBUG_HTTP_TRAFFIC environment variable is set to true. Note that the output
// will be jumbled if the server is handling multiple requests at the same
// time.
func debugRequestBodyHandler(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if os.Getenv("DEBUG_HTTP_TRAFFIC") == "true" {
			// You need to write the entire thing in one Write, otherwise the
			// output will be jumbled with other requests.
			b := new(bytes.Buffer)
			bits, err := httputil.DumpRequest(r, true)
			if err != nil {
				_, _ = b.WriteString(err.Error())
			} else {
				_, _ = b.Write(bits)
			}
			res := httptest.NewRecorder()
			h.ServeHTTP(res, r)

			_, _ = b.WriteString(fmt.Sprintf("HTTP/1.1 %d\r\n", res.Code))
			_ = res.HeaderMap.Write(b)
			for k, v := range res.HeaderMap {
				w.Header()[k] = v
			}
			w.WriteHeader(res.Code)
			_, _ = b.WriteString("\r\n")
			writer := io.MultiWriter(w, b)
			_, _ = res.Body.WriteTo(writer)
			_, _ = b.WriteTo(os.Stderr)
		} else {
			h.ServeHTTP(w, r)
		}
	})
}

// GET /v1/jobs/types/:job-type
//
// Get a registered job type by name. Returns a models.Job or an error.
func getJobType() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		typeStr := jobTypeRoute.FindStringSubmatch(r.URL.Path)[1]
		job, err := jobs.Get(models.JobType(typeStr))
		if err != nil {
			if err == sql.ErrNoRows {
				notFound(w, new404(r))
				return
			}
			writeServerError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(job)
	})
}

// An EnqueueJobRequest is sent in the body of a request to PUT
// /v1/jobs/:job-type/:job-id.
type EnqueueJobRequest struct {
	// Job payload to enqueue. Must carry at least a fileId.
	Data json.RawMessage `json:"data"`
	// Lower value runs sooner. If not specified, defaults to the job type's
	// priority.
	Priority *int16 `json:"priority"`
	// The earliest time we can run this job. If not specified, defaults to
	// the current time.
	RunAfter types.NullTime `json:"run_after"`
	// The latest time we can run this job. If not specified, defaults to
	// null (never expires).
	ExpiresAt types.NullTime `json:"expires_at"`
}

// PUT /v1/jobs/:job-type/:id
//
// Enqueue a new job.
func enqueueJob() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil {
			badRequest(w, r, createEmptyErr("data", r.URL.Path))
			return
		}
		defer r.Body.Close()
		var ejr EnqueueJobRequest
		err := json.NewDecoder(r.Body).Decode(&ejr)
		if err != nil {
			badRequest(w, r, &rest.Error{
				ID:    "invalid_request",
				Title: "Invalid request: bad JSON. Double check the types of the fields you sent",
			})
			return
		}
		if ejr.Data == nil {
			badRequest(w, r, createEmptyErr("data", r.URL.Path))
			return
		}
		if len(ejr.Data) > MAX_ENQUEUE_DATA_SIZE {
			err := &rest.Error{
				ID:    "entity_too_large",
				Title: "Data parameter is too large (100KB max)",
			}
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			json.NewEncoder(w).Encode(err)
			return
		}
		// Every payload shape carries the file being operated on; it doubles
		// as the correlation key for GET /v1/files/:file-id/jobs.
		var payload struct {
			FileID uuid.UUID `json:"fileId"`
		}
		if err := json.Unmarshal(ejr.Data, &payload); err != nil || payload.FileID == uuid.Nil {
			badRequest(w, r, &rest.Error{
				ID:       "missing_parameter",
				Title:    "Missing required field: data.fileId",
				Instance: r.URL.Path,
			})
			return
		}
		if !ejr.RunAfter.Valid {
			ejr.RunAfter = types.NullTime{
				Valid: true,
				Time:  time.Now().UTC(),
			}
		}
		idStr := jobIdRoute.FindStringSubmatch(r.URL.Path)[2]
		var id types.PrefixUUID
		// Load testing tools can only hit one URL. This is a hack to allow
		// random IDs to be generated/inserted, even though the client is
		// hitting the same URL.
		//
		// Clients *must not* use random_id, they must generate their own
		// UUIDs.
		if idStr == "random_id" {
			id, err = types.GenerateUUID("job_")
			if err != nil {
				writeServerError(w, r, err)
				return
			}
		} else {
			var wroteResponse bool
			id, wroteResponse = getId(w, r, idStr)
			if wroteResponse == true {
				return
			}
		}
		name := models.JobType(jobIdRoute.FindStringSubmatch(r.URL.Path)[1])
		queuedJob, err := queued_jobs.Enqueue(id, name, payload.FileID, ejr.Priority, ejr.RunAfter.Time, ejr.ExpiresAt, ejr.Data)
		if err != nil {
			switch terr := err.(type) {
			case *queued_jobs.UnknownOrArchivedError:
				_, err = jobs.GetRetry(name, 3)
				if err != nil && err == sql.ErrNoRows {
					nfe := &rest.Error{
						Title:    fmt.Sprintf("Job type %s not found", name),
						ID:       "job_type_not_found",
						Instance: fmt.Sprintf("/v1/jobs/%s", name),
					}
					notFound(w, nfe)
					metrics.Increment(fmt.Sprintf("enqueue.%s.not_found", name))
					return
				} else {
					alreadyArchived := &rest.Error{
						Title:    "Job has already been archived",
						ID:       "job_already_archived",
						Instance: fmt.Sprintf("/v1/jobs/%s/%s", name, id.String()),
					}
					badRequest(w, r, alreadyArchived)
					metrics.Increment("enqueue.error.already_archived")
					return
				}
			case *dberror.Error:
				if terr.Code == dberror.CodeUniqueViolation {
					// Idempotent enqueue; hand back the existing job.
					queuedJob, err = queued_jobs.Get(id)
					if err != nil {
						writeServerError(w, r, err)
						return
					}
					break
				}
				apierr := &rest.Error{
					Title:    terr.Message,
					ID:       "invalid_parameter",
					Instance: r.URL.Path,
				}
				badRequest(w, r, apierr)
				metrics.Increment(fmt.Sprintf("enqueue.%s.failure", name))
				return
			default:
				writeServerError(w, r, err)
				metrics.Increment(fmt.Sprintf("enqueue.%s.error", name))
				return
			}
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(queuedJob)
		metrics.Increment("enqueue.success")
		metrics.Increment(fmt.Sprintf("enqueue.%s.success", name))
	})
}

// GET/DELETE disambiguator for /v1/jobs/:id
func handleJobRoute() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "DELETE" {
			cancelJob().ServeHTTP(w, r)
		} else {
			getJobStatus().ServeHTTP(w, r)
		}
	})
}

// GET /v1/jobs/:id
//
// Returns the caller-facing status projection of a job, wherever it lives,
// or a 404 Not Found error.
func getJobStatus() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := getJobRoute.FindStringSubmatch(r.URL.Path)[1]
		id, wroteResponse := getId(w, r, idStr)
		if wroteResponse == true {
			return
		}
		status, err := services.GetStatus(id)
		if err != nil {
			writeServerError(w, r, err)
			go metrics.Increment("job.get.error")
			return
		}
		if status == nil {
			notFound(w, new404(r))
			go metrics.Increment("job.get.not_found")
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(status)
		go metrics.Increment("job.get.success")
	})
}

// DELETE /v1/jobs/:id
//
// Cancel a still-waiting job. 204 on success, 404 for unknown ids, and 409
// once the job has started running or finished.
func cancelJob() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := getJobRoute.FindStringSubmatch(r.URL.Path)[1]
		id, wroteResponse := getId(w, r, idStr)
		if wroteResponse == true {
			return
		}
		cancelled, err := services.Cancel(id)
		if err != nil {
			writeServerError(w, r, err)
			go metrics.Increment("job.cancel.error")
			return
		}
		if cancelled {
			w.WriteHeader(http.StatusNoContent)
			go metrics.Increment("job.cancel.success")
			return
		}
		status, err := services.GetStatus(id)
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		if status == nil {
			notFound(w, new404(r))
			go metrics.Increment("job.cancel.not_found")
			return
		}
		conflict := &rest.Error{
			Title:    fmt.Sprintf("Job is %s and can no longer be cancelled", status.Status),
			ID:       "job_not_waiting",
			Instance: r.URL.Path,
		}
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(conflict)
		go metrics.Increment("job.cancel.conflict")
	})
}

// GET /v1/files/:file-id/jobs
//
// List every job, live or archived, referencing the file, ordered by enqueue
// time ascending.
func listFileJobs() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fileStr := fileJobsRoute.FindStringSubmatch(r.URL.Path)[1]
		fileID, err := uuid.Parse(fileStr)
		if err != nil {
			badRequest(w, r, &rest.Error{
				ID:       "invalid_uuid",
				Title:    fmt.Sprintf("Invalid file id: %s", fileStr),
				Instance: r.URL.Path,
			})
			return
		}
		statuses, err := services.ListByFile(fileID)
		if err != nil {
			writeServerError(w, r, err)
			go metrics.Increment("job.list_by_file.error")
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(statuses)
		go metrics.Increment("job.list_by_file.success")
	})
}
