// Package client is a typed API client for the docmill job queue. Callers
// (the document-store CRUD API) use it to enqueue work and poll status over
// HTTP.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	types "github.com/Shyp/go-types"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/rest"
	"github.com/google/uuid"
)

const defaultHTTPTimeout = 6500 * time.Millisecond

var httpClient = &http.Client{Timeout: defaultHTTPTimeout}

// A Client makes requests against a running docmill server.
type Client struct {
	*rest.Client

	Job *JobService
}

// NewClient creates a new Client with the given basic auth credentials and
// base URL.
func NewClient(id, token, base string) *Client {
	c := &Client{Client: &rest.Client{
		ID:     id,
		Token:  token,
		Client: httpClient,
		Base:   base,
	}}
	c.Job = &JobService{Client: c}
	return c
}

// JobService makes requests against the /v1/jobs endpoints.
type JobService struct {
	Client *Client
}

// An EnqueueRequest is the body of an enqueue call. Data must carry at least
// a fileId; its shape otherwise depends on the job type (see the payload
// types in the models package).
type EnqueueRequest struct {
	Data      json.RawMessage `json:"data"`
	Priority  *int16          `json:"priority,omitempty"`
	RunAfter  types.NullTime  `json:"run_after"`
	ExpiresAt types.NullTime  `json:"expires_at"`
}

// Enqueue schedules a job of the given type with the given id. Enqueueing
// the same id twice returns the existing job.
func (js *JobService) Enqueue(id types.PrefixUUID, name models.JobType, params *EnqueueRequest) (*models.QueuedJob, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	req, err := js.Client.NewRequest("PUT", fmt.Sprintf("/v1/jobs/%s/%s", name, id), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	qj := new(models.QueuedJob)
	if err := js.Client.Do(req, qj); err != nil {
		return nil, err
	}
	return qj, nil
}

// Status returns the status projection for a job.
func (js *JobService) Status(id types.PrefixUUID) (*models.ProcessingStatus, error) {
	req, err := js.Client.NewRequest("GET", "/v1/jobs/"+id.String(), nil)
	if err != nil {
		return nil, err
	}
	status := new(models.ProcessingStatus)
	if err := js.Client.Do(req, status); err != nil {
		return nil, err
	}
	return status, nil
}

// Cancel removes a still-waiting job from the queue. The server responds
// with a conflict error once the job has started running.
func (js *JobService) Cancel(id types.PrefixUUID) error {
	req, err := js.Client.NewRequest("DELETE", "/v1/jobs/"+id.String(), nil)
	if err != nil {
		return err
	}
	return js.Client.Do(req, nil)
}

// ListByFile returns every job referencing the file, ordered by enqueue time
// ascending.
func (js *JobService) ListByFile(fileID uuid.UUID) ([]*models.ProcessingStatus, error) {
	req, err := js.Client.NewRequest("GET", fmt.Sprintf("/v1/files/%s/jobs", fileID), nil)
	if err != nil {
		return nil, err
	}
	var statuses []*models.ProcessingStatus
	if err := js.Client.Do(req, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}
