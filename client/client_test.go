package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	types "github.com/Shyp/go-types"
	"github.com/Shyp/rest"
	"github.com/docmill/docmill/models"
	"github.com/docmill/docmill/test"
)

var jobID, _ = types.NewPrefixUUID("job_6740b44e-13b9-475d-af06-979627e0e0d6")

func TestEnqueueMakesCorrectRequest(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		test.AssertEquals(t, r.Method, "PUT")
		test.AssertEquals(t, r.URL.Path, "/v1/jobs/ocr/"+jobID.String())
		user, pass, ok := r.BasicAuth()
		test.Assert(t, ok, "expected basic auth")
		test.AssertEquals(t, user, "usr")
		test.AssertEquals(t, pass, "tok")
		test.AssertEquals(t, r.Header.Get("Content-Type"), "application/json; charset=utf-8")

		var ejr EnqueueRequest
		err := json.NewDecoder(r.Body).Decode(&ejr)
		test.AssertNotError(t, err, "")
		test.Assert(t, ejr.Data != nil, "expected a data payload")

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(&models.QueuedJob{
			ID:     jobID,
			Name:   models.TypeOCR,
			Status: models.StatusQueued,
		})
	}))
	defer s.Close()

	c := NewClient("usr", "tok", s.URL)
	qj, err := c.Job.Enqueue(jobID, models.TypeOCR, &EnqueueRequest{
		Data: json.RawMessage(`{"fileId": "b102094f-4343-46e6-bd90-41ba4902d1cf"}`),
	})
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, qj.ID.String(), jobID.String())
	test.AssertEquals(t, qj.Status, models.StatusQueued)
}

func TestStatusDecodesErrorResponse(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(&rest.Error{
			Title: "Resource not found",
			ID:    "not_found",
		})
	}))
	defer s.Close()

	c := NewClient("usr", "tok", s.URL)
	_, err := c.Job.Status(jobID)
	test.AssertError(t, err, "")
	rerr, ok := err.(*rest.Error)
	if !ok {
		t.Fatalf("expected a rest.Error, got %#v", err)
	}
	test.AssertEquals(t, rerr.ID, "not_found")
	test.AssertEquals(t, rerr.StatusCode, http.StatusNotFound)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		test.AssertEquals(t, r.Method, "DELETE")
		test.AssertEquals(t, r.URL.Path, "/v1/jobs/"+jobID.String())
		w.WriteHeader(http.StatusNoContent)
	}))
	defer s.Close()

	c := NewClient("usr", "tok", s.URL)
	err := c.Job.Cancel(jobID)
	test.AssertNotError(t, err, "")
}
