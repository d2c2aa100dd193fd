package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Shyp/rest"
	"github.com/docmill/docmill/config"
	"github.com/docmill/docmill/test"
)

var u = &UnsafeBypassAuthorizer{}

var empty = json.RawMessage([]byte("{}"))

func newSSAServer() (*SharedSecretAuthorizer, http.Handler) {
	ssa := NewSharedSecretAuthorizer()
	return ssa, Get(ssa)
}

func Test404JSONUnknownResource(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/foo/unknown", nil)
	DefaultServer.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Resource not found")
	test.AssertEquals(t, e.Instance, "/foo/unknown")
}

var prototests = []struct {
	hval    string
	allowed bool
}{
	{"http", false},
	{"", true},
	{"foo", true},
	{"https", true},
}

func TestXForwardedProtoDisallowed(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	})
	h := forbidNonTLSTrafficHandler(mux)
	for _, tt := range prototests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Forwarded-Proto", tt.hval)
		h.ServeHTTP(w, req)
		if tt.allowed {
			test.AssertEquals(t, w.Code, 200)
		} else {
			test.AssertEquals(t, w.Code, 403)
			var e rest.Error
			err := json.Unmarshal(w.Body.Bytes(), &e)
			test.AssertNotError(t, err, "")
			test.AssertEquals(t, e.ID, "insecure_request")
		}
	}
}

func TestHomepageRendersVersion(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	req.SetBasicAuth("foo", "bar")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 200)
	test.AssertEquals(t, w.Header().Get("Content-Type"), "text/html; charset=utf-8")
	s := w.Body.String()
	test.Assert(t, strings.Contains(s, fmt.Sprintf("docmill version %s", config.Version)), "")
}

func TestHomepageForbidsUnknownUsers(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	req.SetBasicAuth("Unknown user", "Wrong password")
	_, server := newSSAServer()
	server.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 403)
}

func TestHomepageDisallowsUnauthedUsers(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	DefaultServer.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, 401)
}

func TestServerVersionHeader(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	req.SetBasicAuth("foo", "bar")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Header().Get("Server"), fmt.Sprintf("docmill/%s", config.Version))
}

func TestStrictTransportHeader(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	req.SetBasicAuth("foo", "bar")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Header().Get("Strict-Transport-Security"), "max-age=31536000; includeSubDomains; preload")
}

func Test401NoCredentials(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	ejr := &EnqueueJobRequest{
		Data: empty,
	}
	b := new(bytes.Buffer)
	json.NewEncoder(b).Encode(ejr)
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/job_6740b44e-13b9-475d-af06-979627e0e0d6", b)
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusUnauthorized)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Unauthorized. Please include your API credentials")
	test.AssertEquals(t, e.ID, "unauthorized")
}

func Test401UnknownUser(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	ejr := &EnqueueJobRequest{
		Data: empty,
	}
	b := new(bytes.Buffer)
	json.NewEncoder(b).Encode(ejr)
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/job_6740b44e-13b9-475d-af06-979627e0e0d6", b)
	req.SetBasicAuth("unknown-user", "foobar")
	_, server := newSSAServer()
	server.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusForbidden)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Username or password are invalid. Please double check your credentials")
	test.AssertEquals(t, e.ID, "forbidden")
}

func Test403WrongPassword(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	ejr := &EnqueueJobRequest{
		Data: empty,
	}
	b := new(bytes.Buffer)
	json.NewEncoder(b).Encode(ejr)
	ssa, server := newSSAServer()
	ssa.AddUser("403-wrong-password", "right_password")
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/job_6740b44e-13b9-475d-af06-979627e0e0d6", b)
	req.SetBasicAuth("403-wrong-password", "wrong_password")
	server.ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusForbidden)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Incorrect password for user 403-wrong-password")
	test.AssertEquals(t, e.ID, "incorrect_password")
}

func Test400EmptyBody(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	b := bytes.NewBufferString("{}")
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/job_6740b44e-13b9-475d-af06-979627e0e0d6", b)
	req.SetBasicAuth("test", "password")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Missing required field: data")
	test.AssertEquals(t, e.ID, "missing_parameter")
}

func Test400MissingFileID(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	ejr := &EnqueueJobRequest{
		Data: empty,
	}
	b := new(bytes.Buffer)
	json.NewEncoder(b).Encode(ejr)
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/job_6740b44e-13b9-475d-af06-979627e0e0d6", b)
	req.SetBasicAuth("test", "password")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Missing required field: data.fileId")
	test.AssertEquals(t, e.ID, "missing_parameter")
}

func Test400InvalidUUID(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	ejr := &EnqueueJobRequest{
		Data: json.RawMessage(`{"fileId": "b102094f-4343-46e6-bd90-41ba4902d1cf"}`),
	}
	b := new(bytes.Buffer)
	json.NewEncoder(b).Encode(ejr)
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/job_123", b)
	req.SetBasicAuth("test", "password")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Could not parse \"job_123\" as a UUID with a prefix")
	test.AssertEquals(t, e.ID, "invalid_uuid")
}

// Would be great to 400 this but it's difficult with some of the route
// overlapping we have in place.
func Test404WrongPrefix(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	ejr := &EnqueueJobRequest{
		Data: empty,
	}
	b := new(bytes.Buffer)
	json.NewEncoder(b).Encode(ejr)
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/usr_6740b44e-13b9-475d-af06-979627e0e0d6", b)
	req.SetBasicAuth("test", "password")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusNotFound)
}

func Test413TooLargeJSON(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	// 4 bytes per record - the value and the quotes around it.
	var bigarr [100 * 256]string
	for i := range bigarr {
		bigarr[i] = "a"
	}
	bits, _ := json.Marshal(bigarr)
	ejr := &EnqueueJobRequest{
		Data: json.RawMessage(bits),
	}
	b := new(bytes.Buffer)
	json.NewEncoder(b).Encode(ejr)
	test.Assert(t, len(b.Bytes()) > 100*1024, fmt.Sprintf("%d", len(b.Bytes())))
	req, _ := http.NewRequest("PUT", "/v1/jobs/ocr/job_6740b44e-13b9-475d-af06-979627e0e0d6", b)
	req.SetBasicAuth("test", "password")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusRequestEntityTooLarge)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.Title, "Data parameter is too large (100KB max)")
	test.AssertEquals(t, e.ID, "entity_too_large")
}

func Test400InvalidFileUUIDOnList(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/files/not-a-uuid/jobs", nil)
	req.SetBasicAuth("test", "password")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusBadRequest)
	var e rest.Error
	err := json.Unmarshal(w.Body.Bytes(), &e)
	test.AssertNotError(t, err, "")
	test.AssertEquals(t, e.ID, "invalid_uuid")
}

func Test405WrongMethodOnCancelRoute(t *testing.T) {
	t.Parallel()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/jobs/job_6740b44e-13b9-475d-af06-979627e0e0d6", nil)
	req.SetBasicAuth("test", "password")
	Get(u).ServeHTTP(w, req)
	test.AssertEquals(t, w.Code, http.StatusMethodNotAllowed)
}
