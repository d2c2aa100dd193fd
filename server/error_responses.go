// Helpers for building various types of error responses.

package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/Shyp/rest"
)

func new405(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Method not allowed",
		ID:         "method_not_allowed",
		Instance:   r.URL.Path,
		StatusCode: http.StatusMethodNotAllowed,
	}
}

func new404(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Resource not found",
		ID:         "not_found",
		Instance:   r.URL.Path,
		StatusCode: http.StatusNotFound,
	}
}

func insecure403(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Server not available over HTTP",
		ID:         "insecure_request",
		Detail:     "For your security, please use an encrypted connection",
		Instance:   r.URL.Path,
		StatusCode: http.StatusForbidden,
	}
}

func new401(r *http.Request) *rest.Error {
	return &rest.Error{
		Title:      "Unauthorized. Please include your API credentials",
		ID:         "unauthorized",
		Instance:   r.URL.Path,
		StatusCode: http.StatusUnauthorized,
	}
}

// createEmptyErr returns a rest.Error indicating the request omits a
// required field.
func createEmptyErr(field string, path string) *rest.Error {
	return &rest.Error{
		Title:    fmt.Sprintf("Missing required field: %s", field),
		Detail:   fmt.Sprintf("Please include a %s in the request body", field),
		ID:       "missing_parameter",
		Instance: path,
	}
}

func writeJSON(w http.ResponseWriter, code int, err *rest.Error) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(err)
}

func notFound(w http.ResponseWriter, err *rest.Error) {
	writeJSON(w, http.StatusNotFound, err)
}

func badRequest(w http.ResponseWriter, r *http.Request, err *rest.Error) {
	log.Printf("400: %s %s: %s", r.Method, r.URL.Path, err.Error())
	writeJSON(w, http.StatusBadRequest, err)
}

func authenticate(w http.ResponseWriter, err *rest.Error) {
	w.Header().Set("WWW-Authenticate", "Basic realm=\"docmill\"")
	writeJSON(w, http.StatusUnauthorized, err)
}

func forbidden(w http.ResponseWriter, err *rest.Error) {
	writeJSON(w, http.StatusForbidden, err)
}

var serverError = &rest.Error{
	StatusCode: http.StatusInternalServerError,
	ID:         "server_error",
	Title:      "Unexpected server error. Please try again",
}

// writeServerError logs the provided error, and returns a generic server
// error message to the client.
func writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("500: %s %s: %s", r.Method, r.URL.Path, err)
	writeJSON(w, http.StatusInternalServerError, serverError)
}
