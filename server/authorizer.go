package server

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/Shyp/rest"
)

// An Authorizer decides whether a user/token pair may access the API.
type Authorizer interface {
	// Authorize returns nil if the user and token are allowed to access the
	// API, and a rest.Error describing the rejection otherwise.
	Authorize(user string, token string) *rest.Error
}

// DefaultAuthorizer backs DefaultServer. Add credentials with AddUser before
// serving traffic.
var DefaultAuthorizer = NewSharedSecretAuthorizer()

// AddUser tells the DefaultAuthorizer that a given user and password is
// allowed to access the API.
func AddUser(user string, password string) {
	DefaultAuthorizer.AddUser(user, password)
}

// SharedSecretAuthorizer authenticates against an in-memory map of usernames
// and passwords.
type SharedSecretAuthorizer struct {
	mu           sync.RWMutex
	allowedUsers map[string]string
}

func NewSharedSecretAuthorizer() *SharedSecretAuthorizer {
	return &SharedSecretAuthorizer{
		allowedUsers: make(map[string]string),
	}
}

// AddUser authorizes a given user and password to access the API.
func (ssa *SharedSecretAuthorizer) AddUser(user string, password string) {
	ssa.mu.Lock()
	defer ssa.mu.Unlock()
	ssa.allowedUsers[user] = password
}

// Authorize checks user and token against the registered credentials.
func (ssa *SharedSecretAuthorizer) Authorize(user string, token string) *rest.Error {
	ssa.mu.RLock()
	serverPass, ok := ssa.allowedUsers[user]
	ssa.mu.RUnlock()
	if !ok {
		if user == "" {
			return &rest.Error{
				Title: "No authentication provided",
				ID:    "missing_authentication",
			}
		}
		return &rest.Error{
			Title: "Username or password are invalid. Please double check your credentials",
			ID:    "forbidden",
		}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(serverPass)) != 1 {
		return &rest.Error{
			Title: fmt.Sprintf("Incorrect password for user %s", user),
			ID:    "incorrect_password",
		}
	}
	return nil
}

// forbiddenAuthorizer denies every request, recording the credentials it saw.
type forbiddenAuthorizer struct {
	User  string
	Token string
}

func (f *forbiddenAuthorizer) Authorize(user string, token string) *rest.Error {
	f.User = user
	f.Token = token
	return &rest.Error{
		Title: "Invalid Access Token",
		ID:    "forbidden_api",
	}
}

// UnsafeBypassAuthorizer lets every request through. Only for tests.
type UnsafeBypassAuthorizer struct{}

func (u *UnsafeBypassAuthorizer) Authorize(user string, token string) *rest.Error {
	return nil
}

// handleAuthorizeError maps an Authorizer rejection to the right HTTP
// response and writes it.
func handleAuthorizeError(w http.ResponseWriter, r *http.Request, err error) {
	rerr, ok := err.(*rest.Error)
	if !ok {
		writeServerError(w, r, err)
		return
	}
	switch {
	case rerr.ID == "forbidden_api" || rerr.ID == "missing_authentication":
		rerr.StatusCode = http.StatusUnauthorized
		authenticate(w, rerr)
	case rerr.ID == "incorrect_password" || rerr.ID == "forbidden":
		forbidden(w, rerr)
	case rerr.StatusCode == http.StatusInternalServerError || rerr.ID == "server_error":
		writeServerError(w, r, rerr)
	default:
		w.WriteHeader(rerr.StatusCode)
		json.NewEncoder(w).Encode(rerr)
	}
}
