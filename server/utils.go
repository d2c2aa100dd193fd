package server

import (
	"fmt"
	"net/http"
	"strings"

	types "github.com/Shyp/go-types"
	"github.com/Shyp/rest"
	"github.com/docmill/docmill/models/queued_jobs"
)

// getId parses idStr as a prefixed UUID and checks the prefix is the job
// prefix. If the id is invalid, getId writes a 400 to w; the second return
// value reports whether a response was written.
func getId(w http.ResponseWriter, r *http.Request, idStr string) (types.PrefixUUID, bool) {
	id, err := types.NewPrefixUUID(idStr)
	if err != nil {
		badRequest(w, r, &rest.Error{
			ID:    "invalid_uuid",
			Title: strings.Replace(err.Error(), "types: ", "", 1),
		})
		return id, true
	}
	if id.Prefix != queued_jobs.Prefix {
		badRequest(w, r, &rest.Error{
			ID:    "invalid_prefix",
			Title: fmt.Sprintf("Please use %s for the uuid prefix, not %s", queued_jobs.Prefix, id.Prefix),
		})
		return id, true
	}
	return id, false
}
