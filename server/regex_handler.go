package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
)

// A RegexpHandler routes requests by matching the URL path against regular
// expressions, in registration order. The first pattern that matches the
// path wins; if the method isn't registered for that pattern the request is
// rejected, so routes sharing a path must be registered together.
type RegexpHandler struct {
	routes []*route
}

type route struct {
	pattern *regexp.Regexp
	methods []string
	handler http.Handler
}

// Handler registers handler for requests whose path matches pattern and
// whose method is one of methods.
func (h *RegexpHandler) Handler(pattern *regexp.Regexp, methods []string, handler http.Handler) {
	h.routes = append(h.routes, &route{
		pattern: pattern,
		methods: methods,
		handler: handler,
	})
}

// HandleFunc registers a handler function for requests whose path matches
// pattern and whose method is one of methods.
func (h *RegexpHandler) HandleFunc(pattern *regexp.Regexp, methods []string, handler func(http.ResponseWriter, *http.Request)) {
	h.Handler(pattern, methods, http.HandlerFunc(handler))
}

func (rt *route) allows(method string) bool {
	for _, m := range rt.methods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

func (h *RegexpHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, rt := range h.routes {
		if !rt.pattern.MatchString(r.URL.Path) {
			continue
		}
		if rt.allows(r.Method) {
			rt.handler.ServeHTTP(w, r)
		} else if strings.EqualFold(r.Method, "OPTIONS") {
			w.Header().Set("Allow", strings.Join(append(rt.methods, "OPTIONS"), ", "))
		} else {
			w.WriteHeader(http.StatusMethodNotAllowed)
			json.NewEncoder(w).Encode(new405(r))
		}
		return
	}
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(new404(r))
}
