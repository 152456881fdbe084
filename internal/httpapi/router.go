package httpapi

import (
	"net/http"

	"github.com/joao-fontenele/bookstore/internal/telemetry"
)

// Router registers handlers on a ServeMux and tags each request span with
// the matched pattern.
type Router struct {
	mux *http.ServeMux
}

func NewRouter(mux *http.ServeMux) *Router {
	return &Router{mux: mux}
}

func (rt *Router) Handle(pattern string, h http.HandlerFunc) {
	rt.mux.HandleFunc(pattern, telemetry.WithHTTPRoute(h))
}
