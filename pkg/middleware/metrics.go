package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/permcache/pkg/httputil"
	"github.com/platinummonkey/permcache/pkg/observability"
)

// HTTPMetrics records request counts and latency. Requests are labelled by
// their mux route template so path parameters do not explode cardinality.
func HTTPMetrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := httputil.NewStatusRecorder(w)

			next.ServeHTTP(rw, r)

			metrics.RecordHTTPRequest(r.Method, routeTemplate(r), rw.Status, time.Since(start))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
