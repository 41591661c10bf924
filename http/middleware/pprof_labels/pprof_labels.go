// Package pprof_labels_middleware tags the goroutine serving a request with
// its path and method, so profiles can be split per endpoint.
package pprof_labels_middleware

import (
	"context"
	"net/http"
	"runtime/pprof"
)

// Labels sets the "path" and "method" pprof labels for the request.
func Labels(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pprof.Do(r.Context(), pprof.Labels("path", r.URL.Path, "method", r.Method), func(ctx context.Context) {
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
}
