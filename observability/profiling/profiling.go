// Package profiling exposes pprof and fgprof on a separate port.
package profiling

import (
	"context"
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/felixge/fgprof"
	"github.com/go-chi/chi/v5"

	"github.com/shortlink-org/commandbus/config"
	pprof_labels_middleware "github.com/shortlink-org/commandbus/http/middleware/pprof_labels"
	httpserver "github.com/shortlink-org/commandbus/http/server"
	"github.com/shortlink-org/commandbus/logger"
)

// Handler returns the profiling router. Requests carry pprof labels, so a
// profile of the profiler itself is easy to filter out.
func Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(pprof_labels_middleware.Labels)

	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)

	for _, name := range []string{"goroutine", "heap", "allocs", "mutex", "block", "threadcreate"} {
		r.Handle("/debug/pprof/"+name, pprof.Handler(name))
	}

	// wall-clock profile, includes time spent off-CPU waiting on the bus
	r.Handle("/debug/pprof/fgprof", fgprof.Handler())

	return r
}

// Run serves Handler on PROFILING_PORT until ctx is done. It does nothing
// unless PROFILING_ENABLED is set.
func Run(ctx context.Context, log logger.Logger, cfg *config.Config) error {
	cfg.SetDefault("PROFILING_ENABLED", false)
	cfg.SetDefault("PROFILING_PORT", 7071)
	cfg.SetDefault("PROFILING_TIMEOUT", "30s")

	if !cfg.GetBool("PROFILING_ENABLED") {
		return nil
	}

	runtime.SetMutexProfileFraction(10)
	runtime.SetBlockProfileRate(10)

	server := httpserver.New(ctx, Handler(), httpserver.Config{
		Port:    cfg.GetInt("PROFILING_PORT"),
		Timeout: cfg.GetDuration("PROFILING_TIMEOUT"),
	}, cfg)

	return httpserver.Run(ctx, log, server, cfg)
}
