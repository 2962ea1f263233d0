package router

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/shandysiswandi/twofa/internal/pkg/stacktrace"
)

// middlewareRecover turns a handler panic into the generic 500 body. Frames
// outside this module are dropped from the log unless none are left.
//
//nolint:contextcheck // logs with the request context
func middlewareRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			//nolint:err113,errorlint // sentinel must be re-raised untouched
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			stack := debug.Stack()
			var frames any = string(stack)
			if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
				frames = paths
			}
			slog.ErrorContext(r.Context(), "router: handler panicked",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", rvr,
				"stack", frames,
			)

			writeJSON(w, errorResponse{Message: "Internal server error"}, http.StatusInternalServerError)
		}()

		next.ServeHTTP(w, r)
	})
}
