package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/shandysiswandi/twofa/internal/pkg/config"
)

// middlewareMaintenance answers 503 for routes listed in
// app.maintenance.endpoints. An entry ending in "*" blocks every route under
// that prefix, so "/api/v1/2fa/login/*" pauses the second login step while
// enrollment keeps working.
func middlewareMaintenance(cfg config.Config) Middleware {
	var (
		exact      = make(map[string]struct{})
		prefixes   []string
		retryAfter int
	)
	if cfg != nil {
		for _, e := range cfg.GetArray("app.maintenance.endpoints") {
			e = strings.TrimSpace(e)
			switch {
			case e == "":
			case strings.HasSuffix(e, "*"):
				prefixes = append(prefixes, strings.TrimSuffix(e, "*"))
			default:
				exact[e] = struct{}{}
			}
		}
		retryAfter = cfg.GetInt("app.maintenance.retry_after_seconds")
	}

	blocked := func(route string) bool {
		if _, ok := exact[route]; ok {
			return true
		}
		for _, p := range prefixes {
			if strings.HasPrefix(route, p) {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		if len(exact) == 0 && len(prefixes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !blocked(matchedRoutePath(r)) {
				next.ServeHTTP(w, r)
				return
			}
			if retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			}
			writeJSON(w, errorResponse{Message: "Two-factor service is under maintenance"}, http.StatusServiceUnavailable)
		})
	}
}
