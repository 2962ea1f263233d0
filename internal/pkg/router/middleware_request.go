package router

import (
	"net"
	"net/http"
	"strings"

	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"github.com/shandysiswandi/twofa/internal/pkg/uid"
)

const (
	// HeaderCorrelationID is echoed on every response.
	HeaderCorrelationID = "X-Correlation-ID"
	// HeaderRequestID is accepted as a fallback for proxies that set it instead.
	HeaderRequestID = "X-Request-ID"

	maxCorrelationIDLen = 128
)

// middlewareRequestContext fixes the client address and the correlation id
// before anything logs the request. Forwarding headers are honored only when
// app.server.trust_proxy_headers is set, since the address ends up in trusted
// device metadata.
func middlewareRequestContext(cfg config.Config, ids uid.StringID) Middleware {
	trustProxy := cfg != nil && cfg.GetBool("app.server.trust_proxy_headers")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.RemoteAddr = clientAddr(r, trustProxy)

			cid := firstCorrelationID(r.Header.Get(HeaderCorrelationID), r.Header.Get(HeaderRequestID))
			if cid == "" && ids != nil {
				cid = ids.Generate()
			}
			if cid != "" {
				w.Header().Set(HeaderCorrelationID, cid)
				r = r.WithContext(instrument.SetCorrelationID(r.Context(), cid))
			}

			next.ServeHTTP(w, r)
		})
	}
}

func firstCorrelationID(candidates ...string) string {
	for _, c := range candidates {
		if strings.ContainsAny(c, "\r\n") {
			continue
		}
		if c = strings.TrimSpace(c); c != "" {
			return c[:min(len(c), maxCorrelationIDLen)]
		}
	}
	return ""
}

// clientAddr returns a bare IP. The socket address is kept as is when it does
// not parse.
func clientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, h := range []string{"True-Client-IP", "X-Real-IP", "X-Forwarded-For"} {
			v, _, _ := strings.Cut(r.Header.Get(h), ",")
			if ip := net.ParseIP(strings.TrimSpace(v)); ip != nil {
				return ip.String()
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return r.RemoteAddr
}
