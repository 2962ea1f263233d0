package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/julienschmidt/httprouter"
	"github.com/shandysiswandi/twofa/internal/pkg/config"
	"github.com/shandysiswandi/twofa/internal/pkg/instrument"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Bodies beyond this are logged truncated.
const maxLoggedBodyBytes = 32 << 10

// cappedBuffer keeps the first maxLoggedBodyBytes written to it.
type cappedBuffer struct {
	buf       bytes.Buffer
	truncated bool
}

func (c *cappedBuffer) keep(p []byte) {
	room := maxLoggedBodyBytes - c.buf.Len()
	if len(p) > room {
		c.truncated = true
		p = p[:max(room, 0)]
	}
	c.buf.Write(p)
}

// responseRecorder captures what the handler wrote. writeError reports the
// underlying error through SetError so the span can record it.
type responseRecorder struct {
	http.ResponseWriter

	status  int
	written int
	body    cappedBuffer
	err     error
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(p []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	rr.body.keep(p)
	n, err := rr.ResponseWriter.Write(p)
	rr.written += n
	return n, err
}

func (rr *responseRecorder) SetError(err error) { rr.err = err }

// Unwrap lets http.ResponseController reach the real writer.
func (rr *responseRecorder) Unwrap() http.ResponseWriter { return rr.ResponseWriter }

func (rr *responseRecorder) statusCode() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

func (rr *responseRecorder) loggedBody(m instrument.Masker) any {
	body := loggableBody(rr.Header().Get("Content-Type"), rr.body.buf.Bytes(), m)
	if rr.body.truncated {
		return map[string]any{"body": body, "truncated": true}
	}
	return body
}

// matchedRoutePath prefers the route pattern so ids stay out of span names
// and metric labels.
func matchedRoutePath(r *http.Request) string {
	if pattern := httprouter.ParamsFromContext(r.Context()).MatchedRoutePath(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}

// loggableBody renders a request or response body for the access log with
// masked JSON or form fields.
func loggableBody(contentType string, body []byte, m instrument.Masker) any {
	if len(body) == 0 {
		return nil
	}

	var doc any
	if json.Unmarshal(body, &doc) == nil {
		return m.Value(doc)
	}

	if strings.HasPrefix(strings.ToLower(contentType), "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			form := make(map[string]any, len(values))
			for k, v := range values {
				if len(v) == 1 {
					form[k] = v[0]
					continue
				}
				form[k] = v
			}
			return m.Value(form)
		}
	}

	if !utf8.Valid(body) {
		return "<binary body omitted>"
	}
	return string(body)
}

// peekBody reads up to maxLoggedBodyBytes of the request body and puts it
// back so the handler still sees the full stream.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	head, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	return head
}

type httpMetrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

func newHTTPMetrics(meter metric.Meter) httpMetrics {
	var hm httpMetrics
	var err error

	hm.requests, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Number of HTTP requests received"))
	if err != nil {
		slog.Error("router: create request counter", "error", err)
	}

	hm.duration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"), metric.WithUnit("ms"))
	if err != nil {
		slog.Error("router: create duration histogram", "error", err)
	}

	return hm
}

func (hm httpMetrics) record(ctx context.Context, elapsed time.Duration, attrs ...attribute.KeyValue) {
	set := metric.WithAttributes(attrs...)
	if hm.requests != nil {
		hm.requests.Add(ctx, 1, set)
	}
	if hm.duration != nil {
		hm.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), set)
	}
}

func finishSpan(span trace.Span, r *http.Request, rr *responseRecorder, attrs []attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetAttributes(
		semconv.NetworkProtocolVersionKey.String(r.Proto),
		semconv.ServerAddressKey.String(r.Host),
		semconv.UserAgentOriginalKey.String(r.UserAgent()),
		attribute.Int("http.response_content_length", rr.written),
	)

	if rr.err != nil {
		span.RecordError(rr.err)
	}

	status := rr.statusCode()
	switch {
	case status < http.StatusInternalServerError:
		span.SetStatus(codes.Ok, "")
	case rr.err != nil:
		span.SetStatus(codes.Error, rr.err.Error())
	default:
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}

// middlewareObservability opens a server span per request, records request
// metrics and writes a masked access log for the request and its response.
func middlewareObservability(cfg config.Config, ins instrument.Instrumentation) Middleware {
	var extra []string
	if cfg != nil {
		extra = cfg.GetArray("instrument.log_mask_fields")
	}
	masker := instrument.NewMasker(extra...)
	tracer := ins.Tracer("http.server")
	metrics := newHTTPMetrics(ins.Meter("http.server"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			route := matchedRoutePath(r)
			routeAttrs := []attribute.KeyValue{
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.HTTPRouteKey.String(route),
			}

			ctx, span := tracer.Start(r.Context(), r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(routeAttrs...),
			)
			defer span.End()

			slog.InfoContext(ctx, "request received",
				"method", r.Method,
				"path", route,
				"uri", r.RequestURI,
				"headers", masker.Header(r.Header),
				"body", loggableBody(r.Header.Get("Content-Type"), peekBody(r), masker),
			)

			rr := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(rr, r.WithContext(ctx))

			elapsed := time.Since(start)
			attrs := append(routeAttrs, semconv.HTTPResponseStatusCodeKey.Int(rr.statusCode()))
			finishSpan(span, r, rr, attrs)
			metrics.record(ctx, elapsed, attrs...)

			slog.InfoContext(ctx, "response sent",
				"method", r.Method,
				"path", route,
				"status", rr.statusCode(),
				"bytes", rr.written,
				"latency_ms", elapsed.Milliseconds(),
				"body", rr.loggedBody(masker),
			)
		})
	}
}
