package api

import (
	"context"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// RequestIDHeader carries the caller's request ID, generated when absent.
	RequestIDHeader = "X-Request-ID"

	// TraceIDHeader carries the trace ID of the request span.
	TraceIDHeader = "X-Trace-ID"
)

type idsKey struct{}

// requestIDs are attached to every request context by TracingMiddleware.
type requestIDs struct {
	request string
	trace   string
}

var tracer = otel.Tracer("fathom-api")

// TracingMiddleware opens one span per request. The span is renamed to the
// matched route once routing is done, so /users/1/insight and
// /users/2/insight land under the same span name.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx, span := tracer.Start(r.Context(), r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
				attribute.String("request.id", requestID),
			),
		)
		defer span.End()

		ids := requestIDs{request: requestID, trace: requestID}
		if sc := span.SpanContext(); sc.TraceID().IsValid() {
			ids.trace = sc.TraceID().String()
		}

		w.Header().Set(RequestIDHeader, ids.request)
		w.Header().Set(TraceIDHeader, ids.trace)

		rw := wrap(w)
		next.ServeHTTP(rw, r.WithContext(context.WithValue(ctx, idsKey{}, ids)))

		if route := routePattern(r); route != "" {
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.String("http.route", route))
		}
		span.SetAttributes(attribute.Int("http.status_code", rw.status))
		if rw.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.status))
		}
	})
}

// LoggingMiddleware writes one structured line per request. Server errors
// log at error level, client errors at warn.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := wrap(w)

		next.ServeHTTP(rw, r)

		level := slog.LevelInfo
		switch {
		case rw.status >= http.StatusInternalServerError:
			level = slog.LevelError
		case rw.status >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		ids, _ := r.Context().Value(idsKey{}).(requestIDs)
		slog.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", routePattern(r),
			"status", rw.status,
			"bytes", rw.written,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", ids.request,
			"trace_id", ids.trace,
		)
	})
}

// CORSMiddleware answers preflight requests and sets CORS headers. With no
// allowed origins configured any origin is echoed back.
func CORSMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
				origin = "*"
			case len(allowed) > 0 && !slices.Contains(allowed, origin):
				origin = ""
			}

			if origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID, X-Trace-ID, Authorization")
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, X-Trace-ID")
				h.Set("Access-Control-Max-Age", "86400")
				h.Add("Vary", "Origin")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RecoverMiddleware turns a handler panic into a generic 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				slog.Error("panic recovered",
					"panic", rec,
					"path", r.URL.Path,
					"trace_id", GetTraceID(r.Context()),
				)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// statusWriter records the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int
	wrote   bool
}

func wrap(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wrote = true
	n, err := w.ResponseWriter.Write(b)
	w.written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		return rc.RoutePattern()
	}
	return ""
}

// GetTraceID returns the trace ID attached by TracingMiddleware.
func GetTraceID(ctx context.Context) string {
	ids, _ := ctx.Value(idsKey{}).(requestIDs)
	return ids.trace
}

// GetRequestID returns the request ID attached by TracingMiddleware.
func GetRequestID(ctx context.Context) string {
	ids, _ := ctx.Value(idsKey{}).(requestIDs)
	return ids.request
}
