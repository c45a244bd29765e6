package middleware

import (
	"bufio"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/latticesocial/lattice/internal/metrics"
)

// statusRecorder captures the status a handler wrote. Hijack is forwarded so
// the websocket upgrade keeps working under instrumentation.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Instrument logs one line per request and feeds the request metrics. The
// metric route label is the mux path template so cardinality stays bounded.
// It seeds the DID holder up front; the authenticator fills it in later so
// the log line can carry the caller.
func Instrument(m *metrics.Metrics, log *logrus.Entry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(WithDID(r.Context(), ""))

			next.ServeHTTP(rec, r)

			route := r.URL.Path
			if cur := mux.CurrentRoute(r); cur != nil {
				if tpl, err := cur.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(start)
			m.RecordRequest(route, r.Method, rec.status, elapsed.Seconds())

			fields := logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": elapsed.Milliseconds(),
			}
			if did := DID(r.Context()); did != "" {
				fields["did"] = did
			}
			log.WithFields(fields).Info("request")
		})
	}
}
