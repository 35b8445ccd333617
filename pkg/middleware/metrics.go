// Package middleware holds the HTTP middleware shared by the detector and
// analytics services.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/metrics"
)

// Metrics records request count, latency and in-flight requests, labelled by
// route template rather than raw path.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.written {
		s.status = code
		s.written = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.written = true
	return s.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// parameterised lists path prefixes whose next segment is an identifier,
// and the fixed segments that share the prefix.
var parameterised = []struct {
	prefix string
	param  string
	fixed  []string
}{
	{prefix: "/api/v1/detections/", param: "{id}", fixed: []string{"symptoms", "image"}},
	{prefix: "/api/v1/diseases/", param: "{name}"},
}

// routeLabel maps a request path to its route template, so every detection
// ID or disease name shares one label value.
func routeLabel(path string) string {
	for _, p := range parameterised {
		rest, ok := strings.CutPrefix(path, p.prefix)
		if !ok || rest == "" {
			continue
		}
		head, _, _ := strings.Cut(rest, "/")
		for _, f := range p.fixed {
			if head == f {
				return path
			}
		}
		return p.prefix + p.param
	}
	return path
}
