// Package tracing times the steps of a detection as a tree of spans carried
// in the context and writes finished trees to the log.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type spanKey struct{}

type Span struct {
	Name     string
	TraceID  string
	ID       string
	ParentID string
	Start    time.Time
	Duration time.Duration
	Err      error

	mu       sync.Mutex
	Attrs    map[string]any
	Children []*Span
}

func newSpan(name, traceID, parentID string) *Span {
	return &Span{
		Name:     name,
		TraceID:  traceID,
		ID:       ulid.Make().String(),
		ParentID: parentID,
		Start:    time.Now(),
		Attrs:    make(map[string]any),
	}
}

// StartSpan opens a root span. An empty traceID gets a fresh ULID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = ulid.Make().String()
	}
	span := newSpan(name, traceID, "")
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the
// span is detached and has no trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		span := newSpan(name, "", "")
		return context.WithValue(ctx, spanKey{}, span), span
	}
	child := newSpan(name, parent.TraceID, parent.ID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

func (s *Span) End() {
	s.Duration = time.Since(s.Start)
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Attrs[key] = value
}

// Fail marks the span as failed with err. A nil err is ignored.
func (s *Span) Fail(err error) {
	if err != nil {
		s.Err = err
	}
}

// Find returns the first span named name, searching depth first.
func (s *Span) Find(name string) *Span {
	if s.Name == name {
		return s
	}
	for _, c := range s.children() {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

func (s *Span) children() []*Span {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Span(nil), s.Children...)
}

// Log writes one debug record per span in the tree, parents first.
func (s *Span) Log() {
	s.log(slog.Default().With("trace_id", s.TraceID))
}

func (s *Span) log(logger *slog.Logger) {
	attrs := []any{
		"span", s.Name,
		"span_id", s.ID,
		"duration", s.Duration,
	}
	if s.ParentID != "" {
		attrs = append(attrs, "parent_id", s.ParentID)
	}
	if s.Err != nil {
		attrs = append(attrs, "error", s.Err)
	}
	s.mu.Lock()
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	s.mu.Unlock()
	logger.Debug("span finished", attrs...)

	for _, c := range s.children() {
		c.log(logger)
	}
}

// Sampled reports whether a trace should be logged at the given rate,
// between 0 and 1.
func Sampled(rate float64) bool {
	switch {
	case rate >= 1:
		return true
	case rate <= 0:
		return false
	default:
		return rand.Float64() < rate
	}
}
