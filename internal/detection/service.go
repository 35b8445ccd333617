package detection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/catalogue"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/internal/matcher"
	apperrors "github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/plant-disease-detection/pkg/tracing"
)

const catalogueBreakerName = "catalogue"

// Catalogue is the read side of catalogue.Store.
type Catalogue interface {
	ActiveDiseases(ctx context.Context) ([]catalogue.Entry, error)
	Lookup(ctx context.Context, name string) (catalogue.Entry, error)
}

// History persists finished detections.
type History interface {
	Save(ctx context.Context, r *Result) error
	Get(ctx context.Context, id string) (*Result, error)
	Recent(ctx context.Context, limit int) ([]*Result, error)
}

// Tracker receives one analytics event per detection.
type Tracker interface {
	TrackDetection(event analytics.DetectionEvent)
}

// Config bounds the work a single request may ask for.
type Config struct {
	MaxDescriptionLength int
	MaxBatchSize         int
	MaxConcurrent        int
	HistoryLimit         int
	FetchTimeout         time.Duration
	Retry                resilience.RetryConfig
	Breaker              resilience.CircuitBreakerConfig
	// LogSpans writes finished span trees at debug level, for the
	// SpanSampleRate fraction of detections.
	LogSpans       bool
	SpanSampleRate float64
}

func DefaultConfig() Config {
	return Config{
		MaxDescriptionLength: 4096,
		MaxBatchSize:         50,
		MaxConcurrent:        8,
		HistoryLimit:         100,
		FetchTimeout:         3 * time.Second,
	}
}

// Deps are the collaborators of a Service. Catalogue and Matcher are
// required; the rest may be nil.
type Deps struct {
	Catalogue Catalogue
	Matcher   *matcher.Matcher
	Cache     *Cache
	History   History
	Tracker   Tracker
	Metrics   *metrics.Metrics
}

// Service runs detections. It is safe for concurrent use.
type Service struct {
	catalogue Catalogue
	matcher   *matcher.Matcher
	cache     *Cache
	history   History
	tracker   Tracker
	metrics   *metrics.Metrics
	breaker   *resilience.CircuitBreaker
	cfg       Config
	logger    *slog.Logger
}

func NewService(deps Deps, cfg Config) *Service {
	def := DefaultConfig()
	if cfg.MaxDescriptionLength <= 0 {
		cfg.MaxDescriptionLength = def.MaxDescriptionLength
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = def.MaxBatchSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, resilience.ErrCircuitOpen)
		}
	}
	if deps.Metrics != nil && cfg.Breaker.OnStateChange == nil {
		m := deps.Metrics
		cfg.Breaker.OnStateChange = func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &Service{
		catalogue: deps.Catalogue,
		matcher:   deps.Matcher,
		cache:     deps.Cache,
		history:   deps.History,
		tracker:   deps.Tracker,
		metrics:   deps.Metrics,
		breaker:   resilience.NewCircuitBreaker(catalogueBreakerName, cfg.Breaker),
		cfg:       cfg,
		logger:    slog.Default().With("component", "detection-service"),
	}
}

// DetectSymptoms matches a free-text description against the active
// catalogue. Every engine outcome, inconclusive ones included, comes back
// as a Result; errors are reserved for bad input and infrastructure
// failures.
func (s *Service) DetectSymptoms(ctx context.Context, description string) (*Result, error) {
	start := time.Now()
	if err := s.checkDescription(description); err != nil {
		return nil, err
	}
	ctx, span, root := s.startSpan(ctx, "detection.symptoms")
	defer s.endSpan(span, root)

	kw := s.matcher.Keywords(description)
	span.SetAttr("keywords", len(kw))

	compute := func() (*Result, error) {
		return s.matchSymptoms(ctx, description)
	}

	var (
		result   *Result
		cacheHit bool
		err      error
	)
	switch {
	case len(kw) == 0:
		// Nothing to score, so the catalogue is not needed.
		result = fromOutcome(MethodSymptoms, s.matcher.Match(description, nil))
	case s.cache != nil:
		result, cacheHit, err = s.cache.GetOrCompute(ctx, kw, compute)
	default:
		result, err = compute()
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		logger.FromContext(ctx).Error("symptom detection failed", "error", err)
		return nil, err
	}
	span.SetAttr("cache_hit", cacheHit)

	result.Keywords = []string(kw)
	result.Description = description
	s.finish(ctx, result, start, cacheStatus(s.cache != nil && len(kw) > 0, cacheHit))
	return result, nil
}

// DetectImage adapts an image classifier's prediction into a Result using
// the same confidence rules and treatment lookup as symptom detection.
// Names the catalogue does not know are reported without a treatment.
func (s *Service) DetectImage(ctx context.Context, pred ImagePrediction) (*Result, error) {
	start := time.Now()
	if strings.TrimSpace(pred.DiseaseName) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "disease_name is required")
	}
	if math.IsNaN(pred.Probability) || pred.Probability < 0 || pred.Probability > 1 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "probability must be within [0,1], got %v", pred.Probability)
	}
	ctx, span, root := s.startSpan(ctx, "detection.image")
	defer s.endSpan(span, root)

	disease := matcher.Disease{Name: pred.DiseaseName, Active: true}
	entry, err := s.lookup(ctx, pred.DiseaseName)
	known := err == nil
	switch {
	case known:
		disease = entry.Disease()
	case errors.Is(err, apperrors.ErrDiseaseNotFound):
		logger.FromContext(ctx).Warn("image prediction names an unknown disease", "disease", pred.DiseaseName)
	default:
		return nil, err
	}

	out := s.matcher.Assess(disease, pred.Probability)
	result := fromOutcome(MethodImage, out)
	if out.Confident() && known {
		result.Treatment = entry.Treatment
	}
	result.ImageRef = pred.ImageRef
	s.finish(ctx, result, start, cacheStatus(false, false))
	return result, nil
}

// DetectBatch runs DetectSymptoms over descriptions in parallel and returns
// results in input order. The first failure cancels the rest.
func (s *Service) DetectBatch(ctx context.Context, descriptions []string) ([]*Result, error) {
	if len(descriptions) == 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "at least one description is required")
	}
	if len(descriptions) > s.cfg.MaxBatchSize {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"batch has %d descriptions, limit is %d", len(descriptions), s.cfg.MaxBatchSize)
	}
	for i, d := range descriptions {
		if err := s.checkDescription(d); err != nil {
			return nil, fmt.Errorf("description %d: %w", i, err)
		}
	}

	ctx, span, root := s.startSpan(ctx, "detection.batch")
	defer s.endSpan(span, root)
	span.SetAttr("size", len(descriptions))

	results := make([]*Result, len(descriptions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)
	for i, d := range descriptions {
		g.Go(func() error {
			r, err := s.DetectSymptoms(gctx, d)
			if err != nil {
				return fmt.Errorf("description %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Get returns a stored detection.
func (s *Service) Get(ctx context.Context, id string) (*Result, error) {
	if s.history == nil {
		return nil, fmt.Errorf("detection %s: %w", id, apperrors.ErrDetectionNotFound)
	}
	return s.history.Get(ctx, id)
}

// Recent returns up to limit stored detections, newest first. limit is
// clamped to [1, HistoryLimit].
func (s *Service) Recent(ctx context.Context, limit int) ([]*Result, error) {
	if s.history == nil {
		return []*Result{}, nil
	}
	limit = max(1, min(limit, s.cfg.HistoryLimit))
	return s.history.Recent(ctx, limit)
}

// InvalidateCache drops cached results, returning how many were removed.
func (s *Service) InvalidateCache(ctx context.Context) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	return s.cache.Invalidate(ctx)
}

// CacheStats reports cache hits and misses, and whether caching is on.
func (s *Service) CacheStats() (hits, misses int64, enabled bool) {
	if s.cache == nil {
		return 0, 0, false
	}
	hits, misses = s.cache.Stats()
	return hits, misses, true
}

// HandleCatalogueEvent invalidates the cache when a catalogue change is
// announced. A failed invalidation is reported to the consumer; stale
// entries still expire with the cache TTL.
func (s *Service) HandleCatalogueEvent() kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		if t := msg.Type(); t != "" && t != string(analytics.EventCatalogueUpdated) {
			return nil
		}
		event, err := kafka.DecodeJSON[analytics.CatalogueEvent](msg.Value)
		if err != nil {
			s.logger.Warn("undecodable catalogue event, invalidating anyway", "error", err)
		}
		deleted, err := s.InvalidateCache(ctx)
		if err != nil {
			return err
		}
		s.logger.Info("catalogue changed, cache invalidated",
			"disease", event.Disease,
			"source", event.Source,
			"keys_deleted", deleted,
		)
		return nil
	}
}

func (s *Service) checkDescription(description string) error {
	if n := utf8.RuneCountInString(description); n > s.cfg.MaxDescriptionLength {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"description has %d characters, limit is %d", n, s.cfg.MaxDescriptionLength)
	}
	return nil
}

func (s *Service) matchSymptoms(ctx context.Context, description string) (*Result, error) {
	entries, err := s.fetchCatalogue(ctx)
	if err != nil {
		return nil, err
	}

	_, span := tracing.StartChildSpan(ctx, "matcher.match")
	out := s.matcher.Match(description, catalogue.Diseases(entries))
	span.SetAttr("candidates", len(entries))
	span.SetAttr("best_score", out.BestScore)
	span.SetAttr("skipped", out.Skipped)
	span.End()

	if s.metrics != nil && out.Skipped > 0 {
		s.metrics.SkippedCandidates.Add(float64(out.Skipped))
	}

	result := fromOutcome(MethodSymptoms, out)
	if out.Confident() {
		result.Treatment = treatmentOf(entries, out.Best.Disease.ID)
	}
	return result, nil
}

// fetchCatalogue loads the active diseases through the circuit breaker,
// retrying transient failures with a per-attempt timeout.
func (s *Service) fetchCatalogue(ctx context.Context) ([]catalogue.Entry, error) {
	ctx, span := tracing.StartChildSpan(ctx, "catalogue.fetch")
	defer span.End()

	var entries []catalogue.Entry
	err := s.breaker.Execute(func() error {
		return resilience.Retry(ctx, "catalogue.fetch", s.cfg.Retry, func() error {
			var got []catalogue.Entry
			err := resilience.WithTimeout(ctx, s.cfg.FetchTimeout, "catalogue.fetch", func(ctx context.Context) error {
				var err error
				got, err = s.catalogue.ActiveDiseases(ctx)
				return err
			})
			if err == nil {
				entries = got
			}
			return err
		})
	})
	if err != nil {
		span.Fail(err)
		if errors.Is(err, apperrors.ErrTimeout) {
			return nil, fmt.Errorf("fetching catalogue: %w", err)
		}
		return nil, fmt.Errorf("fetching catalogue: %w: %w", apperrors.ErrCatalogueUnavailable, err)
	}
	span.SetAttr("entries", len(entries))
	if s.metrics != nil {
		s.metrics.CatalogueSize.Set(float64(len(entries)))
	}
	return entries, nil
}

func (s *Service) lookup(ctx context.Context, name string) (catalogue.Entry, error) {
	ctx, span := tracing.StartChildSpan(ctx, "catalogue.lookup")
	defer span.End()

	var entry catalogue.Entry
	err := resilience.WithTimeout(ctx, s.cfg.FetchTimeout, "catalogue.lookup", func(ctx context.Context) error {
		e, err := s.catalogue.Lookup(ctx, name)
		if err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		span.Fail(err)
		return catalogue.Entry{}, err
	}
	return entry, nil
}

// finish stamps the result and reports it to history, analytics, metrics
// and the log. Reporting failures never fail the detection.
func (s *Service) finish(ctx context.Context, r *Result, start time.Time, cache string) {
	r.ID = ulid.Make().String()
	r.CreatedAt = time.Now().UTC()
	latency := time.Since(start)
	log := logger.FromContext(ctx)

	if s.history != nil {
		if err := s.history.Save(ctx, r); err != nil {
			log.Error("saving detection history failed", "id", r.ID, "error", err)
		}
	}
	if s.tracker != nil {
		s.tracker.TrackDetection(analytics.DetectionEvent{
			ID:          r.ID,
			Method:      string(r.Method),
			Status:      string(r.Status),
			Reason:      string(r.Reason),
			DiseaseName: r.DiseaseName,
			Confidence:  r.Confidence,
			Keywords:    len(r.Keywords),
			LatencyMs:   latency.Milliseconds(),
			CacheHit:    cache == "hit",
			Timestamp:   r.CreatedAt,
			RequestID:   logger.RequestID(ctx),
		})
	}
	if s.metrics != nil {
		s.metrics.DetectionsTotal.WithLabelValues(string(r.Method), string(r.Status)).Inc()
		if r.Reason != matcher.ReasonNone {
			s.metrics.DetectionReasons.WithLabelValues(string(r.Reason)).Inc()
		}
		s.metrics.DetectionConfidence.WithLabelValues(string(r.Method)).Observe(r.Confidence)
		s.metrics.DetectionLatency.WithLabelValues(cache).Observe(latency.Seconds())
	}

	log.Info("detection completed",
		"id", r.ID,
		"method", r.Method,
		"status", r.Status,
		"reason", r.Reason,
		"disease", r.DiseaseName,
		"confidence", r.Confidence,
		"cache", cache,
		"latency_ms", latency.Milliseconds(),
	)
}

// startSpan opens a root span, or a child when ctx already carries one.
func (s *Service) startSpan(ctx context.Context, name string) (context.Context, *tracing.Span, bool) {
	if tracing.SpanFromContext(ctx) != nil {
		ctx, span := tracing.StartChildSpan(ctx, name)
		return ctx, span, false
	}
	ctx, span := tracing.StartSpan(ctx, name, logger.RequestID(ctx))
	return ctx, span, true
}

func (s *Service) endSpan(span *tracing.Span, root bool) {
	span.End()
	if root && s.cfg.LogSpans && tracing.Sampled(s.cfg.SpanSampleRate) {
		span.Log()
	}
}

func treatmentOf(entries []catalogue.Entry, id string) string {
	for _, e := range entries {
		if e.ID == id {
			return e.Treatment
		}
	}
	return ""
}

func cacheStatus(enabled, hit bool) string {
	switch {
	case !enabled:
		return "none"
	case hit:
		return "hit"
	default:
		return "miss"
	}
}
