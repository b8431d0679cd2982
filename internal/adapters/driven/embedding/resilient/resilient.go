// Package resilient decorates hosted embedding services with client-side
// rate limiting and exponential-backoff retries.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// Ensure Service implements the interface.
var _ driven.EmbeddingService = (*Service)(nil)

// Defaults.
const (
	DefaultRequestsPerSecond = 5.0
	DefaultMaxRetries        = 3
	DefaultInitialInterval   = 500 * time.Millisecond
	DefaultMaxInterval       = 10 * time.Second
)

// Service wraps an EmbeddingService.
type Service struct {
	inner      driven.EmbeddingService
	limiter    *rate.Limiter
	maxRetries uint64
	initial    time.Duration
	maxWait    time.Duration
	log        *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRate sets the sustained request rate. Zero or negative disables limiting.
func WithRate(rps float64) Option {
	return func(s *Service) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithMaxRetries sets how often a failed call is retried.
func WithMaxRetries(n uint64) Option {
	return func(s *Service) { s.maxRetries = n }
}

// WithBackoff sets the initial and maximum retry intervals.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(s *Service) {
		s.initial = initial
		s.maxWait = maxInterval
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// Wrap decorates inner.
func Wrap(inner driven.EmbeddingService, opts ...Option) *Service {
	s := &Service{
		inner:      inner,
		limiter:    rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1),
		maxRetries: DefaultMaxRetries,
		initial:    DefaultInitialInterval,
		maxWait:    DefaultMaxInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.OrNop(s.log)
	return s
}

// Embed embeds one text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	var out []float32
	err := s.do(ctx, "embed", func() error {
		var err error
		out, err = s.inner.Embed(ctx, text)
		return err
	})
	return out, err
}

// EmbedBatch embeds texts in one upstream call.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var out [][]float32
	err := s.do(ctx, "embed batch", func() error {
		var err error
		out, err = s.inner.EmbedBatch(ctx, texts)
		return err
	})
	return out, err
}

// Dimensions delegates to the wrapped service.
func (s *Service) Dimensions() int { return s.inner.Dimensions() }

// ModelName delegates to the wrapped service.
func (s *Service) ModelName() string { return s.inner.ModelName() }

// Ping delegates without retries.
func (s *Service) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

// Close delegates to the wrapped service.
func (s *Service) Close() error { return s.inner.Close() }

func (s *Service) do(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.initial
	eb.MaxInterval = s.maxWait
	eb.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		if err := s.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		s.log.Debug("embedding call failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}

	return backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(eb, s.maxRetries), ctx))
}

// retryable reports whether err may succeed on a later attempt. Rejected
// credentials surface as domain.ErrConfiguration and are never retried.
func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidProvider):
		return false
	}
	return true
}
