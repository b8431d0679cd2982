package resilient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

type flakyService struct {
	failures int
	err      error
	calls    int
	closed   bool
}

func (f *flakyService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *flakyService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i)}
	}
	return out, nil
}

func (f *flakyService) Dimensions() int            { return 1 }
func (f *flakyService) ModelName() string          { return "flaky" }
func (f *flakyService) Ping(context.Context) error { return nil }
func (f *flakyService) Close() error               { f.closed = true; return nil }

func fast(opts ...Option) []Option {
	return append([]Option{WithRate(0), WithBackoff(time.Millisecond, 2*time.Millisecond)}, opts...)
}

func TestEmbedBatch_RetriesTransientFailures(t *testing.T) {
	inner := &flakyService{failures: 2, err: fmt.Errorf("%w: 503", domain.ErrEmbeddingFailed)}
	svc := Wrap(inner, fast()...)

	vecs, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 3, inner.calls)
}

func TestEmbedBatch_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyService{failures: 10, err: fmt.Errorf("%w: 503", domain.ErrEmbeddingFailed)}
	svc := Wrap(inner, fast(WithMaxRetries(2))...)

	_, err := svc.EmbedBatch(context.Background(), []string{"a"})

	assert.ErrorIs(t, err, domain.ErrEmbeddingFailed)
	assert.Equal(t, 3, inner.calls)
}

func TestEmbed_ConfigurationErrorNotRetried(t *testing.T) {
	inner := &flakyService{failures: 10, err: domain.ErrConfiguration}
	svc := Wrap(inner, fast()...)

	_, err := svc.Embed(context.Background(), "a")

	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, 1, inner.calls)
}

func TestEmbed_RejectedKeyNotRetried(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)) //nolint:errcheck
	}))
	defer ts.Close()

	inner, err := openai.NewEmbeddingService(openai.Config{APIKey: "sk-revoked", BaseURL: ts.URL + "/v1"})
	require.NoError(t, err)
	svc := Wrap(inner, fast(WithMaxRetries(4))...)

	_, err = svc.EmbedBatch(context.Background(), []string{"a", "b"})

	assert.ErrorIs(t, err, domain.ErrConfiguration)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(fmt.Errorf("%w: 503", domain.ErrEmbeddingFailed)))
	assert.True(t, retryable(fmt.Errorf("%w: connection refused", domain.ErrProviderUnavailable)))
	assert.False(t, retryable(fmt.Errorf("%w: rejected key", domain.ErrConfiguration)))
	assert.False(t, retryable(domain.ErrInvalidProvider))
	assert.False(t, retryable(context.DeadlineExceeded))
}

func TestEmbed_CanceledContext(t *testing.T) {
	inner := &flakyService{}
	svc := Wrap(inner, WithRate(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Embed(ctx, "a")

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, inner.calls)
}

func TestDelegation(t *testing.T) {
	inner := &flakyService{}
	svc := Wrap(inner)

	assert.Equal(t, 1, svc.Dimensions())
	assert.Equal(t, "flaky", svc.ModelName())
	assert.NoError(t, svc.Ping(context.Background()))
	assert.NoError(t, svc.Close())
	assert.True(t, inner.closed)
}
