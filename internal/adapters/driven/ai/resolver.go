// Package ai selects and builds embedding services.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"

	geminiembed "github.com/custodia-labs/tender-ingest/internal/adapters/driven/embedding/gemini"
	ollamaembed "github.com/custodia-labs/tender-ingest/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/tender-ingest/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/tender-ingest/internal/adapters/driven/embedding/resilient"
	"github.com/custodia-labs/tender-ingest/internal/core/domain"
	"github.com/custodia-labs/tender-ingest/internal/core/ports/driven"
	"github.com/custodia-labs/tender-ingest/internal/logger"
)

// Ensure Resolver implements the interface.
var _ driven.EmbeddingResolver = (*Resolver)(nil)

// DefaultProbeTimeout bounds the local health check in auto mode.
const DefaultProbeTimeout = 2 * time.Second

// Config holds provider endpoints and credentials.
type Config struct {
	// OllamaHost is the local inference service address.
	OllamaHost string

	// OpenAIKey and GeminiKey are hosted credentials.
	OpenAIKey string
	GeminiKey string

	// HostedProvider selects the hosted backend. Empty picks the first
	// provider with a credential, preferring OpenAI.
	HostedProvider domain.AIProvider

	// HostedRPS limits hosted request rate. Zero uses the resilient default.
	HostedRPS float64

	// ProbeTimeout bounds the auto-mode health check.
	ProbeTimeout time.Duration

	// OpenAIBaseURL and GeminiOptions redirect hosted clients.
	OpenAIBaseURL string
	GeminiOptions []option.ClientOption
}

// Resolver negotiates an embedding backend once per run.
type Resolver struct {
	cfg Config
	log *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg Config, log *zap.Logger) *Resolver {
	if cfg.OllamaHost == "" {
		cfg.OllamaHost = ollamaembed.DefaultBaseURL
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	return &Resolver{cfg: cfg, log: logger.OrNop(log)}
}

// Resolve selects a provider for req.
//
// In auto mode the local service is probed with a short timeout and used
// when healthy; otherwise the hosted provider is used with its default
// model. In auto mode a model override applies to the local provider only.
func (r *Resolver) Resolve(ctx context.Context, req domain.EmbeddingRequest) (*driven.ResolvedEmbedding, error) {
	mode := req.Mode
	if mode == "" {
		mode = domain.ProviderModeAuto
	}

	switch mode {
	case domain.ProviderModeLocal:
		return r.resolveLocal(ctx, req.Model)

	case domain.ProviderModeHosted:
		return r.resolveHosted(ctx, req.Model)

	case domain.ProviderModeAuto:
		if r.localHealthy(ctx) {
			return r.resolveLocal(ctx, req.Model)
		}
		provider := r.hostedProvider()
		if !provider.IsValid() || provider.IsLocal() {
			return nil, fmt.Errorf("%w: unknown hosted provider %q (want openai or gemini)", domain.ErrInvalidProvider, provider)
		}
		if r.hostedKey(provider) == "" {
			return nil, fmt.Errorf("%w: local embedding service at %s is unreachable and no hosted API key is configured (set %s)",
				domain.ErrConfiguration, r.cfg.OllamaHost, keyVar(provider))
		}
		r.log.Info("local embedding service unreachable, falling back to hosted provider",
			zap.String("ollama_host", r.cfg.OllamaHost),
			zap.String("provider", provider.String()))
		return r.resolveHosted(ctx, "")

	default:
		return nil, fmt.Errorf("%w: unknown provider mode %q (want auto, local or hosted)", domain.ErrInvalidProvider, mode)
	}
}

// Open builds the service for provider and model without probing or pulling.
func (r *Resolver) Open(ctx context.Context, provider domain.AIProvider, model string) (driven.EmbeddingService, error) {
	switch provider {
	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{BaseURL: r.cfg.OllamaHost, Model: model}), nil
	case domain.AIProviderOpenAI, domain.AIProviderGemini:
		return r.newHosted(ctx, provider, model)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidProvider, provider)
	}
}

func (r *Resolver) localHealthy(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.ProbeTimeout)
	defer cancel()
	err := ollamaembed.NewClient(r.cfg.OllamaHost, r.cfg.ProbeTimeout).Ping(probeCtx)
	if err != nil {
		r.log.Debug("local embedding probe failed", zap.Error(err))
	}
	return err == nil
}

func (r *Resolver) resolveLocal(ctx context.Context, model string) (*driven.ResolvedEmbedding, error) {
	client := ollamaembed.NewClient(r.cfg.OllamaHost, 0)
	installed, err := client.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	preferred := model
	if preferred == "" {
		preferred = ollamaembed.DefaultModel
	}

	candidates := installed
	if model != "" {
		candidates = exactly(installed, model)
	}
	chosen, ok := ollamaembed.PickEmbeddingModel(candidates, preferred)
	if !ok {
		r.log.Info("pulling embedding model", zap.String("model", preferred))
		if err := client.Pull(ctx, preferred); err != nil {
			return nil, err
		}
		chosen = preferred
	}

	r.log.Debug("resolved local embedding provider", zap.String("model", chosen))
	return &driven.ResolvedEmbedding{
		Service:  ollamaembed.NewEmbeddingService(ollamaembed.Config{BaseURL: r.cfg.OllamaHost, Model: chosen}),
		Provider: domain.AIProviderOllama,
		Model:    chosen,
	}, nil
}

func (r *Resolver) resolveHosted(ctx context.Context, model string) (*driven.ResolvedEmbedding, error) {
	provider := r.hostedProvider()
	svc, err := r.newHosted(ctx, provider, model)
	if err != nil {
		return nil, err
	}
	return &driven.ResolvedEmbedding{
		Service:  svc,
		Provider: provider,
		Model:    svc.ModelName(),
	}, nil
}

func (r *Resolver) newHosted(ctx context.Context, provider domain.AIProvider, model string) (driven.EmbeddingService, error) {
	var (
		svc driven.EmbeddingService
		err error
	)
	switch provider {
	case domain.AIProviderOpenAI:
		svc, err = openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:  r.cfg.OpenAIKey,
			BaseURL: r.cfg.OpenAIBaseURL,
			Model:   model,
		})
	case domain.AIProviderGemini:
		svc, err = geminiembed.NewEmbeddingService(ctx, geminiembed.Config{
			APIKey: r.cfg.GeminiKey,
			Model:  model,
		}, r.cfg.GeminiOptions...)
	default:
		return nil, fmt.Errorf("%w: unknown hosted provider %q (want openai or gemini)", domain.ErrInvalidProvider, provider)
	}
	if err != nil {
		return nil, err
	}

	opts := []resilient.Option{resilient.WithLogger(r.log)}
	if r.cfg.HostedRPS > 0 {
		opts = append(opts, resilient.WithRate(r.cfg.HostedRPS))
	}
	return resilient.Wrap(svc, opts...), nil
}

func (r *Resolver) hostedProvider() domain.AIProvider {
	if r.cfg.HostedProvider != "" {
		return r.cfg.HostedProvider
	}
	if r.cfg.OpenAIKey == "" && r.cfg.GeminiKey != "" {
		return domain.AIProviderGemini
	}
	return domain.AIProviderOpenAI
}

func (r *Resolver) hostedKey(p domain.AIProvider) string {
	switch p {
	case domain.AIProviderOpenAI:
		return r.cfg.OpenAIKey
	case domain.AIProviderGemini:
		return r.cfg.GeminiKey
	default:
		return ""
	}
}

func keyVar(p domain.AIProvider) string {
	if p == domain.AIProviderGemini {
		return "GEMINI_API_KEY"
	}
	return "OPENAI_API_KEY"
}

// exactly keeps the installed entries matching model with or without a tag.
func exactly(installed []ollamaembed.Model, model string) []ollamaembed.Model {
	var out []ollamaembed.Model
	for _, m := range installed {
		if m.Name == model || trimTag(m.Name) == model {
			out = append(out, m)
		}
	}
	return out
}

func trimTag(name string) string {
	base, _, _ := strings.Cut(name, ":")
	return base
}
