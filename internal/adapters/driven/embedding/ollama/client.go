package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/tender-ingest/internal/core/domain"
)

// embeddingHints are name fragments of embedding-capable models.
var embeddingHints = []string{"embed", "minilm", "bge", "e5-", "gte"}

// Model is an installed Ollama model.
type Model struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Size    int64  `json:"size"`
	Details struct {
		Family string `json:"family"`
	} `json:"details"`
}

// IsEmbedding reports whether the model looks embedding-capable.
func (m Model) IsEmbedding() bool {
	name := strings.ToLower(m.Name)
	for _, hint := range embeddingHints {
		if strings.Contains(name, hint) {
			return true
		}
	}
	return strings.Contains(strings.ToLower(m.Details.Family), "bert")
}

type tagsResponse struct {
	Models []Model `json:"models"`
}

type pullRequest struct {
	Name   string `json:"name"`
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

type pullResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Client manages models on an Ollama server.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a management client. A zero timeout uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping checks the server answers /api/tags.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ListModels(ctx)
	return err
}

// ListModels returns the installed models.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: ollama: ping failed: %w", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: ollama: API returned status %d (failed to read body: %w)",
				domain.ErrProviderUnavailable, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("%w: ollama: API returned status %d: %s",
			domain.ErrProviderUnavailable, resp.StatusCode, string(body))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decode tags: %w", err)
	}
	return tags.Models, nil
}

// Pull installs model and blocks until the download completes.
func (c *Client) Pull(ctx context.Context, model string) error {
	client := &http.Client{Timeout: DefaultPullTimeout}
	var out pullResponse
	if err := postJSON(ctx, client, c.baseURL+"/api/pull", pullRequest{
		Name:   model,
		Model:  model,
		Stream: false,
	}, &out); err != nil {
		return fmt.Errorf("pulling %s: %w", model, err)
	}
	if out.Error != "" {
		return fmt.Errorf("%w: pulling %s: %s", domain.ErrProviderUnavailable, model, out.Error)
	}
	return nil
}

// PickEmbeddingModel chooses a model from installed: preferred when present
// (with or without a tag), otherwise the first embedding-capable one.
// The second value is false when nothing suitable is installed.
func PickEmbeddingModel(installed []Model, preferred string) (string, bool) {
	for _, m := range installed {
		if m.Name == preferred || baseName(m.Name) == preferred {
			return m.Name, true
		}
	}
	for _, m := range installed {
		if m.IsEmbedding() {
			return m.Name, true
		}
	}
	return "", false
}
