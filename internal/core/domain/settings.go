package domain

// ProviderMode is the requested embedding provider selection strategy.
type ProviderMode string

// Available provider modes.
const (
	// ProviderModeAuto prefers the local service and falls back to hosted.
	ProviderModeAuto ProviderMode = "auto"

	// ProviderModeLocal requires the local inference service.
	ProviderModeLocal ProviderMode = "local"

	// ProviderModeHosted requires a hosted commercial API.
	ProviderModeHosted ProviderMode = "hosted"
)

// IsValid returns true if the mode is recognised.
func (m ProviderMode) IsValid() bool {
	switch m {
	case ProviderModeAuto, ProviderModeLocal, ProviderModeHosted:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (m ProviderMode) String() string {
	return string(m)
}

// AIProvider identifies a concrete embedding backend.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is a local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is the OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderGemini is the Google Gemini cloud API.
	AIProviderGemini AIProvider = "gemini"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderGemini:
		return true
	default:
		return false
	}
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// EmbeddingRequest describes what the caller wants from provider resolution.
type EmbeddingRequest struct {
	// Mode is auto, local or hosted.
	Mode ProviderMode

	// Model overrides the provider default. Empty selects a default.
	Model string
}
