// openai_provider.go implements the OpenAI DALL-E backend.
package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"imageforge/core"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider for OpenAI DALL-E image generation.
//
// DALL-E has no guidance parameter, so the requested guidance is echoed back
// unchanged in Output.Guidance.
//
// Thread Safety: OpenAIProvider is safe for concurrent use.
// The underlying OpenAI client handles connection pooling.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// OpenAIProviderConfig holds configuration specific to the OpenAI provider.
type OpenAIProviderConfig struct {
	// APIKey is the OpenAI API key (required)
	APIKey string

	// BaseURL is the API endpoint (default: https://api.openai.com/v1)
	BaseURL string

	// Model is the image model to use (default: dall-e-3)
	Model string
}

// DefaultOpenAIProviderConfig returns sensible defaults for OpenAI image generation.
func DefaultOpenAIProviderConfig() OpenAIProviderConfig {
	return OpenAIProviderConfig{
		BaseURL: "https://api.openai.com/v1",
		Model:   "dall-e-3",
	}
}

// NewOpenAIProvider creates a new OpenAI image generation provider from the
// application config.
//
// Returns an error if the API key is empty.
//
// Example:
//
//	provider, err := NewOpenAIProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := provider.Generate(ctx, Params{Prompt: "a sunset over mountains"})
func NewOpenAIProvider(cfg *core.Config) (*OpenAIProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("providers: config cannot be nil")
	}

	providerCfg := DefaultOpenAIProviderConfig()
	providerCfg.APIKey = cfg.OpenAIAPIKey
	if cfg.OpenAIBaseURL != "" {
		providerCfg.BaseURL = cfg.OpenAIBaseURL
	}
	if cfg.OpenAIImageModel != "" {
		providerCfg.Model = cfg.OpenAIImageModel
	}

	return NewOpenAIProviderWithConfig(providerCfg, cfg)
}

// NewOpenAIProviderWithConfig creates an OpenAI provider with explicit
// configuration. Useful for tests that point BaseURL at a local stub.
func NewOpenAIProviderWithConfig(providerCfg OpenAIProviderConfig, coreCfg *core.Config) (*OpenAIProvider, error) {
	if providerCfg.APIKey == "" {
		return nil, fmt.Errorf("providers: OpenAI API key is required")
	}

	endpoint := providerCfg.BaseURL
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}

	clientConfig := openai.DefaultConfig(providerCfg.APIKey)
	clientConfig.BaseURL = endpoint
	if coreCfg != nil {
		clientConfig.HTTPClient = core.GetHTTPClient(coreCfg, coreCfg.ProviderTimeout)
	}

	model := providerCfg.Model
	if model == "" {
		model = "dall-e-3"
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}, nil
}

// Name returns the canonical provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate creates an image using OpenAI's DALL-E API.
//
// The image is requested in base64 form so the raw bytes can be persisted
// directly without a second download of a short-lived hosted URL.
func (p *OpenAIProvider) Generate(ctx context.Context, params Params) (Output, error) {
	if params.Prompt == "" {
		return Output{}, fmt.Errorf("providers: prompt cannot be empty")
	}

	req := openai.ImageRequest{
		Prompt:         params.Prompt,
		Model:          p.model,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
		N:              1,
		User:           params.UserID,
	}

	// Style parameter is DALL-E 3 only (not supported by DALL-E 2)
	if p.model == "dall-e-3" {
		req.Style = openai.CreateImageStyleVivid
	}

	response, err := p.client.CreateImage(ctx, req)
	if err != nil {
		return Output{}, fmt.Errorf("providers: OpenAI image generation failed: %w", err)
	}

	if len(response.Data) == 0 {
		return Output{}, fmt.Errorf("providers: OpenAI returned empty Data array")
	}
	if response.Data[0].B64JSON == "" {
		return Output{}, fmt.Errorf("providers: OpenAI returned empty image payload")
	}

	data, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return Output{}, fmt.Errorf("providers: failed to decode OpenAI image payload: %w", err)
	}

	return Output{
		Data:     data,
		Model:    p.model,
		Guidance: params.Guidance,
	}, nil
}

// Model returns the configured image model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Ensure OpenAIProvider implements Provider interface at compile time.
var _ Provider = (*OpenAIProvider)(nil)
