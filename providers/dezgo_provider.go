// dezgo_provider.go implements the Dezgo Stable Diffusion backend.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"imageforge/core"
)

// Dezgo accepts guidance in a narrower range than the request surface allows,
// so out-of-range values are clamped and the clamped value is reported back.
const (
	dezgoMinGuidance = 1
	dezgoMaxGuidance = 16
)

// DezgoProvider implements Provider for the Dezgo Stable Diffusion API.
//
// Thread Safety: DezgoProvider is safe for concurrent use.
type DezgoProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// DezgoProviderConfig holds configuration specific to the Dezgo provider.
type DezgoProviderConfig struct {
	// APIKey is the Dezgo API key (required)
	APIKey string

	// BaseURL is the API endpoint (default: https://api.dezgo.com)
	BaseURL string

	// Model is the diffusion model to request (default: flux_1_schnell)
	Model string

	// HTTPClient is the client for API calls; a default is created if nil
	HTTPClient *http.Client
}

// DefaultDezgoProviderConfig returns sensible defaults for Dezgo generation.
func DefaultDezgoProviderConfig() DezgoProviderConfig {
	return DezgoProviderConfig{
		BaseURL: "https://api.dezgo.com",
		Model:   "flux_1_schnell",
	}
}

// NewDezgoProvider creates a new Dezgo provider from the application config.
//
// Returns an error if the API key is empty.
func NewDezgoProvider(cfg *core.Config) (*DezgoProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("providers: config cannot be nil")
	}

	providerCfg := DefaultDezgoProviderConfig()
	providerCfg.APIKey = cfg.DezgoAPIKey
	if cfg.DezgoBaseURL != "" {
		providerCfg.BaseURL = cfg.DezgoBaseURL
	}
	providerCfg.HTTPClient = core.GetHTTPClient(cfg, cfg.ProviderTimeout)

	return NewDezgoProviderWithConfig(providerCfg)
}

// NewDezgoProviderWithConfig creates a Dezgo provider with explicit
// configuration. Useful for tests that point BaseURL at a local stub.
func NewDezgoProviderWithConfig(providerCfg DezgoProviderConfig) (*DezgoProvider, error) {
	if providerCfg.APIKey == "" {
		return nil, fmt.Errorf("providers: Dezgo API key is required")
	}

	baseURL := strings.TrimSuffix(providerCfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.dezgo.com"
	}

	model := providerCfg.Model
	if model == "" {
		model = "flux_1_schnell"
	}

	httpClient := providerCfg.HTTPClient
	if httpClient == nil {
		httpClient = core.GetDefaultHTTPClient(nil)
	}

	return &DezgoProvider{
		apiKey:     providerCfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}, nil
}

// Name returns the canonical provider name.
func (p *DezgoProvider) Name() string {
	return "dezgo"
}

// dezgoRequest is the JSON body for the text2image endpoint.
type dezgoRequest struct {
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
	Guidance int    `json:"guidance"`
	Format   string `json:"format"`
}

// Generate creates an image using Dezgo's text2image endpoint.
//
// The response body is the raw encoded image. Guidance outside Dezgo's
// supported range is clamped, and the clamped value is returned in
// Output.Guidance so the stored metadata reflects what was actually used.
func (p *DezgoProvider) Generate(ctx context.Context, params Params) (Output, error) {
	if params.Prompt == "" {
		return Output{}, fmt.Errorf("providers: prompt cannot be empty")
	}

	guidance := clampGuidance(params.Guidance)

	body, err := json.Marshal(dezgoRequest{
		Prompt:   params.Prompt,
		Model:    p.model,
		Guidance: guidance,
		Format:   "png",
	})
	if err != nil {
		return Output{}, fmt.Errorf("providers: failed to encode Dezgo request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/text2image", strings.NewReader(string(body)))
	if err != nil {
		return Output{}, fmt.Errorf("providers: failed to create Dezgo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dezgo-Key", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("providers: Dezgo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Output{}, fmt.Errorf("providers: Dezgo returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Output{}, fmt.Errorf("providers: failed to read Dezgo response: %w", err)
	}
	if len(data) == 0 {
		return Output{}, fmt.Errorf("providers: Dezgo returned empty image payload")
	}

	return Output{
		Data:     data,
		Model:    p.model,
		Guidance: guidance,
	}, nil
}

// Model returns the configured diffusion model name.
func (p *DezgoProvider) Model() string {
	return p.model
}

func clampGuidance(guidance int) int {
	if guidance < dezgoMinGuidance {
		return dezgoMinGuidance
	}
	if guidance > dezgoMaxGuidance {
		return dezgoMaxGuidance
	}
	return guidance
}

// Ensure DezgoProvider implements Provider interface at compile time.
var _ Provider = (*DezgoProvider)(nil)
