// Package sdk is the generation backend built on the official Google GenAI
// client. It produces the same results and errors as the REST backend.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/manash/novelgen/internal/provider"
	"github.com/manash/novelgen/pkg/models"
)

type Provider struct {
	client   *genai.Client
	registry *models.ModelRegistry
	logger   *zap.Logger
}

func New(ctx context.Context, cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		client:   client,
		registry: registry,
		logger:   logger.Named("sdk"),
	}, nil
}

// Constructor adapts New to provider.Factory.
func Constructor(cfg *provider.Config, registry *models.ModelRegistry) (provider.Provider, error) {
	return New(context.Background(), cfg, registry)
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderSDK
}

func (p *Provider) SupportsModel(model string) bool {
	_, ok := p.registry.Get(model)
	return ok
}

func (p *Provider) ListModels() []string {
	return p.registry.List()
}

func (p *Provider) Generate(ctx context.Context, req *models.Request) (*models.Response, error) {
	if caps, ok := p.registry.Get(req.Model); ok {
		caps.ApplyDefaults(req)
		if err := caps.Validate(req); err != nil {
			return nil, err
		}
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}

	p.logger.Debug("generate content",
		zap.String("model", req.Model),
		zap.Int("system_bytes", len(req.SystemInstruction)),
		zap.Int("prompt_bytes", len(req.Prompt)))

	result, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, mapError(err)
	}

	return buildResponse(req.Model, result)
}

func buildResponse(model string, result *genai.GenerateContentResponse) (*models.Response, error) {
	if result == nil || len(result.Candidates) == 0 {
		return nil, provider.ErrEmptyResponse
	}

	text := result.Text()
	if strings.TrimSpace(text) == "" {
		return nil, provider.ErrEmptyResponse
	}

	response := &models.Response{
		Text:         text,
		FinishReason: string(result.Candidates[0].FinishReason),
		Model:        model,
	}
	if result.ModelVersion != "" {
		response.Model = result.ModelVersion
	}
	if u := result.UsageMetadata; u != nil {
		response.Usage = models.Usage{
			PromptTokens: int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}
	return response, nil
}

func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fromAPIError(apiErr)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return fromAPIError(*apiErrPtr)
	}
	return fmt.Errorf("failed to generate content: %w", err)
}

func fromAPIError(e genai.APIError) error {
	var reasons []string
	for _, d := range e.Details {
		if r, ok := d["reason"].(string); ok {
			reasons = append(reasons, r)
		}
	}
	return provider.Classify(&provider.APIError{
		StatusCode: e.Code,
		Status:     e.Status,
		Message:    e.Message,
	}, reasons...)
}
