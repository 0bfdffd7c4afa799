package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/manash/novelgen/internal/provider"
	"github.com/manash/novelgen/pkg/models"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature float32 `json:"temperature"`
}

type apiRequest struct {
	SystemInstruction *content         `json:"system_instruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type candidate struct {
	Content      *content `json:"content,omitempty"`
	FinishReason string   `json:"finishReason,omitempty"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type apiResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	Error         *apiError      `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Details []struct {
		Reason string `json:"reason"`
	} `json:"details"`
}

// Provider calls generateContent over plain REST.
type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	registry   *models.ModelRegistry
	logger     *zap.Logger
}

func New(cfg *provider.Config, registry *models.ModelRegistry) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, provider.ErrAPIKeyRequired
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		registry:   registry,
		logger:     logger.Named("gemini"),
	}, nil
}

// Constructor adapts New to provider.Factory.
func Constructor(cfg *provider.Config, registry *models.ModelRegistry) (provider.Provider, error) {
	return New(cfg, registry)
}

func (p *Provider) Name() models.ProviderType {
	return models.ProviderGemini
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

	jsonData, err := json.Marshal(buildAPIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := p.endpoint(req.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	p.logRequest(http.MethodPost, endpoint, jsonData)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", redactErr(err, p.apiKey))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	p.logResponse(resp.StatusCode, body)

	var apiResp apiResponse
	parseErr := json.Unmarshal(body, &apiResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 || apiResp.Error != nil {
		return nil, toError(resp, apiResp.Error)
	}
	if parseErr != nil {
		return nil, fmt.Errorf("failed to parse response: %w", parseErr)
	}

	return buildResponse(req.Model, apiResp)
}

func (p *Provider) endpoint(model string) string {
	return fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiKey))
}

func buildAPIRequest(req *models.Request) *apiRequest {
	apiReq := &apiRequest{
		Contents: []content{
			{Parts: []part{{Text: req.Prompt}}},
		},
		GenerationConfig: generationConfig{Temperature: req.Temperature},
	}
	if req.SystemInstruction != "" {
		apiReq.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	return apiReq
}

func buildResponse(model string, apiResp apiResponse) (*models.Response, error) {
	if len(apiResp.Candidates) == 0 || apiResp.Candidates[0].Content == nil {
		return nil, provider.ErrEmptyResponse
	}

	first := apiResp.Candidates[0]
	var sb strings.Builder
	for _, pt := range first.Content.Parts {
		sb.WriteString(pt.Text)
	}
	if strings.TrimSpace(sb.String()) == "" {
		return nil, provider.ErrEmptyResponse
	}

	response := &models.Response{
		Text:         sb.String(),
		FinishReason: first.FinishReason,
		Model:        model,
	}
	if apiResp.ModelVersion != "" {
		response.Model = apiResp.ModelVersion
	}
	if u := apiResp.UsageMetadata; u != nil {
		response.Usage = models.Usage{
			PromptTokens: u.PromptTokenCount,
			OutputTokens: u.CandidatesTokenCount,
			TotalTokens:  u.TotalTokenCount,
		}
	}
	return response, nil
}

func toError(resp *http.Response, body *apiError) error {
	apiErr := &provider.APIError{StatusCode: resp.StatusCode}
	var reasons []string
	if body != nil {
		apiErr.Message = body.Message
		apiErr.Status = body.Status
		for _, d := range body.Details {
			if d.Reason != "" {
				reasons = append(reasons, d.Reason)
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return provider.Classify(apiErr, reasons...)
}

func (p *Provider) logRequest(method, endpoint string, body []byte) {
	if ce := p.logger.Check(zap.DebugLevel, "request"); ce != nil {
		ce.Write(
			zap.String("method", method),
			zap.String("url", redact(endpoint, p.apiKey)),
			zap.ByteString("body", body))
	}
}

func (p *Provider) logResponse(statusCode int, body []byte) {
	if ce := p.logger.Check(zap.DebugLevel, "response"); ce != nil {
		ce.Write(
			zap.Int("status", statusCode),
			zap.Int("bytes", len(body)),
			zap.ByteString("body", truncate(body, 2048)))
	}
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	s = strings.ReplaceAll(s, url.QueryEscape(secret), "[REDACTED]")
	return strings.ReplaceAll(s, secret, "[REDACTED]")
}

// redactErr strips the key from transport errors, which embed the full URL.
func redactErr(err error, secret string) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		uerr.URL = redact(uerr.URL, secret)
	}
	return err
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	out := make([]byte, 0, n+len("... [truncated]"))
	out = append(out, b[:n]...)
	return append(out, "... [truncated]"...)
}
