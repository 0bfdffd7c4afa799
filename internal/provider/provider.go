package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/manash/novelgen/pkg/models"
)

var (
	ErrProviderNotFound  = errors.New("provider not found")
	ErrModelNotSupported = errors.New("model not supported by provider")
	ErrAPIKeyRequired    = errors.New("API key is required")
	ErrAuthFailed        = errors.New("authentication failed, check your API key")
	ErrEmptyResponse     = errors.New("no chapter text returned")
)

type Provider interface {
	Name() models.ProviderType
	Generate(ctx context.Context, req *models.Request) (*models.Response, error)
	SupportsModel(model string) bool
	ListModels() []string
}

// Config is built per generation. The API key lives only as long as the
// provider built from it.
type Config struct {
	APIKey  string
	BaseURL string
	Logger  *zap.Logger
}

// APIError is a non-success answer from the generation endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "unknown error"
	}
	return fmt.Sprintf("generation API error (%d): %s", e.StatusCode, msg)
}

func (e *APIError) isAuth(reasons []string) bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	switch e.Status {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return true
	}
	return slices.Contains(reasons, "API_KEY_INVALID")
}

// Classify turns an endpoint error into ErrAuthFailed when the key was the
// problem. The returned error still unwraps to the *APIError.
func Classify(apiErr *APIError, reasons ...string) error {
	if apiErr.isAuth(reasons) {
		return fmt.Errorf("%w: %w", ErrAuthFailed, apiErr)
	}
	return apiErr
}

type Constructor func(cfg *Config, registry *models.ModelRegistry) (Provider, error)

type Factory struct {
	registry     *models.ModelRegistry
	constructors map[models.ProviderType]Constructor
}

func NewFactory(registry *models.ModelRegistry) *Factory {
	return &Factory{
		registry:     registry,
		constructors: make(map[models.ProviderType]Constructor),
	}
}

func (f *Factory) Register(providerType models.ProviderType, ctor Constructor) {
	f.constructors[providerType] = ctor
}

// New builds a provider of the given type bound to cfg.
func (f *Factory) New(providerType models.ProviderType, cfg *Config) (Provider, error) {
	ctor, ok := f.constructors[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, providerType)
	}
	return ctor(cfg, f.registry)
}

// NewForModel is New plus a check that the backend serves model.
func (f *Factory) NewForModel(providerType models.ProviderType, model string, cfg *Config) (Provider, error) {
	if _, ok := f.registry.Get(model); !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotSupported, model)
	}

	p, err := f.New(providerType, cfg)
	if err != nil {
		return nil, err
	}

	if !p.SupportsModel(model) {
		return nil, fmt.Errorf("%w: %s (backend %s)", ErrModelNotSupported, model, providerType)
	}
	return p, nil
}

func (f *Factory) Registry() *models.ModelRegistry {
	return f.registry
}

func (f *Factory) ListProviders() []models.ProviderType {
	types := make([]models.ProviderType, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
