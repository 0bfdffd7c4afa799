// Package config resolves novelgen settings from the environment and an
// optional .env file. Command-line flags override what Load returns.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/manash/novelgen/internal/security"
	"github.com/manash/novelgen/pkg/models"
)

const appName = "novelgen"

const (
	EnvDataDir  = "NOVELGEN_DATA_DIR"
	EnvModel    = "NOVELGEN_MODEL"
	EnvBackend  = "NOVELGEN_BACKEND"
	EnvBaseURL  = "NOVELGEN_BASE_URL"
	EnvLanguage = "NOVELGEN_LANGUAGE"
	EnvLogLevel = "NOVELGEN_LOG_LEVEL"

	EnvGeminiKey = "GEMINI_API_KEY"
	EnvGoogleKey = "GOOGLE_API_KEY"
)

const DefaultLanguage = "English"

var (
	ErrAPIKeyMissing = errors.New("API key required")
	ErrBackend       = errors.New("invalid backend")
	ErrLogLevel      = errors.New("invalid log level")
)

// Config holds everything except the API key, which is resolved per call
// and never kept here.
type Config struct {
	DataDir  string
	Model    string
	Backend  models.ProviderType
	BaseURL  string
	Language string
	LogLevel zapcore.Level
}

// Getenv matches os.Getenv so tests can supply a fixed environment.
type Getenv func(string) string

// LoadDotEnv loads variables from the given files (or ./.env) without
// overriding ones already set. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("failed to load %s: %w", strings.Join(present, ", "), err)
	}
	return nil
}

// Load builds a Config from getenv, filling defaults for unset variables.
func Load(getenv Getenv) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := &Config{
		Model:    valueOr(getenv(EnvModel), models.DefaultModel),
		Backend:  models.ProviderType(valueOr(getenv(EnvBackend), models.ProviderGemini.String())),
		BaseURL:  strings.TrimSpace(getenv(EnvBaseURL)),
		Language: valueOr(getenv(EnvLanguage), DefaultLanguage),
		LogLevel: zapcore.WarnLevel,
	}

	if !cfg.Backend.IsValid() {
		return nil, fmt.Errorf("%w %q: must be one of %v", ErrBackend, cfg.Backend, models.ValidProviders())
	}

	if cfg.BaseURL != "" {
		if err := security.ValidateEndpoint(cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("%s: %w", EnvBaseURL, err)
		}
	}

	if lvl := strings.TrimSpace(getenv(EnvLogLevel)); lvl != "" {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("%w %q", ErrLogLevel, lvl)
		}
		cfg.LogLevel = parsed
	}

	dir := strings.TrimSpace(getenv(EnvDataDir))
	if dir == "" {
		var err error
		dir, err = defaultDataDir(getenv)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
	}
	cfg.DataDir = dir

	return cfg, nil
}

// ResolveAPIKey returns the key and a description of where it came from.
// Priority: explicit flag, GEMINI_API_KEY, GOOGLE_API_KEY.
func ResolveAPIKey(flag string, getenv Getenv) (string, string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if k := strings.TrimSpace(flag); k != "" {
		return k, "command-line flag", nil
	}
	for _, name := range []string{EnvGeminiKey, EnvGoogleKey} {
		if k := strings.TrimSpace(getenv(name)); k != "" {
			return k, fmt.Sprintf("environment variable (%s)", name), nil
		}
	}
	return "", "", fmt.Errorf("%w: pass --api-key or set %s", ErrAPIKeyMissing, EnvGeminiKey)
}

// MaskKey hides all but the first and last four characters.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// defaultDataDir returns the platform-specific config directory.
func defaultDataDir(getenv Getenv) (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", appName), nil
	case "windows":
		appData := getenv("APPDATA")
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, appName), nil
	default:
		configHome := getenv("XDG_CONFIG_HOME")
		if configHome == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configHome = filepath.Join(home, ".config")
		}
		return filepath.Join(configHome, appName), nil
	}
}

func valueOr(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
