package cost

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

const overridesFilename = "pricing.yaml"

// LocalPricing is the user's price overrides, kept next to the session
// database.
type LocalPricing struct {
	UpdatedAt time.Time             `yaml:"updated_at"`
	Source    string                `yaml:"source"`
	Models    map[string]TokenPrice `yaml:"models"`
}

func OverridesPath(dataDir string) string {
	return filepath.Join(dataDir, overridesFilename)
}

// LoadPricing reads the overrides file. A missing file returns nil, nil.
func LoadPricing(dataDir string) (*LocalPricing, error) {
	data, err := os.ReadFile(OverridesPath(dataDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read pricing overrides: %w", err)
	}

	var pricing LocalPricing
	if err := yaml.Unmarshal(data, &pricing); err != nil {
		return nil, fmt.Errorf("failed to parse pricing overrides: %w", err)
	}
	return &pricing, nil
}

func SavePricing(dataDir string, pricing *LocalPricing) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := yaml.Marshal(pricing)
	if err != nil {
		return fmt.Errorf("failed to marshal pricing: %w", err)
	}
	if err := os.WriteFile(OverridesPath(dataDir), data, 0644); err != nil {
		return fmt.Errorf("failed to write pricing overrides: %w", err)
	}
	return nil
}

// SetPrice records an override for one model.
func SetPrice(dataDir, model string, price TokenPrice) error {
	if model == "" {
		return errors.New("model is required")
	}
	if price.Input < 0 || price.Output < 0 {
		return errors.New("prices must not be negative")
	}

	pricing, err := LoadPricing(dataDir)
	if err != nil {
		return err
	}
	if pricing == nil {
		pricing = &LocalPricing{}
	}
	if pricing.Models == nil {
		pricing.Models = make(map[string]TokenPrice)
	}

	pricing.Models[model] = price
	pricing.UpdatedAt = time.Now()
	pricing.Source = "manual"
	return SavePricing(dataDir, pricing)
}

func DeletePricing(dataDir string) error {
	if err := os.Remove(OverridesPath(dataDir)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete pricing overrides: %w", err)
	}
	return nil
}

// Models returns every priced model name, built-in and overridden, sorted.
func (c *Calculator) Models() []string {
	seen := map[string]bool{}
	for m := range geminiPricing {
		seen[m] = true
	}
	for m := range c.overrides {
		seen[m] = true
	}
	names := make([]string, 0, len(seen))
	for m := range seen {
		names = append(names, m)
	}
	sort.Strings(names)
	return names
}

// Overridden reports whether model's price comes from the overrides file.
func (c *Calculator) Overridden(model string) bool {
	_, ok := c.overrides[model]
	return ok
}
