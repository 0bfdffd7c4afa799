package models

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
)

var (
	ErrEmptyPrompt            = errors.New("prompt cannot be empty")
	ErrEmptySystemInstruction = errors.New("system instruction cannot be empty")
	ErrInvalidTemperature     = errors.New("temperature out of range for model")
	ErrUnknownStoryFormat     = errors.New("unknown story format")
)

const (
	DefaultModel = "gemini-2.5-flash"

	// DefaultTemperature is the fixed sampling temperature for chapter generation.
	DefaultTemperature float32 = 0.7
)

type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderSDK    ProviderType = "sdk"
)

func ValidProviders() []ProviderType {
	return []ProviderType{ProviderGemini, ProviderSDK}
}

func (p ProviderType) IsValid() bool {
	return slices.Contains(ValidProviders(), p)
}

func (p ProviderType) String() string {
	return string(p)
}

// StoryFormat is the target length of the work. The stored values match the
// wizard's historical record layout.
type StoryFormat string

const (
	FormatShortStory StoryFormat = "story"
	FormatNovel      StoryFormat = "novel"
)

func ValidStoryFormats() []StoryFormat {
	return []StoryFormat{FormatShortStory, FormatNovel}
}

func (f StoryFormat) IsValid() bool {
	return slices.Contains(ValidStoryFormats(), f)
}

func (f StoryFormat) String() string {
	return string(f)
}

// Label is the human readable name used in prompts.
func (f StoryFormat) Label() string {
	switch f {
	case FormatShortStory:
		return "short story"
	case FormatNovel:
		return "novel"
	default:
		return string(f)
	}
}

// Title is the capitalised noun used in exported book titles.
func (f StoryFormat) Title() string {
	if f == FormatShortStory {
		return "Story"
	}
	return "Novel"
}

// ChapterBand is the total chapter count the whole work should land in.
func (f StoryFormat) ChapterBand() string {
	if f == FormatShortStory {
		return "5-6"
	}
	return "50-60"
}

func ParseStoryFormat(s string) (StoryFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "story", "short-story", "short_story", "shortstory", "short story":
		return FormatShortStory, nil
	case "novel":
		return FormatNovel, nil
	default:
		return "", fmt.Errorf("%w %q: must be one of %v", ErrUnknownStoryFormat, s, ValidStoryFormats())
	}
}

type Request struct {
	Model             string
	SystemInstruction string
	Prompt            string
	Temperature       float32
}

func NewRequest(systemInstruction, prompt string) *Request {
	return &Request{
		SystemInstruction: systemInstruction,
		Prompt:            prompt,
		Temperature:       DefaultTemperature,
	}
}

type Usage struct {
	PromptTokens int
	OutputTokens int
	TotalTokens  int
}

type Response struct {
	Text         string
	FinishReason string
	Model        string
	Usage        Usage
}

type ModelCapabilities struct {
	Name             string
	DisplayName      string
	MaxTemperature   float32
	InputTokenLimit  int
	OutputTokenLimit int
}

func (c *ModelCapabilities) Validate(req *Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrEmptyPrompt
	}

	if strings.TrimSpace(req.SystemInstruction) == "" {
		return ErrEmptySystemInstruction
	}

	if req.Temperature < 0 || req.Temperature > c.MaxTemperature {
		return fmt.Errorf("%w: %.2f not in [0, %.2f]", ErrInvalidTemperature, req.Temperature, c.MaxTemperature)
	}

	return nil
}

func (c *ModelCapabilities) ApplyDefaults(req *Request) {
	if req.Model == "" {
		req.Model = c.Name
	}
}

type ModelRegistry struct {
	models map[string]*ModelCapabilities
}

func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{
		models: make(map[string]*ModelCapabilities),
	}
}

func (r *ModelRegistry) Register(caps *ModelCapabilities) {
	r.models[caps.Name] = caps
}

func (r *ModelRegistry) Get(name string) (*ModelCapabilities, bool) {
	caps, ok := r.models[name]
	return caps, ok
}

// List returns the registered model names in sorted order.
func (r *ModelRegistry) List() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func DefaultRegistry() *ModelRegistry {
	r := NewModelRegistry()

	r.Register(&ModelCapabilities{
		Name:             "gemini-2.5-flash",
		DisplayName:      "Gemini 2.5 Flash",
		MaxTemperature:   2.0,
		InputTokenLimit:  1048576,
		OutputTokenLimit: 65536,
	})

	r.Register(&ModelCapabilities{
		Name:             "gemini-2.5-pro",
		DisplayName:      "Gemini 2.5 Pro",
		MaxTemperature:   2.0,
		InputTokenLimit:  1048576,
		OutputTokenLimit: 65536,
	})

	r.Register(&ModelCapabilities{
		Name:             "gemini-2.5-flash-lite",
		DisplayName:      "Gemini 2.5 Flash-Lite",
		MaxTemperature:   2.0,
		InputTokenLimit:  1048576,
		OutputTokenLimit: 65536,
	})

	r.Register(&ModelCapabilities{
		Name:             "gemini-2.0-flash",
		DisplayName:      "Gemini 2.0 Flash",
		MaxTemperature:   2.0,
		InputTokenLimit:  1048576,
		OutputTokenLimit: 8192,
	})

	return r
}
