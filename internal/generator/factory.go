package generator

import (
	"log/slog"

	"gembot/internal/domain"
)

// DisplayNames maps user-facing model names (keyboard buttons) to model ids.
var DisplayNames = map[string]string{
	"Gemini 2.0 Flash":          ModelFlash,
	"Gemini 2.0 Flash Thinking": ModelThinking,
}

// Factory holds the closed set of generator variants and selects one by
// model id, falling back to the default for unknown ids.
type Factory struct {
	generators map[string]domain.ContentGenerator
	fallback   domain.ContentGenerator
}

type FactoryConfig struct {
	APIKey       string
	APIBase      string
	SystemPrompt string
	Logger       *slog.Logger
}

func NewFactory(cfg FactoryConfig) *Factory {
	flash := NewGemini(GeminiConfig{
		APIKey:       cfg.APIKey,
		APIBase:      cfg.APIBase,
		Model:        ModelFlash,
		SystemPrompt: cfg.SystemPrompt,
		SearchTool:   true,
		Logger:       cfg.Logger,
	})
	thinking := NewGemini(GeminiConfig{
		APIKey:       cfg.APIKey,
		APIBase:      cfg.APIBase,
		Model:        ModelThinking,
		SystemPrompt: cfg.SystemPrompt,
		Logger:       cfg.Logger,
	})
	return &Factory{
		generators: map[string]domain.ContentGenerator{
			ModelFlash:    flash,
			ModelThinking: thinking,
		},
		fallback: flash,
	}
}

// ForModel returns the generator for the given model id, or the default
// variant when the id is unknown.
func (f *Factory) ForModel(model string) domain.ContentGenerator {
	if g, ok := f.generators[model]; ok {
		return g
	}
	return f.fallback
}

// Models lists the supported model ids.
func (f *Factory) Models() []string {
	return []string{ModelFlash, ModelThinking}
}
