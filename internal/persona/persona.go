// Package persona loads the system-instruction profile the generator is
// primed with. Profiles are small YAML files; when none is configured the
// embedded default is used.
package persona

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Persona is the instruction profile sent as the generation system prompt.
type Persona struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// Default is the built-in profile used when no persona file is configured.
var Default = Persona{
	Name: "assistant",
	SystemPrompt: "You are a helpful assistant chatting over Telegram. " +
		"Answer in the language the user writes in. Keep replies focused and " +
		"use simple markdown (bold, italic, code blocks) where it helps.",
}

// Load reads a persona profile from a YAML file. An empty path returns the
// embedded default; a missing or malformed file is an error so a typo in the
// config does not silently change the bot's behavior.
func Load(path string, logger *slog.Logger) (Persona, error) {
	if path == "" {
		logger.Debug("no persona configured, using default", "name", Default.Name)
		return Default, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("read persona file: %w", err)
	}

	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("parse persona file %s: %w", path, err)
	}
	if p.SystemPrompt == "" {
		return Persona{}, fmt.Errorf("persona file %s has no systemPrompt", path)
	}
	if p.Name == "" {
		p.Name = "custom"
	}

	logger.Info("loaded persona", "name", p.Name, "path", path)
	return p, nil
}
