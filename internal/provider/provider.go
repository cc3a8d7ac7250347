// Package provider defines the stable identifiers for model sources.
package provider

import "fmt"

// ID identifies a model provider. Values are stable across restarts and are
// used as keys in the on-disk catalog document and in configuration.
type ID string

const (
	Ollama     ID = "ollama"
	OpenAI     ID = "openai"
	Groq       ID = "groq"
	Anthropic  ID = "anthropic"
	Google     ID = "google"
	OpenRouter ID = "openrouter"
	GitHub     ID = "github"
)

// Known returns all providers the application ships fetchers for.
func Known() []ID {
	return []ID{Ollama, OpenAI, Groq, Anthropic, Google, OpenRouter, GitHub}
}

// Parse validates a user-supplied provider name.
func Parse(s string) (ID, error) {
	for _, id := range Known() {
		if string(id) == s {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown provider: %s", s)
}

func (id ID) String() string { return string(id) }
