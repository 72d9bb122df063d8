package provider

import (
	"context"
	"fmt"
	"sort"
)

// Settings selects and configures the backends built by FromSettings.
type Settings struct {
	Default string

	OpenRouterAPIKey  string
	OpenRouterModel   string
	OpenRouterBaseURL string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	AnthropicAPIKey string
	AnthropicModel  string

	OllamaBaseURL string
	OllamaModel   string
}

// Registry holds the available generators keyed by name.
type Registry struct {
	def        string
	generators map[string]Generator
}

// NewRegistry builds a registry from gens. def must name one of them.
func NewRegistry(def string, gens ...Generator) (*Registry, error) {
	r := &Registry{def: def, generators: make(map[string]Generator, len(gens))}
	for _, g := range gens {
		r.generators[g.Name()] = g
	}
	if _, ok := r.generators[def]; !ok {
		return nil, fmt.Errorf("default provider %q is not registered", def)
	}
	return r, nil
}

// FromSettings registers every known backend. Hosted backends without an
// API key are registered as Unconfigured so selecting them reports
// CodeNotConfigured at generation time.
func FromSettings(s Settings) (*Registry, error) {
	var gens []Generator

	if s.OpenRouterAPIKey != "" {
		gens = append(gens, NewOpenRouter(s.OpenRouterAPIKey, s.OpenRouterModel, s.OpenRouterBaseURL))
	} else {
		gens = append(gens, Unconfigured(OpenRouterName, TierFree))
	}

	if s.OpenAIAPIKey != "" {
		gens = append(gens, NewOpenAI(OpenAIConfig{
			APIKey:  s.OpenAIAPIKey,
			Model:   s.OpenAIModel,
			BaseURL: s.OpenAIBaseURL,
		}))
	} else {
		gens = append(gens, Unconfigured(OpenAIName, TierPaid))
	}

	if s.AnthropicAPIKey != "" {
		gens = append(gens, NewAnthropic(s.AnthropicAPIKey, s.AnthropicModel, ""))
	} else {
		gens = append(gens, Unconfigured(AnthropicName, TierPaid))
	}

	gens = append(gens, NewOllama(s.OllamaBaseURL, s.OllamaModel))

	def := s.Default
	if def == "" {
		def = OpenRouterName
	}
	return NewRegistry(def, gens...)
}

// Default returns the name of the default backend.
func (r *Registry) Default() string { return r.def }

// Get looks up a backend by name. An empty name selects the default.
func (r *Registry) Get(name string) (Generator, error) {
	if name == "" {
		name = r.def
	}
	g, ok := r.generators[name]
	if !ok {
		return nil, newError(CodeUnknownBackend, "unknown provider %q", name)
	}
	return g, nil
}

// Checker is implemented by backends that can tell whether they are ready
// to generate before a request is made.
type Checker interface {
	Check(ctx context.Context) error
}

// Info describes a registered backend.
type Info struct {
	Name       string `json:"name"`
	Tier       Tier   `json:"tier"`
	Configured bool   `json:"configured"`
	Default    bool   `json:"default"`
	Reason     string `json:"reason,omitempty"`
}

// List returns every registered backend sorted by name. Backends that
// implement Checker are probed and reported unconfigured when not ready.
func (r *Registry) List(ctx context.Context) []Info {
	out := make([]Info, 0, len(r.generators))
	for name, g := range r.generators {
		info := Info{
			Name:       name,
			Tier:       g.Tier(),
			Configured: true,
			Default:    name == r.def,
		}
		switch g := g.(type) {
		case unconfigured:
			info.Configured, info.Reason = false, "no API key"
		case Checker:
			if err := g.Check(ctx); err != nil {
				info.Configured, info.Reason = false, AsError(err).Message
			}
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
