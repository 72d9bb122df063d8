package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Catalogue  CatalogueConfig
	Storage    StorageConfig
	Session    SessionConfig
	Generate   GenerateConfig
	OpenRouter OpenRouterConfig
	OpenAI     OpenAIConfig
	Anthropic  AnthropicConfig
	Ollama     OllamaConfig
	Admin      AdminConfig
	Log        LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type CatalogueConfig struct {
	Path string
}

type StorageConfig struct {
	DataDir string
}

type SessionConfig struct {
	IdleTimeout time.Duration
	MaxSessions int
}

type GenerateConfig struct {
	Provider string
	Timeout  time.Duration
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type AdminConfig struct {
	// Password gates privileged sessions. Empty disables login.
	Password string
}

type LogConfig struct {
	Level string
}

var knownProviders = []string{"openrouter", "openai", "anthropic", "ollama"}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8501,
		},
		Catalogue: CatalogueConfig{
			Path: "forms_catalogue.csv",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Session: SessionConfig{
			IdleTimeout: 12 * time.Hour,
			MaxSessions: 256,
		},
		Generate: GenerateConfig{
			Provider: "openrouter",
			Timeout:  30 * time.Second,
		},
		OpenRouter: OpenRouterConfig{
			Model:   "openai/gpt-3.5-turbo",
			BaseURL: "https://openrouter.ai/api/v1",
		},
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku-4-5",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
			Model:   "phi3.5",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.formcat.app) and secrets
// fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/formcat/config.json
// and secrets fall back to $XDG_DATA_HOME/formcat/secrets.json.
//
// Environment variables (FORMCAT_*, plus the conventional provider names
// such as OPENAI_API_KEY) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts secret store access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b Backend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	known := false
	for _, p := range knownProviders {
		if cfg.Generate.Provider == p {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("invalid generate.provider %q: must be one of %s",
			cfg.Generate.Provider, strings.Join(knownProviders, ", "))
	}
	if cfg.Generate.Timeout <= 0 {
		return fmt.Errorf("invalid generate.timeout %s: must be positive", cfg.Generate.Timeout)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Catalogue.Path) == "" {
		return fmt.Errorf("catalogue.path must not be empty")
	}
	return nil
}

// keychainReader reads secrets from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
