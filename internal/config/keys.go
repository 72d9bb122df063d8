package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const keychainService = "formcat"

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key string
	typ keyType
	env string
	// aliases are read, in order, when env is unset.
	aliases []string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

// account is the secret store account name: the key with dots replaced.
func (s keySpec) account() string {
	return strings.ReplaceAll(s.key, ".", "_")
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "FORMCAT_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "FORMCAT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "catalogue.path", typ: kString, env: "FORMCAT_CATALOGUE_PATH",
		apply:   func(cfg *Config, v any) { cfg.Catalogue.Path = v.(string) },
		extract: func(cfg Config) any { return cfg.Catalogue.Path },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FORMCAT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "session.idle_timeout", typ: kDuration, env: "FORMCAT_SESSION_IDLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Session.IdleTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.IdleTimeout },
	},
	{
		key: "session.max_sessions", typ: kInt, env: "FORMCAT_SESSION_MAX_SESSIONS",
		apply:   func(cfg *Config, v any) { cfg.Session.MaxSessions = v.(int) },
		extract: func(cfg Config) any { return cfg.Session.MaxSessions },
	},
	{
		key: "generate.provider", typ: kString, env: "FORMCAT_GENERATE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Generate.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Generate.Provider },
	},
	{
		key: "generate.timeout", typ: kDuration, env: "FORMCAT_GENERATE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Generate.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generate.Timeout },
	},
	{
		key: "openrouter.model", typ: kString, env: "FORMCAT_OPENROUTER_MODEL",
		aliases: []string{"OPENROUTER_MODEL"},
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.Model },
	},
	{
		key: "openrouter.base_url", typ: kString, env: "FORMCAT_OPENROUTER_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.BaseURL },
	},
	{
		key: "openrouter.api_key", typ: kString, env: "FORMCAT_OPENROUTER_API_KEY",
		aliases: []string{"OPENROUTER_API_KEY"}, secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenRouter.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenRouter.APIKey },
	},
	{
		key: "openai.model", typ: kString, env: "FORMCAT_OPENAI_MODEL",
		aliases: []string{"OPENAI_MODEL"},
		apply:   func(cfg *Config, v any) { cfg.OpenAI.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.Model },
	},
	{
		key: "openai.base_url", typ: kString, env: "FORMCAT_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.api_key", typ: kString, env: "FORMCAT_OPENAI_API_KEY",
		aliases: []string{"OPENAI_API_KEY"}, secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "anthropic.model", typ: kString, env: "FORMCAT_ANTHROPIC_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Anthropic.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.Model },
	},
	{
		key: "anthropic.api_key", typ: kString, env: "FORMCAT_ANTHROPIC_API_KEY",
		aliases: []string{"ANTHROPIC_API_KEY"}, secret: true,
		apply:   func(cfg *Config, v any) { cfg.Anthropic.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Anthropic.APIKey },
	},
	{
		key: "ollama.base_url", typ: kString, env: "FORMCAT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "ollama.model", typ: kString, env: "FORMCAT_OLLAMA_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.Model },
	},
	{
		key: "admin.password", typ: kString, env: "FORMCAT_ADMIN_PASSWORD",
		aliases: []string{"ADMIN_PASSWORD"}, secret: true,
		apply:   func(cfg *Config, v any) { cfg.Admin.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Admin.Password },
	},
	{
		key: "log.level", typ: kString, env: "FORMCAT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

// lookupEnv returns the first non-empty value among the key's env var and aliases.
func (s keySpec) lookupEnv() (name, raw string) {
	for _, name := range append([]string{s.env}, s.aliases...) {
		if name == "" {
			continue
		}
		if raw := os.Getenv(name); raw != "" {
			return name, raw
		}
	}
	return "", ""
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.lookupEnv()
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", name, raw, err)
			}
		}
	}
}

// applySecrets fills secrets the environment left empty from the secret store.
func applySecrets(cfg *Config, kc keychain) {
	for _, s := range specs {
		if !s.secret || s.extract(*cfg) != "" {
			continue
		}
		if v, err := kc.Get(keychainService, s.account()); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
