package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the keychain interface.
type mockKeychain map[string]string

func (m mockKeychain) Get(service, account string) (string, error) {
	if service != keychainService {
		return "", errors.New("unknown service")
	}
	v, ok := m[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

// mapBackend is an in-memory Backend.
type mapBackend map[string]string

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	i, err := strconv.Atoi(v)
	return i, true, err
}

func (m mapBackend) SetString(key, val string) error { m[key] = val; return nil }
func (m mapBackend) SetInt(key string, val int) error { m[key] = strconv.Itoa(val); return nil }
func (m mapBackend) Delete(key string) error          { delete(m, key); return nil }

// clearEnv unsets every variable the key specs read so host settings don't leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		for _, name := range append([]string{s.env}, s.aliases...) {
			t.Setenv(name, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 8501 {
		t.Errorf("Server.Port = %d, want 8501", cfg.Server.Port)
	}
	if cfg.Server.Addr() != "127.0.0.1:8501" {
		t.Errorf("Server.Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Catalogue.Path != "forms_catalogue.csv" {
		t.Errorf("Catalogue.Path = %q", cfg.Catalogue.Path)
	}
	if cfg.Generate.Provider != "openrouter" {
		t.Errorf("Generate.Provider = %q, want openrouter", cfg.Generate.Provider)
	}
	if cfg.Generate.Timeout != 30*time.Second {
		t.Errorf("Generate.Timeout = %s, want 30s", cfg.Generate.Timeout)
	}
	if cfg.Session.IdleTimeout != 12*time.Hour {
		t.Errorf("Session.IdleTimeout = %s, want 12h", cfg.Session.IdleTimeout)
	}
	if cfg.Session.MaxSessions != 256 {
		t.Errorf("Session.MaxSessions = %d, want 256", cfg.Session.MaxSessions)
	}
	if cfg.OpenRouter.Model != "openai/gpt-3.5-turbo" {
		t.Errorf("OpenRouter.Model = %q", cfg.OpenRouter.Model)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("OpenAI.Model = %q", cfg.OpenAI.Model)
	}
	if cfg.Ollama.Model != "phi3.5" {
		t.Errorf("Ollama.Model = %q", cfg.Ollama.Model)
	}
	if cfg.Admin.Password != "" {
		t.Error("admin password must have no default")
	}
	if cfg.Storage.DataDir == "" {
		t.Error("Storage.DataDir is empty")
	}
}

func TestBackendValues(t *testing.T) {
	clearEnv(t)

	b := mapBackend{
		"server.port":          "9000",
		"catalogue.path":       "/srv/forms.csv",
		"generate.timeout":     "10s",
		"session.idle_timeout": "not-a-duration",
		"storage.data_dir":     "/tmp/formcat-test",
		// Secrets are never read from the backend.
		"admin.password": "from-file",
	}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Catalogue.Path != "/srv/forms.csv" {
		t.Errorf("Catalogue.Path = %q", cfg.Catalogue.Path)
	}
	if cfg.Generate.Timeout != 10*time.Second {
		t.Errorf("Generate.Timeout = %s, want 10s", cfg.Generate.Timeout)
	}
	if cfg.Session.IdleTimeout != 12*time.Hour {
		t.Errorf("unparseable duration should keep default, got %s", cfg.Session.IdleTimeout)
	}
	if cfg.Storage.DataDir != "/tmp/formcat-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Admin.Password != "" {
		t.Errorf("Admin.Password read from backend: %q", cfg.Admin.Password)
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORMCAT_SERVER_PORT", "7000")
	t.Setenv("FORMCAT_GENERATE_PROVIDER", "openai")
	t.Setenv("FORMCAT_GENERATE_TIMEOUT", "45s")
	t.Setenv("FORMCAT_LOG_LEVEL", "debug")
	t.Setenv("FORMCAT_SESSION_MAX_SESSIONS", "16")

	cfg, err := loadWith(mapBackend{"server.port": "9000"}, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000 (env wins over backend)", cfg.Server.Port)
	}
	if cfg.Generate.Provider != "openai" {
		t.Errorf("Generate.Provider = %q", cfg.Generate.Provider)
	}
	if cfg.Generate.Timeout != 45*time.Second {
		t.Errorf("Generate.Timeout = %s", cfg.Generate.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.Session.MaxSessions != 16 {
		t.Errorf("Session.MaxSessions = %d, want 16", cfg.Session.MaxSessions)
	}
}

func TestEnvInvalidIntKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORMCAT_SERVER_PORT", "eighty")

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 8501 {
		t.Errorf("Server.Port = %d, want default 8501", cfg.Server.Port)
	}
}

func TestEnvAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENAI_API_KEY", "sk-alias")
	t.Setenv("ADMIN_PASSWORD", "alias-pass")
	t.Setenv("FORMCAT_ADMIN_PASSWORD", "primary-pass")
	t.Setenv("OPENROUTER_MODEL", "meta/llama")

	cfg, err := loadWith(mapBackend{}, mockKeychain{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-alias" {
		t.Errorf("OpenAI.APIKey = %q, want alias value", cfg.OpenAI.APIKey)
	}
	if cfg.Admin.Password != "primary-pass" {
		t.Errorf("Admin.Password = %q, FORMCAT_ var must win over alias", cfg.Admin.Password)
	}
	if cfg.OpenRouter.Model != "meta/llama" {
		t.Errorf("OpenRouter.Model = %q", cfg.OpenRouter.Model)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("FORMCAT_OPENAI_API_KEY", "from-env")

	kc := mockKeychain{
		"openrouter_api_key": "from-keychain",
		"openai_api_key":     "ignored",
		"admin_password":     "kc-pass",
	}
	cfg, err := loadWith(mapBackend{}, kc)
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.OpenRouter.APIKey != "from-keychain" {
		t.Errorf("OpenRouter.APIKey = %q", cfg.OpenRouter.APIKey)
	}
	if cfg.OpenAI.APIKey != "from-env" {
		t.Errorf("OpenAI.APIKey = %q, env must win over keychain", cfg.OpenAI.APIKey)
	}
	if cfg.Admin.Password != "kc-pass" {
		t.Errorf("Admin.Password = %q", cfg.Admin.Password)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown provider", map[string]string{"FORMCAT_GENERATE_PROVIDER": "gemini"}},
		{"zero timeout", map[string]string{"FORMCAT_GENERATE_TIMEOUT": "0s"}},
		{"negative timeout", map[string]string{"FORMCAT_GENERATE_TIMEOUT": "-5s"}},
		{"port out of range", map[string]string{"FORMCAT_SERVER_PORT": "70000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := loadWith(mapBackend{}, mockKeychain{}); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Admin.Password = "hunter2"
	cfg.OpenAI.APIKey = "sk-secret"

	for _, ki := range ShowAll(cfg) {
		if strings.Contains(ki.Key, "api_key") || ki.Key == "admin.password" {
			t.Errorf("secret key %q listed", ki.Key)
		}
		if ki.Value == "hunter2" || ki.Value == "sk-secret" {
			t.Errorf("secret value leaked for %q", ki.Key)
		}
	}

	status := SecretStatus(cfg)
	if !status["admin.password"] || !status["openai.api_key"] || status["anthropic.api_key"] {
		t.Errorf("SecretStatus = %v", status)
	}
}

func TestSetKey(t *testing.T) {
	b := mapBackend{}

	if err := setKey(b, "server.port", "9100"); err != nil {
		t.Fatalf("setKey(server.port): %v", err)
	}
	if b["server.port"] != "9100" {
		t.Errorf("stored port = %q", b["server.port"])
	}
	if err := setKey(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKey(b, "generate.timeout", "1m"); err != nil {
		t.Fatalf("setKey(generate.timeout): %v", err)
	}
	if err := setKey(b, "generate.timeout", "soon"); err == nil {
		t.Error("expected error for invalid duration")
	}
	if err := setKey(b, "admin.password", "x"); err == nil {
		t.Error("expected error setting a secret via config")
	}
	if err := setKey(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestSecretsFile(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("secrets go to the macOS Keychain")
	}
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	if err := SetSecret("openai.api_key", "sk-file"); err != nil {
		t.Fatalf("SetSecret: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "formcat", "secrets.json")); err != nil {
		t.Fatalf("secrets file not written: %v", err)
	}

	v, err := keychainReader{}.Get(keychainService, "openai_api_key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "sk-file" {
		t.Errorf("secret = %q, want sk-file", v)
	}

	if err := SetSecret("server.port", "1"); err == nil {
		t.Error("expected error for non-secret key")
	}
}
