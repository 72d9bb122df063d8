//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// defaultsDomain is the UserDefaults domain formcat settings live under.
const defaultsDomain = "com.formcat.app"

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "formcat-data"
	}
	return filepath.Join(home, "Library", "Application Support", "formcat")
}

// defaultsBackend stores settings with the macOS `defaults` tool.
type defaultsBackend struct {
	domain string
}

func newPlatformBackend() Backend {
	return &defaultsBackend{domain: defaultsDomain}
}

// errNoSuchKey mirrors `defaults` exiting 1 for an absent key.
var errNoSuchKey = errors.New("no such key")

func (b *defaultsBackend) run(verb, key string, extra ...string) (string, error) {
	args := append([]string{verb, b.domain, key}, extra...)
	out, err := exec.Command("defaults", args...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", errNoSuchKey
		}
		return "", fmt.Errorf("defaults %s %s: %w: %s", verb, key, err, text)
	}
	return text, nil
}

func (b *defaultsBackend) GetString(key string) (string, bool, error) {
	v, err := b.run("read", key)
	if errors.Is(err, errNoSuchKey) {
		return "", false, nil
	}
	return v, err == nil, err
}

func (b *defaultsBackend) GetInt(key string) (int, bool, error) {
	v, ok, err := b.GetString(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

func (b *defaultsBackend) SetString(key, val string) error {
	_, err := b.run("write", key, "-string", val)
	return err
}

func (b *defaultsBackend) SetInt(key string, val int) error {
	_, err := b.run("write", key, "-int", strconv.Itoa(val))
	return err
}

// Delete is a no-op for keys that were never written.
func (b *defaultsBackend) Delete(key string) error {
	if _, err := b.run("delete", key); err != nil && !errors.Is(err, errNoSuchKey) {
		return err
	}
	return nil
}
