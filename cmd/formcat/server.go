package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/formcat/internal/api"
	"github.com/kalambet/formcat/internal/catalogue"
	"github.com/kalambet/formcat/internal/config"
	"github.com/kalambet/formcat/internal/provider"
	"github.com/kalambet/formcat/internal/session"
	"github.com/kalambet/formcat/internal/storage"
)

const sweepInterval = time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the formcat server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running formcat server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show formcat server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "formcat.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func providerSettings(cfg config.Config) provider.Settings {
	return provider.Settings{
		Default:           cfg.Generate.Provider,
		OpenRouterAPIKey:  cfg.OpenRouter.APIKey,
		OpenRouterModel:   cfg.OpenRouter.Model,
		OpenRouterBaseURL: cfg.OpenRouter.BaseURL,
		OpenAIAPIKey:      cfg.OpenAI.APIKey,
		OpenAIModel:       cfg.OpenAI.Model,
		OpenAIBaseURL:     cfg.OpenAI.BaseURL,
		AnthropicAPIKey:   cfg.Anthropic.APIKey,
		AnthropicModel:    cfg.Anthropic.Model,
		OllamaBaseURL:     cfg.Ollama.BaseURL,
		OllamaModel:       cfg.Ollama.Model,
	}
}

// checkCatalogue fails with catalogue.ErrStorageUnavailable when the
// catalogue file cannot be read.
func checkCatalogue(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s: %v", catalogue.ErrStorageUnavailable, path, err)
	}
	return nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "formcat version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	if err := checkCatalogue(cfg.Catalogue.Path); err != nil {
		return err
	}
	if cfg.Admin.Password == "" {
		slog.Warn("admin.password is not set; privileged login is disabled")
	}

	// Refuse to start a second server on the same port.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get("http://" + cfg.Server.Addr() + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("formcat is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("formcat is already running on %s", cfg.Server.Addr())
		return fmt.Errorf("server already running on %s", cfg.Server.Addr())
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	registry, err := provider.FromSettings(providerSettings(cfg))
	if err != nil {
		return fmt.Errorf("building providers: %w", err)
	}

	sessions := session.NewManager(catalogue.NewFileTable(cfg.Catalogue.Path), session.Options{
		DefaultProvider: registry.Default(),
		GenerateTimeout: cfg.Generate.Timeout,
		IdleTimeout:     cfg.Session.IdleTimeout,
		MaxSessions:     cfg.Session.MaxSessions,
		Auditor:         store,
	})

	handler := api.NewHandler(api.Deps{
		Sessions:      sessions,
		Providers:     registry,
		Audit:         store,
		AdminPassword: cfg.Admin.Password,
	})

	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "formcat listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return sessions.RunSweeper(gctx, sweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("formcat is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop formcat (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to formcat (PID %d)", pid)
	return nil
}

type recordsCount struct {
	Count int `json:"count"`
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}

	client, err := newAPIClient()
	if err != nil {
		return err
	}
	client.httpClient.Timeout = 2 * time.Second

	running := false
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Server.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if running {
		if resp, err := client.get(ctx, "/records"); err == nil {
			var rc recordsCount
			if err := decodeJSON(resp, &rc); err == nil {
				printStatus("Records", "%d", rc.Count)
			} else {
				printStatus("Records", "unavailable (%v)", err)
			}
		}
	}

	printStatus("Catalogue", "%s", cfg.Catalogue.Path)
	printStatus("Provider", "%s", cfg.Generate.Provider)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
