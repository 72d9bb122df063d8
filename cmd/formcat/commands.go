package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/formcat/internal/api"
	"github.com/kalambet/formcat/internal/catalogue"
	"github.com/kalambet/formcat/internal/config"
	"github.com/kalambet/formcat/internal/provider"
	"github.com/kalambet/formcat/internal/session"
	"github.com/kalambet/formcat/internal/storage"
)

func loadCatalogue(cfg config.Config) (*catalogue.Store, error) {
	if err := checkCatalogue(cfg.Catalogue.Path); err != nil {
		return nil, err
	}
	return catalogue.Load(catalogue.NewFileTable(cfg.Catalogue.Path))
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "List catalogue records matching a number or title substring",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := loadCatalogue(cfg)
		if err != nil {
			return err
		}

		query := ""
		if len(args) == 1 {
			query = args[0]
		}
		records := store.Filter(query)
		printRecords(os.Stdout, records)
		if len(records) == 0 {
			printWarning("No records match %q", query)
		}
		return nil
	},
}

func printRecords(w io.Writer, records []catalogue.Record) {
	for _, r := range records {
		mark := " "
		if r.Corrected {
			mark = colorize(colorGreen, "✓")
		}
		fmt.Fprintf(w, "%s %s  %s\n", mark, colorize(colorBold, r.Number), r.Title)
	}
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the catalogue as normalised CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := loadCatalogue(cfg)
		if err != nil {
			return err
		}
		data, err := store.Export()
		if err != nil {
			return err
		}

		if output == "" || output == "-" {
			_, err := os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		printSuccess("Exported %d records to %s", store.Len(), output)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("output", "o", "", "output file (default stdout)")
}

// --- describe ---

var describeCmd = &cobra.Command{
	Use:   "describe <number> <title>",
	Short: "Generate an AI description for one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("provider")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := loadCatalogue(cfg)
		if err != nil {
			return err
		}
		registry, err := provider.FromSettings(providerSettings(cfg))
		if err != nil {
			return err
		}
		gen, err := registry.Get(name)
		if err != nil {
			return err
		}

		sess := session.New(uuid.NewString(), store, gen.Name(), cfg.Generate.Timeout, nil)
		key := catalogue.Key{Number: args[0], Title: args[1]}

		printStep("Asking %s (%s) about %s", gen.Name(), gen.Tier(), key)
		text, err := sess.RequestGeneration(cmd.Context(), key, gen)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, text)
		return nil
	},
}

func init() {
	describeCmd.Flags().String("provider", "", "backend to use (default generate.provider)")
}

// --- providers ---

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List AI backends and whether they are ready",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		registry, err := provider.FromSettings(providerSettings(cfg))
		if err != nil {
			return err
		}
		printProviders(os.Stdout, registry.List(cmd.Context()))
		return nil
	},
}

func printProviders(w io.Writer, infos []provider.Info) {
	for _, p := range infos {
		state := colorize(colorGreen, "configured")
		if !p.Configured {
			state = colorize(colorYellow, p.Reason)
		}
		def := ""
		if p.Default {
			def = colorize(colorCyan, " (default)")
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", colorize(colorBold, p.Name), p.Tier, state, def)
	}
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the catalogue over MCP on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg.Log.Level)

		store, err := loadCatalogue(cfg)
		if err != nil {
			return err
		}
		registry, err := provider.FromSettings(providerSettings(cfg))
		if err != nil {
			return err
		}

		audit, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer audit.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Session:   session.New(uuid.NewString(), store, registry.Default(), cfg.Generate.Timeout, nil),
			Providers: registry,
			Audit:     audit,
		})
		slog.Info("MCP server started (stdio transport)", "records", store.Len())

		stdioSrv := server.NewStdioServer(mcpSrv)
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		present := config.SecretStatus(cfg)
		for _, key := range config.SecretKeys() {
			state := "not set"
			if present[key] {
				state = "set"
			}
			fmt.Printf("  %s = <%s>\n", colorize(colorBold, key), state)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key> <value>",
	Short: "Store an API key or the admin password in the secret store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		if err := config.SetSecret(key, args[1]); err != nil {
			return err
		}

		printSuccess("Stored %s", key)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetSecretCmd)
}
