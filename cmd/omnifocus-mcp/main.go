package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/krisalay/omnifocus-mcp-cache/internal/app"
	"github.com/krisalay/omnifocus-mcp-cache/internal/config"
	"github.com/krisalay/omnifocus-mcp-cache/internal/logging"
	"github.com/krisalay/omnifocus-mcp-cache/internal/tools"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "omnifocus-mcp",
		Short:   "OmniFocus MCP server with a category cache in front of the automation bridge",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.omnifocus-mcp/config.yaml)")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(exportCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over stdin/stdout (the default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func exportCmd(configPath *string) *cobra.Command {
	var (
		dir              string
		format           string
		includeCompleted bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks, projects and tags to a directory",
		Long: `Export all OmniFocus data in one run, the way the bulk_export tool does.

Examples:
  omnifocus-mcp export --dir ~/Backups/omnifocus
  omnifocus-mcp export --dir /tmp/of --format csv --completed=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, closeAll, err := build(*configPath)
			if err != nil {
				return err
			}
			defer closeAll()

			out, err := a.Registry.Call(cmd.Context(), "bulk_export", tools.Args{
				"outputDirectory":  dir,
				"format":           format,
				"includeCompleted": includeCompleted,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "output directory")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or csv")
	cmd.Flags().BoolVar(&includeCompleted, "completed", true, "include completed tasks")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func build(configPath string) (*app.App, func(), error) {
	cfg, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return nil, nil, err
	}
	logs := logging.New(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Debug:      cfg.Log.Debug,
	}, os.Stderr)

	a, err := app.New(cfg, logs, app.Options{})
	if err != nil {
		_ = logs.Close()
		return nil, nil, err
	}
	closeAll := func() {
		if err := a.Close(); err != nil {
			logs.For("app").Printf("close: %v", err)
		}
		_ = logs.Close()
	}
	return a, closeAll, nil
}

func runServe(ctx context.Context, configPath string) error {
	a, closeAll, err := build(configPath)
	if err != nil {
		return err
	}
	defer closeAll()

	a.Server.Version = Version
	return a.Serve(ctx, os.Stdin, os.Stdout)
}
