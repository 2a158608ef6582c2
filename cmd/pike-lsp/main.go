// Package main is the entry point for the pike-lsp language server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poppa/pike-lsp-sub006/internal/analysis"
	"github.com/poppa/pike-lsp-sub006/internal/bridge"
	"github.com/poppa/pike-lsp-sub006/internal/config"
	"github.com/poppa/pike-lsp-sub006/internal/server"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		pikeBin    string
	)

	cmd := &cobra.Command{
		Use:   "pike-lsp",
		Short: "Language server for the Pike programming language",
		Long: `pike-lsp serves the Language Server Protocol over stdio, delegating
all Pike analysis to a supervised Pike analyzer subprocess.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if pikeBin != "" {
				cfg.Pike.Bin = pikeBin
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "pike-lsp.toml", "Path to configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&pikeBin, "pike-bin", "", "Pike interpreter executable")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pike-lsp %s (%s)\n", version, commit)
		},
	})

	return cmd
}

func serve(cfg config.Config) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	br := bridge.New(bridge.Config{
		Command:              cfg.Pike.Bin,
		Args:                 []string{cfg.Pike.AnalyzerScript},
		Env:                  cfg.Pike.Env,
		WorkDir:              cfg.Pike.WorkDir,
		RequestTimeout:       cfg.RequestTimeout(),
		StopGrace:            cfg.StopGrace(),
		CacheSize:            cfg.Bridge.CacheSize,
		Denylist:             cfg.Bridge.Denylist,
		RestartAfterTimeouts: cfg.Bridge.RestartAfterTimeouts,
	}, logger.Named("bridge"))

	if err := br.Start(context.Background()); err != nil {
		return fmt.Errorf("starting analyzer: %w", err)
	}
	defer br.Stop() //nolint:errcheck

	graph := analysis.NewGraph()
	srvOpts := []server.Option{
		server.WithVersion(version),
		server.WithDependencyObserver(graph),
	}

	if cfg.Watcher.Enabled {
		inv := analysis.NewInvalidator(graph, br, logger.Named("invalidator"))
		watcher, err := analysis.NewWatcher(inv, cfg.Watcher.Extensions, logger.Named("watcher"))
		if err != nil {
			// An unavailable watcher degrades to editor-event-only
			// invalidation; it does not prevent serving.
			logger.Warn("file watcher unavailable", zap.Error(err))
		} else {
			defer watcher.Close() //nolint:errcheck
			srvOpts = append(srvOpts, server.WithRootHandler(func(root string) {
				if err := watcher.AddRecursive(root); err != nil {
					logger.Warn("watching workspace failed",
						zap.String("root", root), zap.Error(err))
				}
			}))
		}
	}

	srv := server.New(br, logger.Named("server"), srvOpts...)
	logger.Info("serving over stdio",
		zap.String("pike", cfg.Pike.Bin),
		zap.String("analyzer", cfg.Pike.AnalyzerScript),
		zap.String("session", br.SessionID()))
	return srv.RunStdio()
}

// newLogger builds a production zap logger writing to stderr. Stdout
// carries the LSP wire protocol and must stay clean.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}
