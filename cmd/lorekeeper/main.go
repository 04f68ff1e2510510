// Package main is the entry point for the lorekeeper CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/flemzord/lorekeeper/internal/config"
	"github.com/flemzord/lorekeeper/internal/core"
	"github.com/flemzord/lorekeeper/internal/engine"
	"github.com/flemzord/lorekeeper/internal/settings"
	"github.com/flemzord/lorekeeper/internal/storage/sqlite"
	"github.com/flemzord/lorekeeper/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lorekeeper",
		Short:         "Lore annotation engine for interactive fiction",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), serveCmd(), configCmd(), replayCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "lorekeeper %s (commit: %s, built: %s)\n", version, commit, date)
			fmt.Fprintln(out, "\nCompiled modules:")
			groups := core.Namespaces()
			for _, ns := range slices.Sorted(maps.Keys(groups)) {
				fmt.Fprintf(out, "  %s:\n", ns)
				for _, id := range groups[ns] {
					fmt.Fprintf(out, "    %s\n", id)
				}
			}
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway and all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := config.ParseEnv()
			if err != nil {
				return err
			}
			cfgPath, _ := cmd.Flags().GetString("config")
			if cfgPath == "" {
				cfgPath = env.ConfigPath
			}
			dataDir, _ := cmd.Flags().GetString("data-dir")
			if dataDir == "" {
				dataDir = env.DataDir
			}
			level, err := env.Level()
			if err != nil {
				return err
			}
			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				DataDir:    dataDir,
				LogLevel:   level,
				Env:        env,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file (env LOREKEEPER_CONFIG)")
	cmd.Flags().String("data-dir", "", "Directory for persistent data (env LOREKEEPER_DATA_DIR)")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration and provision every module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := config.ParseEnv()
			if err != nil {
				return err
			}
			cfg, err := app.LoadConfig(args[0], env)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			eng, closeEngine, err := app.NewEngine(cfg.Engine, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			dataDir := env.DataDir
			if dataDir == "" {
				dataDir = app.DefaultDataDir()
			}
			appCtx := core.NewAppContext(logger, dataDir).WithModuleConfigs(cfg.Modules)
			appCtx.RegisterService(engine.ServiceName, eng)

			application := core.NewApp(appCtx)
			ids := config.Resolve(cfg)
			if err := application.LoadModules(ids); err != nil {
				return err
			}
			defer application.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Fprintf(out, "  %s\n", id)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "defaults",
		Short: "Print the default per-session settings in config-card form",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), settings.Serialize(settings.Defaults()))
		},
	})
	return cmd
}

func replayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <transcript.yaml>",
		Short: "Drive the engine through a scripted story and print each turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tr, err := loadTranscript(args[0])
			if err != nil {
				return err
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

			rules, _ := cmd.Flags().GetStringSlice("rules")
			eng, closeEngine, err := app.NewEngine(config.EngineConfig{RuleFiles: rules}, logger, nil)
			if err != nil {
				return err
			}
			defer func() { _ = closeEngine() }()

			ctx := context.Background()
			res, err := replay(ctx, eng, tr, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			dbPath, _ := cmd.Flags().GetString("db")
			if dbPath == "" {
				return nil
			}
			store, err := sqlite.Open(ctx, dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Save(ctx, res); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved session %q to %s\n", res.ID, dbPath)
			return nil
		},
	}
	cmd.Flags().StringSlice("rules", nil, "Rule files to load into the hook pipeline")
	cmd.Flags().String("db", "", "Save the final session to this SQLite database")
	cmd.Flags().BoolP("verbose", "v", false, "Log engine activity to stderr")
	return cmd
}
