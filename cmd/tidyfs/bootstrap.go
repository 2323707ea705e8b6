package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/config"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/logging"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/types"
)

// initialize is the persistent pre-run hook. It loads configuration,
// layers explicit global flags on top, and brings up logging. The
// config maintenance commands skip it so a broken config file can
// still be inspected and repaired; version needs none of it.
func initialize(cmd *cobra.Command, _ []string) error {
	switch {
	case cmd.Name() == "version":
		return nil
	case cmd.Name() == "config",
		cmd.Parent() != nil && cmd.Parent().Name() == "config":
		return nil
	}

	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	appCfg = cfg

	if cfg.Output.NoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	// Journal, retention area, and cache all live under these.
	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := config.EnsureCacheDir(); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	if err := logging.Init(logging.Config{
		Level:        cfg.Logging.Level,
		Path:         cfg.Logging.Path,
		Rotation:     parseRotationConfig(cfg.Logging.Rotation),
		Components:   cfg.Logging.Components,
		ConsoleLevel: consoleLogLevel(cfg),
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	return nil
}

// applyFlagOverrides layers explicitly set global flags over the
// loaded configuration. Flags outrank environment variables and the
// config file.
func applyFlagOverrides(cfg *config.Config) {
	flags := rootCmd.PersistentFlags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("format") {
		cfg.Output.Format, _ = flags.GetString("format")
	}
	if flags.Changed("no-color") {
		cfg.Output.NoColor, _ = flags.GetBool("no-color")
	}
}

// consoleLogLevel decides the stderr log mirror. Logs reach the
// terminal only when one is attached; piped and scripted runs keep
// their logs in the file. An explicit --log-level widens the mirror
// from warnings to the requested level.
func consoleLogLevel(cfg *config.Config) string {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		return ""
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		return cfg.Logging.Level
	}
	return "warn"
}

// parseRotationConfig converts the human-readable rotation settings
// into the byte counts the logging package expects. An empty or
// unparseable max_size falls back to the default rather than failing
// startup.
func parseRotationConfig(rc config.RotationConfig) logging.RotationConfig {
	maxSize := logging.DefaultRotationConfig().MaxSize
	if rc.MaxSize != "" {
		if parsed, err := types.ParseSize(rc.MaxSize); err == nil {
			maxSize = parsed
		}
	}
	return logging.RotationConfig{
		MaxSize:    maxSize,
		MaxAge:     rc.MaxAge,
		MaxBackups: rc.MaxBackups,
		Daily:      rc.Daily,
	}
}
