package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage tidyfs configuration. Without a subcommand the effective
configuration is printed.

Configuration is loaded from:
  1. $XDG_CONFIG_HOME/tidyfs/config.yaml (if set)
  2. ~/.config/tidyfs/config.yaml

Environment variables override config file settings using the TIDYFS_
prefix:
  TIDYFS_SCAN_MAX_DEPTH=20
  TIDYFS_EXEC_BATCH_SIZE=250
  TIDYFS_LOGGING_LEVEL=debug`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the effective configuration settings from all sources.`,
	RunE:  runConfigShow,
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit configuration file",
	Long: `Open the configuration file in your default editor.

The editor is determined by:
  1. $VISUAL environment variable
  2. $EDITOR environment variable
  3. Falls back to 'vi'

If the config file doesn't exist, a default one is created first.`,
	RunE: runConfigEdit,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create default configuration file",
	Long:  `Create a default configuration file if one doesn't exist.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show configuration file path",
	Long:  `Display the path to the configuration file.`,
	RunE:  runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

// configFilePath reports the config file a load would use.
func configFilePath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	configDir, err := config.ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// runConfigShow displays the effective configuration.
func runConfigShow(_ *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		printError("Failed to load configuration: %v", err)
		// Show the built-in defaults so there is something to compare
		// the broken file against.
		cfg, err = config.Default()
		if err != nil {
			return err
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file: %s\n\n", configPath)
	} else {
		fmt.Println("Config file: (using defaults, no file found)")
		fmt.Println()
	}

	fmt.Println("Current Configuration:")
	fmt.Println("----------------------")
	fmt.Printf("sandbox.roots:             %v\n", cfg.Sandbox.Roots)
	fmt.Printf("scan.max_depth:            %d\n", cfg.Scan.MaxDepth)
	fmt.Printf("scan.max_files:            %d\n", cfg.Scan.MaxFiles)
	fmt.Printf("scan.include_hidden:       %t\n", cfg.Scan.IncludeHidden)
	fmt.Printf("scan.follow_symlinks:      %t\n", cfg.Scan.FollowSymlinks)
	fmt.Printf("scan.fingerprint_ceiling:  %s\n", cfg.Scan.FingerprintCeiling)
	fmt.Printf("scan.progress_every:       %d\n", cfg.Scan.ProgressEvery)
	fmt.Printf("scan.hash_workers:         %d\n", cfg.Scan.HashWorkers)
	fmt.Printf("scan.exclude:              %v\n", cfg.Scan.Exclude)
	fmt.Printf("exec.dry_run_default:      %t\n", cfg.Exec.DryRunDefault)
	fmt.Printf("exec.batch_size:           %d\n", cfg.Exec.BatchSize)
	fmt.Printf("exec.io_timeout:           %s\n", cfg.Exec.IOTimeout)
	fmt.Printf("retention.enabled:         %t\n", cfg.Retention.Enabled)
	fmt.Printf("retention.dir:             %s\n", cfg.Retention.Dir)
	fmt.Printf("retention.ceiling:         %s\n", cfg.Retention.Ceiling)
	fmt.Printf("retention.keep:            %s\n", cfg.Retention.Keep)
	fmt.Printf("journal.dir:               %s\n", cfg.Journal.Dir)
	fmt.Printf("cache.enabled:             %t\n", cfg.Cache.Enabled)
	fmt.Printf("cache.path:                %s\n", cfg.Cache.Path)
	fmt.Printf("cache.ttl:                 %s\n", cfg.Cache.TTL)
	fmt.Printf("logging.level:             %s\n", cfg.Logging.Level)
	fmt.Printf("logging.path:              %s\n", logPathOrDefault(cfg))
	fmt.Printf("logging.rotation.max_size: %s\n", cfg.Logging.Rotation.MaxSize)
	fmt.Printf("logging.components:        %v\n", cfg.Logging.Components)
	fmt.Printf("output.format:             %s\n", cfg.Output.Format)
	fmt.Printf("output.no_color:           %t\n", cfg.Output.NoColor)

	fmt.Println("\nEnvironment Overrides:")
	fmt.Println("----------------------")
	var overrides []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "TIDYFS_") {
			overrides = append(overrides, kv)
		}
	}
	if len(overrides) == 0 {
		fmt.Println("(none)")
	} else {
		sort.Strings(overrides)
		for _, kv := range overrides {
			fmt.Println(kv)
		}
	}

	return nil
}

func logPathOrDefault(cfg *config.Config) string {
	if cfg.Logging.Path != "" {
		return cfg.Logging.Path
	}
	return "(default)"
}

// runConfigEdit opens the config file in an editor.
func runConfigEdit(_ *cobra.Command, _ []string) error {
	// Ensure the config file exists. An explicit --config path is the
	// user's to manage.
	if cfgFile == "" {
		if err := config.WriteDefault(); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
	}

	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}

	printVerbose("Opening %s with %s", configPath, editor)

	editorCmd := exec.Command(editor, configPath)
	editorCmd.Stdin = os.Stdin
	editorCmd.Stdout = os.Stdout
	editorCmd.Stderr = os.Stderr

	if err := editorCmd.Run(); err != nil {
		return fmt.Errorf("editor command failed: %w", err)
	}

	return nil
}

// runConfigInit creates a default config file.
func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(configPath); err == nil {
		printInfo("Config file already exists: %s", configPath)
		printInfo("Use 'tidyfs config edit' to modify it.")
		return nil
	}

	if err := config.WriteDefault(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	printInfo("Created default config file: %s", configPath)
	return nil
}

// runConfigPath shows the config file path.
func runConfigPath(_ *cobra.Command, _ []string) error {
	configPath, err := configFilePath()
	if err != nil {
		return err
	}

	fmt.Println(configPath)

	if _, err := os.Stat(configPath); err == nil {
		printVerbose("File exists")
	} else if os.IsNotExist(err) {
		printVerbose("File does not exist (will use defaults)")
	}

	return nil
}
