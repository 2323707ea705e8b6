package main

import (
	"os"
	"testing"

	"github.com/tidyfs/tidyfs/pkg/tidyfs/config"
	"github.com/tidyfs/tidyfs/pkg/tidyfs/logging"
)

func TestParseRotationConfig(t *testing.T) {
	tests := []struct {
		name     string
		input    config.RotationConfig
		expected logging.RotationConfig
	}{
		{
			name: "default values",
			input: config.RotationConfig{
				MaxSize:    "10MB",
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     30,
				MaxBackups: 5,
				Daily:      true,
			},
		},
		{
			name: "custom size in gigabytes",
			input: config.RotationConfig{
				MaxSize:    "1G",
				MaxAge:     7,
				MaxBackups: 3,
				Daily:      false,
			},
			expected: logging.RotationConfig{
				MaxSize:    1024 * 1024 * 1024,
				MaxAge:     7,
				MaxBackups: 3,
				Daily:      false,
			},
		},
		{
			name: "empty max_size uses default",
			input: config.RotationConfig{
				MaxSize:    "",
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     14,
				MaxBackups: 2,
				Daily:      true,
			},
		},
		{
			name: "invalid max_size uses default",
			input: config.RotationConfig{
				MaxSize:    "invalid",
				MaxAge:     21,
				MaxBackups: 4,
				Daily:      false,
			},
			expected: logging.RotationConfig{
				MaxSize:    10 * 1024 * 1024,
				MaxAge:     21,
				MaxBackups: 4,
				Daily:      false,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseRotationConfig(tt.input)

			if result.MaxSize != tt.expected.MaxSize {
				t.Errorf("MaxSize = %d, want %d", result.MaxSize, tt.expected.MaxSize)
			}
			if result.MaxAge != tt.expected.MaxAge {
				t.Errorf("MaxAge = %d, want %d", result.MaxAge, tt.expected.MaxAge)
			}
			if result.MaxBackups != tt.expected.MaxBackups {
				t.Errorf("MaxBackups = %d, want %d", result.MaxBackups, tt.expected.MaxBackups)
			}
			if result.Daily != tt.expected.Daily {
				t.Errorf("Daily = %v, want %v", result.Daily, tt.expected.Daily)
			}
		})
	}
}

func TestInitializeEnsuresDirectories(t *testing.T) {
	// Note: XDG paths are cached at package init time, so we cannot
	// override them with environment variables. Instead, we verify that
	// the pre-run hook creates the directories at the actual XDG paths.

	err := initialize(rootCmd, nil)
	if err != nil {
		t.Fatalf("initialize() returned error: %v", err)
	}

	if appCfg == nil {
		t.Fatal("initialize() did not set the active configuration")
	}

	dataDir := config.DataDir()
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		t.Errorf("data directory was not created: %s", dataDir)
	}

	cacheDir := config.CacheDir()
	if _, err := os.Stat(cacheDir); os.IsNotExist(err) {
		t.Errorf("cache directory was not created: %s", cacheDir)
	}

	// Clean up logging state
	_ = logging.Close()
}

func TestInitializeSkipsConfigCommands(t *testing.T) {
	// The config family must run even when loading would fail, so the
	// hook returns before touching configuration for them.
	saved := cfgFile
	cfgFile = "/nonexistent/tidyfs-test/config.yaml"
	defer func() { cfgFile = saved }()

	if err := initialize(versionCmd, nil); err != nil {
		t.Errorf("initialize(version) returned error: %v", err)
	}
	if err := initialize(configCmd, nil); err != nil {
		t.Errorf("initialize(config) returned error: %v", err)
	}
	if err := initialize(configShowCmd, nil); err != nil {
		t.Errorf("initialize(config show) returned error: %v", err)
	}

	// A regular command with the same broken path must fail.
	if err := initialize(scanCmd, nil); err == nil {
		t.Error("initialize(scan) with missing config file succeeded, want error")
	}
}
