// This new test file verifies the configuration loading logic using Viper.

package config

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults when no config file", func(t *testing.T) {
		// Ensure no config file exists for this test
		os.Remove("config.yml")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if default values are set
		if cfg.Port != 8080 {
			t.Errorf("Expected default port 8080, got %d", cfg.Port)
		}
		if cfg.Database.Path != "./satchel.db" {
			t.Errorf("Expected default db path './satchel.db', got '%s'", cfg.Database.Path)
		}
		if cfg.Storage.LimitBytes != int64(5)*1024*1024*1024 {
			t.Errorf("Expected default storage limit of 5 GiB, got %d", cfg.Storage.LimitBytes)
		}
		if cfg.Tracker.MinSessionSeconds != 10 {
			t.Errorf("Expected default minimum session of 10s, got %d", cfg.Tracker.MinSessionSeconds)
		}
	})

	t.Run("Loads from config file", func(t *testing.T) {
		// Create a temporary config file for this test
		configContent := `
port: 9999
database:
  path: "/tmp/test.db"
remote:
  base_url: "https://content.example.org"
sideload:
  path: "/tmp/sideload"
unknown_setting: "should be ignored"
`
		// Create the config file in the current directory so Viper can find it.
		// Note: `t.TempDir()` is not used here because Viper looks in the CWD.
		configPath := "config.yml"
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("Failed to write test config file: %v", err)
		}
		// Clean up the file after the test
		defer os.Remove(configPath)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned an error: %v", err)
		}

		// Check if values from the file were loaded
		if cfg.Port != 9999 {
			t.Errorf("Expected port 9999, got %d", cfg.Port)
		}
		if cfg.Database.Path != "/tmp/test.db" {
			t.Errorf("Expected db path '/tmp/test.db', got '%s'", cfg.Database.Path)
		}
		if cfg.Remote.BaseURL != "https://content.example.org" {
			t.Errorf("Expected remote base URL from file, got '%s'", cfg.Remote.BaseURL)
		}
		if cfg.Sync.UpdateCheckInterval != 60 {
			t.Errorf("Expected default update check interval of 60, got %d", cfg.Sync.UpdateCheckInterval)
		}
	})
}
