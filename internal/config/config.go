// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Remote struct {
		BaseURL        string `mapstructure:"base_url"`
		TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	} `mapstructure:"remote"`
	Storage struct {
		LimitBytes int64 `mapstructure:"limit_bytes"`
	} `mapstructure:"storage"`
	Sideload struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"sideload"`
	Sync struct {
		UpdateCheckInterval int `mapstructure:"update_check_interval"` // minutes
		FlushInterval       int `mapstructure:"flush_interval"`        // minutes
		MaxUploadAttempts   int `mapstructure:"max_upload_attempts"`
	} `mapstructure:"sync"`
	Tracker struct {
		MinSessionSeconds int `mapstructure:"min_session_seconds"`
	} `mapstructure:"tracker"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or "yaml"
	viper.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// This tells Viper to look for environment variables with a "SATCHEL_" prefix.
	// e.g., SATCHEL_DATABASE_PATH will override the `database.path` key.
	viper.SetEnvPrefix("SATCHEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./satchel.db")
	viper.SetDefault("remote.base_url", "http://localhost:9000")
	viper.SetDefault("remote.timeout_seconds", 30)
	viper.SetDefault("storage.limit_bytes", int64(5)*1024*1024*1024) // 5 GiB
	viper.SetDefault("sideload.path", "./sideload")
	viper.SetDefault("sync.update_check_interval", 60)
	viper.SetDefault("sync.flush_interval", 15)
	viper.SetDefault("sync.max_upload_attempts", 5)
	viper.SetDefault("tracker.min_session_seconds", 10)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
