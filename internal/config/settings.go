package config

import (
	"errors"
	"fmt"
	"strings"

	"servicesim/internal/models"
	"servicesim/internal/script"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable the settings read, e.g.
// SERVICESIM_PORT or SERVICESIM_LOG_MIN_LEVEL.
const EnvPrefix = "SERVICESIM"

// NewViper returns a viper instance holding the default settings with
// environment overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("call_dir", "")
	v.SetDefault("address", "127.0.0.1")
	v.SetDefault("port", 8000)
	v.SetDefault("concurrent", false)
	v.SetDefault("script_timeout", script.DefaultBudget)
	v.SetDefault("metrics_address", "")
	v.SetDefault("ignore", []string{"**/*.db"})

	defaults := GetLogSettings()
	v.SetDefault("log.name", defaults.Name)
	v.SetDefault("log.version", defaults.Version)
	v.SetDefault("log.console", defaults.Console)
	v.SetDefault("log.beautify_console", defaults.BeautifyConsoleLog)
	v.SetDefault("log.file", defaults.File)
	v.SetDefault("log.path", defaults.Path)
	v.SetDefault("log.min_level", defaults.MinLevel)
	v.SetDefault("log.rotation_max_size_mb", defaults.RotationMaxSizeMB)
	v.SetDefault("log.max_age_day", defaults.MaxAgeDay)
	v.SetDefault("log.max_backups", defaults.MaxBackups)
	v.SetDefault("log.compress", defaults.Compress)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// LoadSettings reads configFile, if given, on top of the values already in v
// and decodes the result. An empty configFile means defaults, flags and
// environment only.
func LoadSettings(v *viper.Viper, configFile string) (*models.Settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading settings file: %w", err)
			}
		}
	}

	var settings models.Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error decoding settings: %w", err)
	}

	if err := validateSettings(&settings); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &settings, nil
}

func validateSettings(s *models.Settings) error {
	if s.CallDir == "" {
		return errors.New("no call definition directory given")
	}
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.ScriptTimeout <= 0 {
		return fmt.Errorf("script timeout must be positive, got %s", s.ScriptTimeout)
	}
	return nil
}

// GetLogSettings returns the default logging configuration
func GetLogSettings() *models.LogSettings {
	return &models.LogSettings{
		Name:               "servicesim",
		Version:            "0.1.0",
		Console:            true,
		BeautifyConsoleLog: true,
		File:               false,
		Path:               "./logs/servicesim.log",
		MinLevel:           "info",
		RotationMaxSizeMB:  100,
		MaxAgeDay:          30,
		MaxBackups:         5,
		Compress:           true,
	}
}
