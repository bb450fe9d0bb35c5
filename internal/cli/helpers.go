package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/grapheneos/appstore/internal/logger"
	"github.com/grapheneos/appstore/pkg/apkcheck"
	"github.com/grapheneos/appstore/pkg/config"
	"github.com/grapheneos/appstore/pkg/messages"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	Verbose      *bool
	OutputFormat *string
	Language     *string
	MetricsAddr  *string
)

// ReadManifest replaces the apk manifest parser of the local device when
// set. Tests use it to install synthetic apks.
var ReadManifest apkcheck.ManifestReader

func getConfigPath() (string, error) {
	if ConfigPath != nil && *ConfigPath != "" {
		return *ConfigPath, nil
	}
	path, err := config.GetDefaultConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get default config path: %w", err)
	}
	return path, nil
}

// loadConfig reads the config file, overlays the environment and the
// global flags, and sets up logging.
func loadConfig() (*config.Config, error) {
	path, err := getConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if OutputFormat != nil && *OutputFormat != "" {
		cfg.Settings.OutputFormat = *OutputFormat
	}
	if Language != nil && *Language != "" {
		cfg.Settings.Language = *Language
	}
	if MetricsAddr != nil && *MetricsAddr != "" {
		cfg.Settings.MetricsAddr = *MetricsAddr
	}
	if isVerbose() {
		cfg.Settings.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.InitLogger(cfg.Settings.LogLevel, logger.ParseFormat(cfg.Settings.LogFormat))
	return cfg, nil
}

func isVerbose() bool {
	return Verbose != nil && *Verbose
}

func wantJSON(cfg *config.Config) bool {
	return cfg.Settings.OutputFormat == "json"
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// userError carries the localized rendering of err.
type userError struct {
	msg string
	err error
}

func (e *userError) Error() string { return e.msg }

func (e *userError) Unwrap() error { return e.err }

func localize(l *messages.Localizer, err error) error {
	if err == nil {
		return nil
	}
	return &userError{msg: l.Error(err), err: err}
}
