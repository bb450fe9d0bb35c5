// Package config loads, validates and persists the client configuration.
// The file format is YAML; APPSTORE_* environment variables override
// individual keys.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grapheneos/appstore/pkg/auth"
	"github.com/grapheneos/appstore/pkg/errors"
	"github.com/grapheneos/appstore/pkg/fsutil"
	"github.com/grapheneos/appstore/pkg/platform"
)

// AppName names the per-user config, cache and state directories.
const AppName = "appstore"

// Config represents the application configuration.
type Config struct {
	Repository RepositoryConfig `yaml:"repository"`
	Device     platform.Device  `yaml:"device"`
	Settings   Settings         `yaml:"settings"`
}

// RepositoryConfig points at the signed package repository.
type RepositoryConfig struct {
	BaseURL        string `yaml:"base_url"`
	PublicKey      string `yaml:"public_key"`
	KeyVersion     int    `yaml:"key_version"`
	ValidateSchema bool   `yaml:"validate_schema"`
	// Auth holds mirror credentials; the official repository needs none.
	Auth auth.Config `yaml:"auth,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	CacheDir string `yaml:"cache_dir,omitempty"`
	StateDir string `yaml:"state_dir,omitempty"`
	HooksDir string `yaml:"hooks_dir,omitempty"`

	// Network settings
	ConnectTimeout      time.Duration `yaml:"connect_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout"`
	DownloadConcurrency int           `yaml:"download_concurrency"`
	UserAgent           string        `yaml:"user_agent,omitempty"`

	// Installer settings
	SessionCapacity int           `yaml:"session_capacity"`
	InstallTimeout  time.Duration `yaml:"install_timeout"`
	DefaultChannel  string        `yaml:"default_channel"`
	AutoUpdate      bool          `yaml:"auto_update"`

	// Cache pruning
	CacheMaxSize      int64         `yaml:"cache_max_size"`
	CacheMaxAge       time.Duration `yaml:"cache_max_age"`
	PruneInitialDelay time.Duration `yaml:"prune_initial_delay"`
	PruneInterval     time.Duration `yaml:"prune_interval"`

	// Loop settings
	RepoCheckMinInterval time.Duration `yaml:"repo_check_min_interval"`
	UpdateLoopInterval   time.Duration `yaml:"update_loop_interval"`

	// Output settings
	OutputFormat string `yaml:"output_format"`
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	Language     string `yaml:"language"`
	MetricsAddr  string `yaml:"metrics_addr,omitempty"`
}

// Default configuration values.
const (
	DefaultBaseURL    = "https://apps.grapheneos.org"
	DefaultPublicKey  = "RWQtZwEu1br1lMh911L3yPOs97cQb9LOks/ALBbqGl21ul695ocWR/ir"
	DefaultKeyVersion = 0

	DefaultConnectTimeout      = 10 * time.Second
	DefaultReadTimeout         = 30 * time.Second
	DefaultDownloadConcurrency = 3
	DefaultSessionCapacity     = 20
	DefaultInstallTimeout      = 30 * time.Minute
	DefaultChannel             = "stable"

	DefaultCacheMaxSize      = 500_000_000
	DefaultCacheMaxAge       = 48 * time.Hour
	DefaultPruneInitialDelay = 5 * time.Minute
	DefaultPruneInterval     = 6 * time.Hour

	DefaultRepoCheckMinInterval = 5 * time.Second
	DefaultUpdateLoopInterval   = 300 * time.Millisecond

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cacheDir := filepath.Join(os.TempDir(), AppName, "cache")
	if dir, err := os.UserCacheDir(); err == nil {
		cacheDir = filepath.Join(dir, AppName)
	}
	stateDir := filepath.Join(os.TempDir(), AppName, "state")
	if dir, err := os.UserConfigDir(); err == nil {
		stateDir = filepath.Join(dir, AppName, "state")
	}

	abi := platform.CurrentABI()
	if _, ok := platform.LookupABI(abi); !ok {
		abi = "arm64-v8a"
	}

	return &Config{
		Repository: RepositoryConfig{
			BaseURL:    DefaultBaseURL,
			PublicKey:  DefaultPublicKey,
			KeyVersion: DefaultKeyVersion,
		},
		Device: platform.Device{
			SDK:         35,
			PrimaryABI:  abi,
			DensityDPI:  420,
			Locales:     []string{"en"},
			SelfPackage: "app.grapheneos.apps",
		},
		Settings: Settings{
			CacheDir:             cacheDir,
			StateDir:             stateDir,
			ConnectTimeout:       DefaultConnectTimeout,
			ReadTimeout:          DefaultReadTimeout,
			DownloadConcurrency:  DefaultDownloadConcurrency,
			SessionCapacity:      DefaultSessionCapacity,
			InstallTimeout:       DefaultInstallTimeout,
			DefaultChannel:       DefaultChannel,
			AutoUpdate:           true,
			CacheMaxSize:         DefaultCacheMaxSize,
			CacheMaxAge:          DefaultCacheMaxAge,
			PruneInitialDelay:    DefaultPruneInitialDelay,
			PruneInterval:        DefaultPruneInterval,
			RepoCheckMinInterval: DefaultRepoCheckMinInterval,
			UpdateLoopInterval:   DefaultUpdateLoopInterval,
			OutputFormat:         "text",
			LogLevel:             "info",
			LogFormat:            "text",
			Language:             "en",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the
// defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig writes the configuration atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(path, data, fsutil.FileModeSecure); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	var sb strings.Builder
	encoder := yaml.NewEncoder(&sb)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	return []byte(sb.String()), nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := validateRepository(c.Repository); err != nil {
		return errors.Wrap(errors.ErrConfigValidation, err.Error())
	}
	if err := validateDevice(c.Device); err != nil {
		return errors.Wrap(errors.ErrConfigValidation, err.Error())
	}
	if err := validateSettings(c.Settings); err != nil {
		return errors.Wrap(errors.ErrConfigValidation, err.Error())
	}
	return nil
}

func validateRepository(r RepositoryConfig) error {
	if r.BaseURL == "" {
		return fmt.Errorf("repository base_url cannot be empty")
	}
	if !strings.HasPrefix(r.BaseURL, "http://") && !strings.HasPrefix(r.BaseURL, "https://") {
		return fmt.Errorf("repository base_url must be an http(s) URL: %s", r.BaseURL)
	}
	if r.PublicKey == "" {
		return fmt.Errorf("repository public_key cannot be empty")
	}
	if r.KeyVersion < 0 {
		return fmt.Errorf("repository key_version cannot be negative")
	}
	if _, err := auth.New(r.Auth); err != nil {
		return fmt.Errorf("repository auth: %w", err)
	}
	return nil
}

func validateDevice(d platform.Device) error {
	if d.SDK <= 0 {
		return fmt.Errorf("device sdk must be positive")
	}
	if _, ok := platform.LookupABI(d.PrimaryABI); !ok {
		return fmt.Errorf("unsupported device abi: %s", d.PrimaryABI)
	}
	if d.DensityDPI < 0 {
		return fmt.Errorf("device density_dpi cannot be negative")
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.ConnectTimeout < 0 || s.ReadTimeout < 0 || s.InstallTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	if s.DownloadConcurrency < 1 {
		return fmt.Errorf("download_concurrency must be at least 1")
	}
	if s.SessionCapacity < 1 {
		return fmt.Errorf("session_capacity must be at least 1")
	}
	if s.CacheMaxSize < 0 || s.CacheMaxAge < 0 {
		return fmt.Errorf("cache limits cannot be negative")
	}
	switch s.DefaultChannel {
	case "alpha", "beta", "stable":
	default:
		return fmt.Errorf("invalid default_channel: %s", s.DefaultChannel)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.OutputFormat] {
		return fmt.Errorf("invalid output_format: %s", s.OutputFormat)
	}
	if !validFormats[s.LogFormat] {
		return fmt.Errorf("invalid log_format: %s", s.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("invalid log_level: %s", s.LogLevel)
	}
	return nil
}

// applyDefaults fills zero values the YAML document explicitly cleared.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	s := &c.Settings
	if c.Repository.BaseURL == "" {
		c.Repository.BaseURL = d.Repository.BaseURL
	}
	c.Repository.BaseURL = strings.TrimRight(c.Repository.BaseURL, "/")
	if c.Repository.PublicKey == "" {
		c.Repository.PublicKey = d.Repository.PublicKey
	}
	if c.Device.PrimaryABI == "" {
		c.Device.PrimaryABI = d.Device.PrimaryABI
	}
	c.Device.PrimaryABI = platform.NormalizeArch(c.Device.PrimaryABI)
	if s.CacheDir == "" {
		s.CacheDir = d.Settings.CacheDir
	}
	if s.StateDir == "" {
		s.StateDir = d.Settings.StateDir
	}
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = d.Settings.ConnectTimeout
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = d.Settings.ReadTimeout
	}
	if s.DownloadConcurrency == 0 {
		s.DownloadConcurrency = d.Settings.DownloadConcurrency
	}
	if s.SessionCapacity == 0 {
		s.SessionCapacity = d.Settings.SessionCapacity
	}
	if s.InstallTimeout == 0 {
		s.InstallTimeout = d.Settings.InstallTimeout
	}
	if s.DefaultChannel == "" {
		s.DefaultChannel = d.Settings.DefaultChannel
	}
	if s.CacheMaxSize == 0 {
		s.CacheMaxSize = d.Settings.CacheMaxSize
	}
	if s.CacheMaxAge == 0 {
		s.CacheMaxAge = d.Settings.CacheMaxAge
	}
	if s.PruneInitialDelay == 0 {
		s.PruneInitialDelay = d.Settings.PruneInitialDelay
	}
	if s.PruneInterval == 0 {
		s.PruneInterval = d.Settings.PruneInterval
	}
	if s.RepoCheckMinInterval == 0 {
		s.RepoCheckMinInterval = d.Settings.RepoCheckMinInterval
	}
	if s.UpdateLoopInterval == 0 {
		s.UpdateLoopInterval = d.Settings.UpdateLoopInterval
	}
	if s.OutputFormat == "" {
		s.OutputFormat = d.Settings.OutputFormat
	}
	if s.LogLevel == "" {
		s.LogLevel = d.Settings.LogLevel
	}
	if s.LogFormat == "" {
		s.LogFormat = d.Settings.LogFormat
	}
	if s.Language == "" {
		s.Language = d.Settings.Language
	}
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, AppName, "config.yaml"), nil
}

// PackageCacheDir is the root of the apk cache.
func (c *Config) PackageCacheDir() string {
	return filepath.Join(c.Settings.CacheDir, "packages")
}

// RepoCachePath is the verified catalog envelope.
func (c *Config) RepoCachePath() string {
	return filepath.Join(c.Settings.StateDir, "repo")
}

// DatabasePath is the sqlite file holding preferences.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Settings.StateDir, "appstore.db")
}

// DeviceRoot holds the local device database and installed apks.
func (c *Config) DeviceRoot() string {
	return filepath.Join(c.Settings.StateDir, "device")
}

// TempDir holds apks while they are decompressed and verified.
func (c *Config) TempDir() string {
	return filepath.Join(c.Settings.CacheDir, "tmp")
}

// LegacyCachePaths are the files of the previous cache layout.
func (c *Config) LegacyCachePaths() []string {
	return []string{filepath.Join(c.Settings.CacheDir, "downloads")}
}

// HooksDir holds the event scripts, <state dir>/hooks unless configured.
func (c *Config) HooksDir() string {
	if c.Settings.HooksDir != "" {
		return c.Settings.HooksDir
	}
	return filepath.Join(c.Settings.StateDir, "hooks")
}
