package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/grapheneos/appstore/pkg/auth"
)

// EnvPrefix prefixes every environment override, e.g.
// APPSTORE_REPOSITORY_BASE_URL.
const EnvPrefix = "APPSTORE"

type field struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func durationField(p func(c *Config) *time.Duration) field {
	return field{
		get: func(c *Config) string { return p(c).String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*p(c) = d
			return nil
		},
	}
}

func stringField(p func(c *Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func intField(p func(c *Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*p(c) = n
			return nil
		},
	}
}

func boolField(p func(c *Config) *bool) field {
	return field{
		get: func(c *Config) string { return strconv.FormatBool(*p(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*p(c) = b
			return nil
		},
	}
}

var fields = map[string]field{
	"repository.base_url":        stringField(func(c *Config) *string { return &c.Repository.BaseURL }),
	"repository.public_key":      stringField(func(c *Config) *string { return &c.Repository.PublicKey }),
	"repository.key_version":     intField(func(c *Config) *int { return &c.Repository.KeyVersion }),
	"repository.validate_schema": boolField(func(c *Config) *bool { return &c.Repository.ValidateSchema }),
	"repository.auth.type": {
		get: func(c *Config) string { return string(c.Repository.Auth.Type) },
		set: func(c *Config, v string) error {
			c.Repository.Auth.Type = auth.Type(v)
			return nil
		},
	},
	"repository.auth.username": stringField(func(c *Config) *string { return &c.Repository.Auth.Username }),
	"repository.auth.password": stringField(func(c *Config) *string { return &c.Repository.Auth.Password }),
	"repository.auth.token":    stringField(func(c *Config) *string { return &c.Repository.Auth.Token }),

	"device.sdk":          intField(func(c *Config) *int { return &c.Device.SDK }),
	"device.abi":          stringField(func(c *Config) *string { return &c.Device.PrimaryABI }),
	"device.name":         stringField(func(c *Config) *string { return &c.Device.Name }),
	"device.density_dpi":  intField(func(c *Config) *int { return &c.Device.DensityDPI }),
	"device.self_package": stringField(func(c *Config) *string { return &c.Device.SelfPackage }),
	"device.privileged":   boolField(func(c *Config) *bool { return &c.Device.Privileged }),
	"device.locales": {
		get: func(c *Config) string { return strings.Join(c.Device.Locales, ",") },
		set: func(c *Config, v string) error {
			c.Device.Locales = strings.Split(v, ",")
			return nil
		},
	},

	"settings.cache_dir":               stringField(func(c *Config) *string { return &c.Settings.CacheDir }),
	"settings.state_dir":               stringField(func(c *Config) *string { return &c.Settings.StateDir }),
	"settings.hooks_dir":               stringField(func(c *Config) *string { return &c.Settings.HooksDir }),
	"settings.connect_timeout":         durationField(func(c *Config) *time.Duration { return &c.Settings.ConnectTimeout }),
	"settings.read_timeout":            durationField(func(c *Config) *time.Duration { return &c.Settings.ReadTimeout }),
	"settings.download_concurrency":    intField(func(c *Config) *int { return &c.Settings.DownloadConcurrency }),
	"settings.user_agent":              stringField(func(c *Config) *string { return &c.Settings.UserAgent }),
	"settings.session_capacity":        intField(func(c *Config) *int { return &c.Settings.SessionCapacity }),
	"settings.install_timeout":         durationField(func(c *Config) *time.Duration { return &c.Settings.InstallTimeout }),
	"settings.default_channel":         stringField(func(c *Config) *string { return &c.Settings.DefaultChannel }),
	"settings.auto_update":             boolField(func(c *Config) *bool { return &c.Settings.AutoUpdate }),
	"settings.cache_max_age":           durationField(func(c *Config) *time.Duration { return &c.Settings.CacheMaxAge }),
	"settings.prune_initial_delay":     durationField(func(c *Config) *time.Duration { return &c.Settings.PruneInitialDelay }),
	"settings.prune_interval":          durationField(func(c *Config) *time.Duration { return &c.Settings.PruneInterval }),
	"settings.repo_check_min_interval": durationField(func(c *Config) *time.Duration { return &c.Settings.RepoCheckMinInterval }),
	"settings.update_loop_interval":    durationField(func(c *Config) *time.Duration { return &c.Settings.UpdateLoopInterval }),
	"settings.output_format":           stringField(func(c *Config) *string { return &c.Settings.OutputFormat }),
	"settings.log_level":               stringField(func(c *Config) *string { return &c.Settings.LogLevel }),
	"settings.log_format":              stringField(func(c *Config) *string { return &c.Settings.LogFormat }),
	"settings.language":                stringField(func(c *Config) *string { return &c.Settings.Language }),
	"settings.metrics_addr":            stringField(func(c *Config) *string { return &c.Settings.MetricsAddr }),
	"settings.cache_max_size": {
		get: func(c *Config) string { return strconv.FormatInt(c.Settings.CacheMaxSize, 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return err
			}
			c.Settings.CacheMaxSize = n
			return nil
		},
	},
}

// Keys lists every settable key in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetValue sets a configuration value by dotted key.
func (c *Config) SetValue(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	if err := f.set(c, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

// GetValue returns a configuration value by dotted key.
func (c *Config) GetValue(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return f.get(c), nil
}

// ToMap renders every key for display.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string, len(fields))
	for k, f := range fields {
		result[k] = f.get(c)
	}
	return result
}

// ApplyEnv overlays APPSTORE_* environment variables and revalidates.
func (c *Config) ApplyEnv() error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range Keys() {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}
	for _, key := range Keys() {
		if !v.IsSet(key) {
			continue
		}
		if err := c.SetValue(key, v.GetString(key)); err != nil {
			return err
		}
	}
	c.applyDefaults()
	return c.Validate()
}
