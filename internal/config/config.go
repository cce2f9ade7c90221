// Package config loads runtime configuration for upvigil from a config
// file, environment variables and defaults, using Viper. Protocol timing
// constants default to the values the service expects and rarely need
// changing.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration.
type Config struct {
	// ServerURL is the base URL of the uptime service, e.g.
	// https://blackouts.example.com. The push connection URL is derived
	// from it.
	ServerURL string `mapstructure:"server_url"`

	// Resource is the subscription key: a device id, a view/edit token,
	// or "*" for all public devices.
	Resource string `mapstructure:"resource"`

	// EditToken, when set, replaces Resource, fetches the record with
	// management fields and enables the dashboard's management routes.
	EditToken string `mapstructure:"edit_token"`

	// Listen is the local dashboard bind address.
	Listen string `mapstructure:"listen"`

	// CORSOrigins for the local dashboard API.
	CORSOrigins []string `mapstructure:"cors_origins"`

	Environment string `mapstructure:"environment"`

	// ── Reports ──
	ReportDir string `mapstructure:"report_dir"`
	// ReportSchedule is a cron expression for periodic chart snapshots.
	// Empty disables scheduled reports.
	ReportSchedule string `mapstructure:"report_schedule"`

	// ── Beacon ──
	// UpdateToken enables the check-in beacon for the local device.
	UpdateToken string `mapstructure:"update_token"`
	// BeaconInterval is the check-in period in seconds.
	BeaconInterval int `mapstructure:"beacon_interval_seconds"`
	// ProbeTarget, when set, is pinged before each check-in so the beacon
	// never reports alive over a side channel while the uplink is dead.
	ProbeTarget string `mapstructure:"probe_target"`

	// ── Protocol constants ──
	// BlackoutCoefficient multiplies the device interval; elapsed time
	// past that product means the device is in blackout.
	BlackoutCoefficient float64 `mapstructure:"blackout_coefficient"`
	// AliveGraceSeconds absorbs network and clock jitter in the liveness
	// predicate. Independent of, and much smaller than, the blackout
	// coefficient.
	AliveGraceSeconds int `mapstructure:"alive_grace_seconds"`

	KeepaliveSeconds       int `mapstructure:"keepalive_seconds"`
	LivenessTimeoutSeconds int `mapstructure:"liveness_timeout_seconds"`
	FallbackRefreshSeconds int `mapstructure:"fallback_refresh_seconds"`
	ReconnectDelaySeconds  int `mapstructure:"reconnect_delay_seconds"`

	FetchRetries           int `mapstructure:"fetch_retries"`
	FetchRetryDelaySeconds int `mapstructure:"fetch_retry_delay_seconds"`
}

// Load reads config from ./config.yaml or ~/.upvigil/config.yaml and falls
// back to defaults. Environment variables with prefix UPVIGIL_ override
// file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server_url", "")
	v.SetDefault("resource", "*")
	v.SetDefault("edit_token", "")
	v.SetDefault("listen", "127.0.0.1:8099")
	v.SetDefault("cors_origins", []string{"http://localhost:8099"})
	v.SetDefault("environment", "production")

	v.SetDefault("report_dir", "reports")
	v.SetDefault("report_schedule", "@hourly")

	v.SetDefault("update_token", "")
	v.SetDefault("beacon_interval_seconds", 60)
	v.SetDefault("probe_target", "")

	v.SetDefault("blackout_coefficient", 2.5)
	v.SetDefault("alive_grace_seconds", 5)
	v.SetDefault("keepalive_seconds", 25)
	v.SetDefault("liveness_timeout_seconds", 35)
	v.SetDefault("fallback_refresh_seconds", 55)
	v.SetDefault("reconnect_delay_seconds", 2)
	v.SetDefault("fetch_retries", 30)
	v.SetDefault("fetch_retry_delay_seconds", 2)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.upvigil")
	if err := v.ReadInConfig(); err != nil {
		// Config file is optional; ignore "not found" errors.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("UPVIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for values the protocol cannot work
// with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is required")
	}
	if !strings.HasPrefix(c.ServerURL, "http://") && !strings.HasPrefix(c.ServerURL, "https://") {
		return fmt.Errorf("server_url must start with http:// or https://")
	}
	if c.BlackoutCoefficient <= 1 {
		return fmt.Errorf("blackout_coefficient must be greater than 1")
	}
	if c.KeepaliveSeconds <= 0 || c.LivenessTimeoutSeconds <= 0 || c.FallbackRefreshSeconds <= 0 {
		return fmt.Errorf("timer intervals must be positive")
	}
	if c.LivenessTimeoutSeconds <= c.KeepaliveSeconds {
		return fmt.Errorf("liveness_timeout_seconds must exceed keepalive_seconds")
	}
	if c.FetchRetries < 1 {
		return fmt.Errorf("fetch_retries must be at least 1")
	}
	if c.BeaconInterval < 1 {
		return fmt.Errorf("beacon_interval_seconds must be at least 1")
	}
	return nil
}

// WebSocketURL derives the push connection URL from ServerURL: the http
// scheme becomes ws (https becomes wss) and the watch path is appended.
func (c *Config) WebSocketURL() string {
	base := strings.TrimRight(c.ServerURL, "/")
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/u/watch"
}

// Durations derived from the integer-second settings.

func (c *Config) Keepalive() time.Duration { return secs(c.KeepaliveSeconds) }

func (c *Config) LivenessTimeout() time.Duration { return secs(c.LivenessTimeoutSeconds) }

func (c *Config) FallbackRefresh() time.Duration { return secs(c.FallbackRefreshSeconds) }

func (c *Config) ReconnectDelay() time.Duration { return secs(c.ReconnectDelaySeconds) }

func (c *Config) FetchRetryDelay() time.Duration { return secs(c.FetchRetryDelaySeconds) }

func (c *Config) AliveGrace() time.Duration { return secs(c.AliveGraceSeconds) }

func secs(n int) time.Duration { return time.Duration(n) * time.Second }
