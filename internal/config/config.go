// Package config loads proxy configuration from an optional YAML file with
// SANDBOX_GUARD_* environment overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/clearid-dev/sandbox-guard/guard"
)

// Config is the full proxy configuration.
type Config struct {
	ListenAddr string `mapstructure:"listen_addr"`
	// Upstream is the origin guarded requests are forwarded to and relative
	// request URLs resolve against.
	Upstream string      `mapstructure:"upstream"`
	LogLevel string      `mapstructure:"log_level"`
	Redis    RedisConfig `mapstructure:"redis"`
	Limits   Limits      `mapstructure:"limits"`
}

// RedisConfig selects the shared store backend. When disabled the proxy keeps
// guard state in memory.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Limits overrides the documented guard limits. Defaults mirror
// guard.DefaultPolicy.
type Limits struct {
	ProductionHost string `mapstructure:"production_host"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
	SoftCheckLimit int    `mapstructure:"soft_check_limit"`
	HardCheckLimit int    `mapstructure:"hard_check_limit"`
	WindowLimit    int    `mapstructure:"window_limit"`
	WindowSeconds  int    `mapstructure:"window_seconds"`
}

// Load reads configuration, merging defaults, the optional file at path, and
// environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := guard.DefaultPolicy()
	v.SetDefault("listen_addr", "127.0.0.1:8632")
	v.SetDefault("upstream", defaults.Origin)
	v.SetDefault("log_level", "info")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "sandbox-guard")
	v.SetDefault("limits.production_host", defaults.ProductionHost)
	v.SetDefault("limits.max_body_bytes", defaults.MaxBodyBytes)
	v.SetDefault("limits.soft_check_limit", defaults.SoftCheckLimit)
	v.SetDefault("limits.hard_check_limit", defaults.HardCheckLimit)
	v.SetDefault("limits.window_limit", defaults.WindowLimit)
	v.SetDefault("limits.window_seconds", int(defaults.Window.Seconds()))

	v.SetEnvPrefix("SANDBOX_GUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// GuardPolicy builds the guard policy from the configured limits.
func (c *Config) GuardPolicy() guard.Policy {
	p := guard.DefaultPolicy()
	p.Origin = c.Upstream
	if c.Limits.ProductionHost != "" {
		p.ProductionHost = c.Limits.ProductionHost
	}
	if c.Limits.MaxBodyBytes > 0 {
		p.MaxBodyBytes = c.Limits.MaxBodyBytes
	}
	if c.Limits.SoftCheckLimit > 0 {
		p.SoftCheckLimit = c.Limits.SoftCheckLimit
	}
	if c.Limits.HardCheckLimit > 0 {
		p.HardCheckLimit = c.Limits.HardCheckLimit
	}
	if c.Limits.WindowLimit > 0 {
		p.WindowLimit = c.Limits.WindowLimit
	}
	if c.Limits.WindowSeconds > 0 {
		p.Window = time.Duration(c.Limits.WindowSeconds) * time.Second
	}
	return p
}
