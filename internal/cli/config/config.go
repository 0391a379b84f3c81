package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8080"
	DefaultTimeout        = 10 * time.Second
	DefaultTokenStatePath = "configs/judgectl_state.json"
	DefaultWatchInterval  = time.Second
)

// Config holds judgectl configuration.
type Config struct {
	BaseURL        string        `yaml:"baseURL"`
	Timeout        time.Duration `yaml:"timeout"`
	TokenStatePath string        `yaml:"tokenStatePath"`
	WatchInterval  time.Duration `yaml:"watchInterval"`
	NoColor        bool          `yaml:"noColor"`
	// JWTSecret and JWTIssuer let "token issue" mint tokens for a local broker.
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`

	// Profiles name other brokers; a selected profile overrides the fields it sets.
	Profiles map[string]Profile `yaml:"profiles"`
}

// Profile is one named broker.
type Profile struct {
	BaseURL   string        `yaml:"baseURL"`
	Timeout   time.Duration `yaml:"timeout"`
	JWTSecret string        `yaml:"jwtSecret"`
	JWTIssuer string        `yaml:"jwtIssuer"`
}

// Load reads path and applies profile when it is not empty. A missing file yields defaults.
func Load(path, profile string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("read config file failed: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file failed: %w", err)
		}
	}
	if profile != "" {
		if err := cfg.use(profile); err != nil {
			return cfg, err
		}
	}
	applyDefaults(&cfg)
	return cfg, nil
}

func (c *Config) use(name string) error {
	p, ok := c.Profiles[name]
	if !ok {
		known := make([]string, 0, len(c.Profiles))
		for k := range c.Profiles {
			known = append(known, k)
		}
		sort.Strings(known)
		return fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(known, ", "))
	}
	if p.BaseURL != "" {
		c.BaseURL = p.BaseURL
	}
	if p.Timeout > 0 {
		c.Timeout = p.Timeout
	}
	if p.JWTSecret != "" {
		c.JWTSecret = p.JWTSecret
	}
	if p.JWTIssuer != "" {
		c.JWTIssuer = p.JWTIssuer
	}
	return nil
}

// ValidateBaseURL checks that raw is an absolute http or https URL.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid base URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("invalid base URL %q: need http(s)://host[:port]", raw)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TokenStatePath == "" {
		cfg.TokenStatePath = DefaultTokenStatePath
	}
	if cfg.WatchInterval == 0 {
		cfg.WatchInterval = DefaultWatchInterval
	}
}
