package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied to every profile.
const (
	DefaultTimeout       = 15 * time.Second
	DefaultPollInterval  = 5 * time.Second
	DefaultPageSize      = 50
	DefaultNameCacheSize = 512
	DefaultNameCacheTTL  = 30 * time.Minute
)

// Config represents the global ~/.srvchat/config.toml.
type Config struct {
	DefaultProfile string             `toml:"default_profile"`
	Profiles       map[string]Profile `toml:"profiles"`
}

// Profile holds the connection settings of one remote identity.
type Profile struct {
	Endpoint      string   `toml:"endpoint"`
	ViewerID      string   `toml:"viewer_id"`
	Token         string   `toml:"token"`
	Timeout       Duration `toml:"timeout"`
	PollInterval  Duration `toml:"poll_interval"`
	PageSize      int      `toml:"page_size"`
	Push          bool     `toml:"push"`
	NameCacheSize int      `toml:"name_cache_size"`
	NameCacheTTL  Duration `toml:"name_cache_ttl"`
}

// Duration is a time.Duration written as a Go duration string ("5s", "30m").
type Duration struct {
	time.Duration
}

// D wraps d.
func D(d time.Duration) Duration {
	return Duration{d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// SignedIn reports whether the profile carries a viewer identity.
func (p Profile) SignedIn() bool {
	return p.ViewerID != "" && p.Token != ""
}

// WithDefaults fills unset fields.
func (p Profile) WithDefaults() Profile {
	if p.Timeout.Duration <= 0 {
		p.Timeout = D(DefaultTimeout)
	}
	if p.PollInterval.Duration <= 0 {
		p.PollInterval = D(DefaultPollInterval)
	}
	if p.PageSize <= 0 {
		p.PageSize = DefaultPageSize
	}
	if p.NameCacheSize <= 0 {
		p.NameCacheSize = DefaultNameCacheSize
	}
	if p.NameCacheTTL.Duration <= 0 {
		p.NameCacheTTL = D(DefaultNameCacheTTL)
	}
	return p
}

// Profile returns the named profile merged with defaults. A missing profile yields
// the defaults alone.
func (c *Config) Profile(name string) Profile {
	if c == nil {
		return Profile{}.WithDefaults()
	}
	return c.Profiles[name].WithDefaults()
}

// SetProfile stores p under name.
func (c *Config) SetProfile(name string, p Profile) {
	if c.Profiles == nil {
		c.Profiles = make(map[string]Profile)
	}
	c.Profiles[name] = p
}

// Load reads config from the given path. Returns nil config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrEmpty is Load that treats a missing file as an empty config.
func LoadOrEmpty(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
