package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Addr           string `toml:"addr"`
	ConnectTimeout string `toml:"connect_timeout"`
	MaxAttempts    int    `toml:"max_attempts"`
}

// LoadConfigFile overlays the keys defined in path onto cfg.
func LoadConfigFile(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load client config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load client config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		if addr := strings.TrimSpace(raw.Addr); addr != "" {
			cfg.Address = addr
		}
	}

	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.Session.ConnectTimeout = d
	}

	if meta.IsDefined("max_attempts") {
		if raw.MaxAttempts < 1 {
			return Config{}, fmt.Errorf("max_attempts must be >= 1")
		}
		cfg.Session.MaxAttempts = raw.MaxAttempts
	}

	return cfg, nil
}

// ResolveConfig builds a Config from defaults, an optional config file and
// an optional address override, in that order.
func ResolveConfig(configPath, addr string) (Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(configPath); path != "" {
		loaded, err := LoadConfigFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if a := strings.TrimSpace(addr); a != "" {
		cfg.Address = a
	}
	return cfg, nil
}
