package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultName        = "slotd"
	DefaultListenAddr  = "127.0.0.1:7235"
	DefaultMajor       = 235
	DefaultDevicePath  = "/dev/msgslot0"
	MaxMajor           = 1<<12 - 1
	MaxMinor           = 255
	defaultReadTimeout = 60 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Duration decodes TOML strings such as "5s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// DaemonConfig is the slotd configuration file.
type DaemonConfig struct {
	Name         string         `toml:"name"`
	ListenAddr   string         `toml:"listen_addr"`
	AdminAddr    string         `toml:"admin_addr"`
	AdminToken   string         `toml:"admin_token"`
	Major        uint32         `toml:"major"` // reported to clients; ioctl numbers keep type 235
	MaxSlots     int            `toml:"max_slots"`
	MaxChannels  int            `toml:"max_channels"`
	CorsOrigins  []string       `toml:"cors_origins"`
	ReadTimeout  Duration       `toml:"read_timeout"`
	WriteTimeout Duration       `toml:"write_timeout"`
	Devices      []DeviceConfig `toml:"devices"`
}

// DeviceConfig binds a device path to a minor number.
type DeviceConfig struct {
	Path  string `toml:"path"`
	Minor uint32 `toml:"minor"`
}

// DefaultDaemonConfig serves one device at DefaultDevicePath.
func DefaultDaemonConfig() DaemonConfig {
	cfg := DaemonConfig{}
	ApplyDaemonDefaults(&cfg)
	return cfg
}

func ApplyDaemonDefaults(cfg *DaemonConfig) {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultName
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.Major == 0 {
		cfg.Major = DefaultMajor
	}
	if cfg.ReadTimeout.Duration <= 0 {
		cfg.ReadTimeout.Duration = defaultReadTimeout
	}
	if cfg.WriteTimeout.Duration <= 0 {
		cfg.WriteTimeout.Duration = defaultWriteTimeout
	}
	if len(cfg.Devices) == 0 {
		cfg.Devices = []DeviceConfig{{Path: DefaultDevicePath, Minor: 0}}
	}
	for i := range cfg.Devices {
		cfg.Devices[i].Path = strings.TrimSpace(cfg.Devices[i].Path)
	}
}

func LoadDaemonConfig(path string) (DaemonConfig, error) {
	var cfg DaemonConfig
	if err := loadToml(path, &cfg); err != nil {
		return DaemonConfig{}, err
	}
	ApplyDaemonDefaults(&cfg)
	if err := ValidateDaemonConfig(cfg); err != nil {
		return DaemonConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateDaemonConfig(cfg DaemonConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("slotd config missing name")
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("slotd config missing listen_addr")
	}
	if cfg.Major == 0 || cfg.Major > MaxMajor {
		return fmt.Errorf("slotd config major out of range: %d", cfg.Major)
	}
	if cfg.MaxSlots < 0 {
		return fmt.Errorf("slotd config max_slots must be >= 0")
	}
	if cfg.MaxChannels < 0 {
		return fmt.Errorf("slotd config max_channels must be >= 0")
	}
	if addr := strings.TrimSpace(cfg.AdminAddr); addr != "" && addr == strings.TrimSpace(cfg.ListenAddr) {
		return fmt.Errorf("slotd config admin_addr must differ from listen_addr")
	}
	return ValidateDevices(cfg.Devices)
}

// ValidateDevices rejects empty paths, minors above MaxMinor and
// duplicate paths or minors.
func ValidateDevices(devices []DeviceConfig) error {
	if len(devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	paths := make(map[string]int, len(devices))
	minors := make(map[uint32]int, len(devices))
	for i, dev := range devices {
		if err := ValidateDeviceEntry(dev); err != nil {
			return fmt.Errorf("devices[%d] invalid: %w", i, err)
		}
		if prev, ok := paths[dev.Path]; ok {
			return fmt.Errorf("devices[%d] duplicates path of devices[%d]: %s", i, prev, dev.Path)
		}
		if prev, ok := minors[dev.Minor]; ok {
			return fmt.Errorf("devices[%d] duplicates minor of devices[%d]: %d", i, prev, dev.Minor)
		}
		paths[dev.Path] = i
		minors[dev.Minor] = i
	}
	return nil
}

func ValidateDeviceEntry(dev DeviceConfig) error {
	if strings.TrimSpace(dev.Path) == "" {
		return fmt.Errorf("path is required")
	}
	if dev.Minor > MaxMinor {
		return fmt.Errorf("minor out of range: %d", dev.Minor)
	}
	return nil
}

// DeviceTable maps each configured path to its minor.
func DeviceTable(devices []DeviceConfig) map[string]uint32 {
	table := make(map[string]uint32, len(devices))
	for _, dev := range devices {
		table[strings.TrimSpace(dev.Path)] = dev.Minor
	}
	return table
}
