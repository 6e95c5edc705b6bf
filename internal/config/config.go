package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-level configuration loaded from YAML at startup.
// Alert thresholds are not configured here; they live in the settings
// singleton and are tunable at runtime.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Sync      SyncConfig      `yaml:"sync"`
	Generator GeneratorConfig `yaml:"generator"`
	Meters    []MeterConfig   `yaml:"meters"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SyncConfig drives the external API poller.
type SyncConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// ErrorCeiling is the consecutive fetch failure count at which the
	// poller stops itself until explicitly restarted.
	ErrorCeiling int  `yaml:"error_ceiling"`
	AutoStart    bool `yaml:"auto_start"`
}

// GeneratorConfig drives the alert generator.
type GeneratorConfig struct {
	AutoStart  bool          `yaml:"auto_start"`
	StartDelay time.Duration `yaml:"start_delay"`
}

// MeterConfig describes one local modbus-TCP meter to poll directly.
type MeterConfig struct {
	Name         string        `yaml:"name"`
	MacAddress   string        `yaml:"mac_address"`
	Address      string        `yaml:"address"` // host:port
	SlaveID      uint8         `yaml:"slave_id"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	RetryCount   int           `yaml:"retry_count"`
	Registers    []RegisterMap `yaml:"registers"`
}

// RegisterMap binds one modbus register to a reading field by its wire name
// (r_voltage, y_current, frequency, ...).
type RegisterMap struct {
	Field        string  `yaml:"field"`
	Address      uint16  `yaml:"address"`
	RegisterType string  `yaml:"register_type"` // holding | input
	DataType     string  `yaml:"data_type"`     // uint16 | int16 | uint32 | int32 | float32
	ByteOrder    string  `yaml:"byte_order"`    // ABCD | DCBA | BADC | CDAB
	Scale        float64 `yaml:"scale"`
	Offset       float64 `yaml:"offset"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads the YAML config and applies defaults.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns a config suitable for local development.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/gridwatch.sqlite"
	}
	if c.Sync.PollInterval <= 0 {
		c.Sync.PollInterval = 30 * time.Second
	}
	if c.Sync.FetchTimeout <= 0 {
		c.Sync.FetchTimeout = 10 * time.Second
	}
	if c.Sync.ErrorCeiling <= 0 {
		c.Sync.ErrorCeiling = 10
	}
	if c.Generator.StartDelay < 0 {
		c.Generator.StartDelay = 0
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	for i := range c.Meters {
		m := &c.Meters[i]
		if m.PollInterval <= 0 {
			m.PollInterval = 30 * time.Second
		}
		if m.Timeout <= 0 {
			m.Timeout = 5 * time.Second
		}
		if m.RetryCount < 0 {
			m.RetryCount = 0
		}
		for j := range m.Registers {
			if m.Registers[j].Scale == 0 {
				m.Registers[j].Scale = 1
			}
		}
	}
}

func (c *Config) validate() error {
	if c.Sync.AutoStart && c.Sync.URL == "" {
		return fmt.Errorf("sync.url is required when sync.auto_start is set")
	}
	for _, m := range c.Meters {
		if m.Address == "" {
			return fmt.Errorf("meter %q: address is required", m.Name)
		}
		if m.MacAddress == "" {
			return fmt.Errorf("meter %q: mac_address is required", m.Name)
		}
		if len(m.Registers) == 0 {
			return fmt.Errorf("meter %q: at least one register mapping is required", m.Name)
		}
	}
	return nil
}
