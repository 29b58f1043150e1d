package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned by Validate and Load for values that cannot be used.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the root of the YAML configuration file.
// Every section is optional, missing values keep their defaults.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Client  ClientConfig  `yaml:"client"`
	Console ConsoleConfig `yaml:"console"`
	Monitor MonitorConfig `yaml:"monitor"`
}

type ServerConfig struct {
	Address string `yaml:"address"`
	// LossRate is the probability with which a data request is dropped.
	LossRate float64  `yaml:"loss_rate"`
	MinDelay Duration `yaml:"min_delay"`
	MaxDelay Duration `yaml:"max_delay"`
	// MaxHandlers limits the number of concurrently handled packets, 0 means unbounded.
	MaxHandlers int `yaml:"max_handlers"`
}

type ClientConfig struct {
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	RequestTimeout   Duration `yaml:"request_timeout"`
	MaxAttempts      int      `yaml:"max_attempts"`
	Requests         int      `yaml:"requests"`
	// Retransmit resends the request on every attempt instead of waiting again
	// for a reply to the first transmission.
	Retransmit bool `yaml:"retransmit"`
	// TOS is the IPv4 type of service byte, 0 leaves the socket untouched.
	TOS int `yaml:"tos"`
}

type ConsoleConfig struct {
	// Address of the telnet console, empty disables it.
	Address string `yaml:"address"`
}

type MonitorConfig struct {
	// Address of the metrics and event feed http server, empty disables it.
	Address string `yaml:"address"`
}

// Duration is a time.Duration that is written as "100ms" in YAML.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// Default returns the configuration that is used when no file is passed.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:  "127.0.0.1:8879",
			LossRate: 0.30,
			MinDelay: Duration{10 * time.Millisecond},
			MaxDelay: Duration{50 * time.Millisecond},
		},
		Client: ClientConfig{
			HandshakeTimeout: Duration{time.Second},
			RequestTimeout:   Duration{100 * time.Millisecond},
			MaxAttempts:      3,
			Requests:         12,
			Retransmit:       true,
		},
	}
}

// Load reads the YAML file at path on top of the default configuration.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse parses YAML data on top of the default configuration and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the value ranges of all sections.
func (c *Config) Validate() error {
	s := c.Server
	if _, err := netip.ParseAddrPort(s.Address); err != nil {
		return fmt.Errorf("%w: server address: %v", ErrInvalidConfig, err)
	}
	if s.LossRate < 0 || s.LossRate > 1 {
		return fmt.Errorf("%w: loss rate %v not within [0, 1]", ErrInvalidConfig, s.LossRate)
	}
	if s.MinDelay.Duration < 0 || s.MaxDelay.Duration < s.MinDelay.Duration {
		return fmt.Errorf("%w: delay range [%s, %s]", ErrInvalidConfig, s.MinDelay, s.MaxDelay)
	}
	if s.MaxHandlers < 0 {
		return fmt.Errorf("%w: max handlers %d", ErrInvalidConfig, s.MaxHandlers)
	}

	cl := c.Client
	if cl.HandshakeTimeout.Duration <= 0 || cl.RequestTimeout.Duration <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if cl.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts %d", ErrInvalidConfig, cl.MaxAttempts)
	}
	if cl.Requests < 0 || cl.Requests > 65535 {
		return fmt.Errorf("%w: requests %d not within [0, 65535]", ErrInvalidConfig, cl.Requests)
	}
	if cl.TOS < 0 || cl.TOS > 255 {
		return fmt.Errorf("%w: tos %d not within [0, 255]", ErrInvalidConfig, cl.TOS)
	}
	return nil
}
