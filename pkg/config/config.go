package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bandlink/internal/codec"
	"github.com/srg/bandlink/internal/protocol"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration. Zero values are filled from the
// default tags; a YAML file may override any field.
type Config struct {
	LogLevel  string `yaml:"log_level" default:"info"`
	LogFormat string `yaml:"log_format" default:"text"` // text, json

	Address     string `yaml:"address"`
	AddressFile string `yaml:"address_file"`
	KeyFile     string `yaml:"key_file"`

	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	AuthTimeout    time.Duration `yaml:"auth_timeout" default:"10s"`
	// AuthRetries is how many times a rejected encrypted challenge is resent; negative disables
	AuthRetries int `yaml:"auth_retries" default:"1"`

	PollInterval            time.Duration `yaml:"poll_interval" default:"500ms"`
	KeepAliveInterval       time.Duration `yaml:"keep_alive_interval" default:"12s"`
	FetchTimeout            time.Duration `yaml:"fetch_timeout" default:"30s"`
	FetchRetriggerDelay     time.Duration `yaml:"fetch_retrigger_delay" default:"1s"`
	ChunkRetries            int           `yaml:"chunk_retries" default:"3"`
	FirmwareResponseTimeout time.Duration `yaml:"firmware_response_timeout" default:"5s"`

	// UTCOffset is "+HH:MM"/"-HH:MM"; empty means the local zone
	UTCOffset string `yaml:"utc_offset"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that defaults cannot repair
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat)
	}

	durations := map[string]time.Duration{
		"scan_timeout":              c.ScanTimeout,
		"connect_timeout":           c.ConnectTimeout,
		"auth_timeout":              c.AuthTimeout,
		"poll_interval":             c.PollInterval,
		"keep_alive_interval":       c.KeepAliveInterval,
		"fetch_timeout":             c.FetchTimeout,
		"firmware_response_timeout": c.FirmwareResponseTimeout,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.KeepAliveInterval <= c.PollInterval {
		return fmt.Errorf("keep_alive_interval (%s) must exceed poll_interval (%s)", c.KeepAliveInterval, c.PollInterval)
	}
	if c.FetchRetriggerDelay < 0 {
		return fmt.Errorf("fetch_retrigger_delay must not be negative")
	}
	if c.ChunkRetries < 0 {
		return fmt.Errorf("chunk_retries must not be negative")
	}
	if _, err := c.UTCOffsetQuarters(time.Now()); err != nil {
		return err
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	return logger
}

// UTCOffsetQuarters returns the configured offset in quarter hours, or the
// offset of the local zone at t when none is configured.
func (c *Config) UTCOffsetQuarters(t time.Time) (int8, error) {
	s := strings.TrimSpace(c.UTCOffset)
	if s == "" {
		return codec.UTCOffsetQuarters(t), nil
	}

	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	}
	hh, mm, found := strings.Cut(s, ":")
	if !found {
		mm = "0"
	}
	hours, err1 := strconv.Atoi(hh)
	minutes, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || hours > 14 || minutes >= 60 || minutes%15 != 0 {
		return 0, fmt.Errorf("invalid utc_offset %q (want +HH:MM in quarter hours)", c.UTCOffset)
	}
	return int8(sign * (hours*4 + minutes/15)), nil
}

// ResolveAddress returns Address, or the contents of AddressFile
func (c *Config) ResolveAddress() (string, error) {
	if c.Address != "" {
		return ParseAddress(c.Address)
	}
	if c.AddressFile != "" {
		return LoadAddress(c.AddressFile)
	}
	return "", fmt.Errorf("no device address: set address or address_file")
}

// LoadKey reads a 32 hex character authentication key from path
func LoadKey(path string) (protocol.Key, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return protocol.Key{}, fmt.Errorf("failed to read key file: %w", err)
	}
	defer func() {
		for i := range raw {
			raw[i] = 0
		}
	}()
	return protocol.ParseKey(string(raw))
}

// LoadAddress reads a device address from path
func LoadAddress(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read address file: %w", err)
	}
	return ParseAddress(string(raw))
}

// ParseAddress accepts a MAC address, or the peripheral UUID CoreBluetooth uses instead
func ParseAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if mac, err := net.ParseMAC(s); err == nil && len(mac) == 6 {
		return strings.ToLower(mac.String()), nil
	}
	if id, err := uuid.Parse(s); err == nil {
		return strings.ToUpper(id.String()), nil
	}
	return "", fmt.Errorf("invalid device address %q: want a MAC address or a peripheral UUID", s)
}
