package connection

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/msgr-protocol/msgr-go/pkg/wire"
)

// Keepalive defaults.
const (
	// DefaultKeepAliveInterval is the probe interval on an idle
	// session.
	DefaultKeepAliveInterval = 10 * time.Second

	// DefaultKeepAliveTimeout is the inbound silence after which the
	// session is declared dead.
	DefaultKeepAliveTimeout = 30 * time.Second
)

// DefaultReceiveQueueDepth is the inbound delivery queue size.
const DefaultReceiveQueueDepth = 128

// KeepAliveConfig controls liveness probing.
type KeepAliveConfig struct {
	// Interval between probes. Zero uses the default; negative
	// disables probing.
	Interval time.Duration `yaml:"interval"`

	// Timeout is the maximum inbound silence before the session
	// faults.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultKeepAliveConfig returns the default keepalive settings.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval: DefaultKeepAliveInterval,
		Timeout:  DefaultKeepAliveTimeout,
	}
}

// Config carries a connection's identity and tunables. The zero value
// is not usable; start from DefaultConfig.
type Config struct {
	// Entity is the local entity name presented during authorization.
	Entity string `yaml:"entity"`

	// HostType is the local peer type.
	HostType wire.PeerType `yaml:"host_type"`

	// Features is the supported feature mask offered during the
	// handshake.
	Features wire.Features `yaml:"features"`

	// RequiredFeatures must be supported by the peer or the handshake
	// fails.
	RequiredFeatures wire.Features `yaml:"required_features"`

	// KeepAlive controls liveness probing.
	KeepAlive KeepAliveConfig `yaml:"keepalive"`

	// Backoff controls reconnect delays on the connecting side.
	Backoff BackoffConfig `yaml:"backoff"`

	// Limits bounds inbound frame sizes.
	Limits wire.Limits `yaml:"limits"`

	// ReceiveQueueDepth is the inbound delivery queue size.
	ReceiveQueueDepth int `yaml:"receive_queue_depth"`
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		HostType:          wire.PeerTypeClient,
		Features:          wire.SupportedFeatures,
		RequiredFeatures:  wire.RequiredFeatures,
		KeepAlive:         DefaultKeepAliveConfig(),
		Limits:            wire.DefaultLimits(),
		ReceiveQueueDepth: DefaultReceiveQueueDepth,
	}
}

// durationValue parses YAML durations given either as strings
// ("500ms", "10s") or as nanosecond integers.
type durationValue time.Duration

func (d *durationValue) UnmarshalYAML(value *yaml.Node) error {
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = durationValue(n)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = durationValue(parsed)
	return nil
}

// UnmarshalYAML accepts human-readable durations for the keepalive
// settings.
func (k *KeepAliveConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Interval durationValue `yaml:"interval"`
		Timeout  durationValue `yaml:"timeout"`
	}
	raw.Interval = durationValue(k.Interval)
	raw.Timeout = durationValue(k.Timeout)
	if err := value.Decode(&raw); err != nil {
		return err
	}
	k.Interval = time.Duration(raw.Interval)
	k.Timeout = time.Duration(raw.Timeout)
	return nil
}

// UnmarshalYAML accepts human-readable durations for the backoff
// settings.
func (b *BackoffConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Initial    durationValue `yaml:"initial"`
		Max        durationValue `yaml:"max"`
		Multiplier float64       `yaml:"multiplier"`
		Jitter     float64       `yaml:"jitter"`
	}
	raw.Initial = durationValue(b.Initial)
	raw.Max = durationValue(b.Max)
	raw.Multiplier = b.Multiplier
	raw.Jitter = b.Jitter
	if err := value.Decode(&raw); err != nil {
		return err
	}
	b.Initial = time.Duration(raw.Initial)
	b.Max = time.Duration(raw.Max)
	b.Multiplier = raw.Multiplier
	b.Jitter = raw.Jitter
	return nil
}

// LoadConfig reads a YAML config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
