// Package config loads the bridge configuration, read once when the bridge
// is created.
package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pithecene-io/tether/bridge"
	"github.com/pithecene-io/tether/input"
	"github.com/pithecene-io/tether/lockpolicy"
	"github.com/pithecene-io/tether/queue"
	"github.com/pithecene-io/tether/types"
)

// Defaults.
const (
	DefaultAckTimeoutMS  = 5000
	DefaultQueueBytes    = 1 << 20
	DefaultPushTimeout   = 100 * time.Millisecond
	DefaultSession       = "tether"
	DefaultLogLevel      = "info"
	minQueueBytes        = 4096
	defaultForwardPolicy = "overlay_inactive"
)

// Config represents a tether.yaml (or tether.toml) configuration file.
// Omitted values keep their defaults.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge" toml:"bridge"`
	Input     InputConfig     `yaml:"input" toml:"input"`
	Transport TransportConfig `yaml:"transport" toml:"transport"`
	Log       LogConfig       `yaml:"log" toml:"log"`
}

// BridgeConfig holds request/response settings.
type BridgeConfig struct {
	// AckTimeoutMS bounds each synchronous wait. Zero waits forever.
	AckTimeoutMS         int    `yaml:"ack_timeout_ms" toml:"ack_timeout_ms"`
	ThreadSafetyPolicy   string `yaml:"thread_safety_policy" toml:"thread_safety_policy"`
	ForceInfiniteRetries bool   `yaml:"force_infinite_retries" toml:"force_infinite_retries"`
	Multithreaded        bool   `yaml:"multithreaded" toml:"multithreaded"`
}

// InputConfig holds window and input interception settings.
type InputConfig struct {
	InterceptMessagePump  bool   `yaml:"intercept_message_pump" toml:"intercept_message_pump"`
	DisableExclusiveInput bool   `yaml:"disable_exclusive_input" toml:"disable_exclusive_input"`
	PointerForwardPolicy  string `yaml:"pointer_forward_policy" toml:"pointer_forward_policy"`
	KeyboardForwardPolicy string `yaml:"keyboard_forward_policy" toml:"keyboard_forward_policy"`
}

// TransportConfig locates the shared queues.
type TransportConfig struct {
	Dir                string   `yaml:"dir" toml:"dir"`
	Session            string   `yaml:"session" toml:"session"`
	CommandQueueBytes  int      `yaml:"command_queue_bytes" toml:"command_queue_bytes"`
	ResponseQueueBytes int      `yaml:"response_queue_bytes" toml:"response_queue_bytes"`
	PushTimeout        Duration `yaml:"push_timeout" toml:"push_timeout"`
	MetricsFile        string   `yaml:"metrics_file" toml:"metrics_file"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level" toml:"level"`
}

// Duration wraps time.Duration for string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText parses a duration string; TOML decoding uses it.
func (d *Duration) UnmarshalText(text []byte) error {
	s := string(text)
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in time.Duration notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Defaults returns the configuration used when no file is given.
func Defaults() *Config {
	return &Config{
		Bridge: BridgeConfig{
			AckTimeoutMS:       DefaultAckTimeoutMS,
			ThreadSafetyPolicy: string(lockpolicy.PolicyAuto),
		},
		Input: InputConfig{
			PointerForwardPolicy:  defaultForwardPolicy,
			KeyboardForwardPolicy: defaultForwardPolicy,
		},
		Transport: TransportConfig{
			Session:            DefaultSession,
			CommandQueueBytes:  DefaultQueueBytes,
			ResponseQueueBytes: DefaultQueueBytes,
			PushTimeout:        Duration{DefaultPushTimeout},
		},
		Log: LogConfig{Level: DefaultLogLevel},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if c.Bridge.AckTimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("bridge.ack_timeout_ms must be >= 0, got %d", c.Bridge.AckTimeoutMS))
	}
	if _, err := lockpolicy.ParsePolicy(c.Bridge.ThreadSafetyPolicy); err != nil {
		errs = append(errs, fmt.Errorf("bridge.thread_safety_policy: %w", err))
	}
	if _, err := types.ParseForwardPolicy(c.Input.PointerForwardPolicy); err != nil {
		errs = append(errs, fmt.Errorf("input.pointer_forward_policy: %w", err))
	}
	if _, err := types.ParseForwardPolicy(c.Input.KeyboardForwardPolicy); err != nil {
		errs = append(errs, fmt.Errorf("input.keyboard_forward_policy: %w", err))
	}
	if c.Transport.Session == "" {
		errs = append(errs, errors.New("transport.session is required"))
	}
	if c.Transport.CommandQueueBytes < minQueueBytes {
		errs = append(errs, fmt.Errorf("transport.command_queue_bytes must be >= %d, got %d", minQueueBytes, c.Transport.CommandQueueBytes))
	}
	if c.Transport.ResponseQueueBytes < minQueueBytes {
		errs = append(errs, fmt.Errorf("transport.response_queue_bytes must be >= %d, got %d", minQueueBytes, c.Transport.ResponseQueueBytes))
	}
	if c.Transport.PushTimeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("transport.push_timeout must be >= 0, got %s", c.Transport.PushTimeout))
	}
	return multierr.Combine(errs...)
}

// AckTimeout returns the wait bound, zero meaning none.
func (c *Config) AckTimeout() time.Duration {
	return time.Duration(c.Bridge.AckTimeoutMS) * time.Millisecond
}

// BridgeOptions converts the bridge settings. Logger and Metrics are left
// for the caller. The config must have passed Validate.
func (c *Config) BridgeOptions() bridge.Options {
	policy, _ := lockpolicy.ParsePolicy(c.Bridge.ThreadSafetyPolicy)
	timeout := c.AckTimeout()
	if timeout == 0 {
		timeout = -1
	}
	return bridge.Options{
		Timeout:              timeout,
		ForceInfiniteRetries: c.Bridge.ForceInfiniteRetries,
		LockPolicy:           policy,
		Multithreaded:        c.Bridge.Multithreaded,
	}
}

// QueueOptions converts the transport settings.
func (c *Config) QueueOptions() queue.Options {
	return queue.Options{PushTimeout: c.Transport.PushTimeout.Duration}
}

// LayerConfig converts the input settings. The config must have passed
// Validate.
func (c *Config) LayerConfig() input.LayerConfig {
	pointer, _ := types.ParseForwardPolicy(c.Input.PointerForwardPolicy)
	keyboard, _ := types.ParseForwardPolicy(c.Input.KeyboardForwardPolicy)
	return input.LayerConfig{
		InterceptMessagePump:  c.Input.InterceptMessagePump,
		DisableExclusiveInput: c.Input.DisableExclusiveInput,
		PointerPolicy:         pointer,
		KeyboardPolicy:        keyboard,
	}
}
