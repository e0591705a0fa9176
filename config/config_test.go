package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/tether/lockpolicy"
	"github.com/pithecene-io/tether/types"
)

func TestLoad_FullYAML(t *testing.T) {
	yaml := `bridge:
  ack_timeout_ms: 250
  thread_safety_policy: global
  force_infinite_retries: true
  multithreaded: true

input:
  intercept_message_pump: true
  disable_exclusive_input: true
  pointer_forward_policy: always
  keyboard_forward_policy: never

transport:
  dir: /dev/shm
  session: game-1
  command_queue_bytes: 65536
  response_queue_bytes: 32768
  push_timeout: 20ms
  metrics_file: /tmp/tether.stats

log:
  level: debug
`
	cfg, err := Load(writeTemp(t, "tether.yaml", yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.AckTimeout() != 250*time.Millisecond {
		t.Errorf("AckTimeout = %s", cfg.AckTimeout())
	}
	assertEqual(t, "bridge.thread_safety_policy", cfg.Bridge.ThreadSafetyPolicy, "global")
	if !cfg.Bridge.ForceInfiniteRetries || !cfg.Bridge.Multithreaded {
		t.Errorf("bridge flags = %+v", cfg.Bridge)
	}
	if !cfg.Input.InterceptMessagePump || !cfg.Input.DisableExclusiveInput {
		t.Errorf("input flags = %+v", cfg.Input)
	}
	assertEqual(t, "transport.dir", cfg.Transport.Dir, "/dev/shm")
	assertEqual(t, "transport.session", cfg.Transport.Session, "game-1")
	if cfg.Transport.CommandQueueBytes != 65536 || cfg.Transport.ResponseQueueBytes != 32768 {
		t.Errorf("queue sizes = %d/%d", cfg.Transport.CommandQueueBytes, cfg.Transport.ResponseQueueBytes)
	}
	if cfg.Transport.PushTimeout.Duration != 20*time.Millisecond {
		t.Errorf("push_timeout = %s", cfg.Transport.PushTimeout)
	}
	assertEqual(t, "log.level", cfg.Log.Level, "debug")

	opts := cfg.BridgeOptions()
	if opts.Timeout != 250*time.Millisecond || opts.LockPolicy != lockpolicy.PolicyGlobal || !opts.ForceInfiniteRetries {
		t.Errorf("BridgeOptions = %+v", opts)
	}
	layer := cfg.LayerConfig()
	if layer.PointerPolicy != types.ForwardAlways || layer.KeyboardPolicy != types.ForwardNever {
		t.Errorf("LayerConfig = %+v", layer)
	}
	if cfg.QueueOptions().PushTimeout != 20*time.Millisecond {
		t.Errorf("QueueOptions = %+v", cfg.QueueOptions())
	}
}

func TestLoad_TOML(t *testing.T) {
	toml := `[bridge]
ack_timeout_ms = 0
thread_safety_policy = "none"

[input]
pointer_forward_policy = "overlay_active"

[transport]
session = "toml-session"
push_timeout = "1s"
`
	cfg, err := Load(writeTemp(t, "tether.toml", toml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "transport.session", cfg.Transport.Session, "toml-session")
	if cfg.Transport.PushTimeout.Duration != time.Second {
		t.Errorf("push_timeout = %s", cfg.Transport.PushTimeout)
	}
	// Unset keys keep their defaults.
	assertEqual(t, "input.keyboard_forward_policy", cfg.Input.KeyboardForwardPolicy, defaultForwardPolicy)
	if cfg.Transport.CommandQueueBytes != DefaultQueueBytes {
		t.Errorf("command_queue_bytes = %d", cfg.Transport.CommandQueueBytes)
	}

	// An explicit zero timeout is an infinite wait.
	if opts := cfg.BridgeOptions(); opts.Timeout >= 0 {
		t.Errorf("Timeout = %s, want negative (unbounded)", opts.Timeout)
	}
	if cfg.BridgeOptions().LockPolicy != lockpolicy.PolicyUnsynchronized {
		t.Errorf("LockPolicy = %s", cfg.BridgeOptions().LockPolicy)
	}
}

func TestLoad_EmptyConfigKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeTemp(t, "tether.yaml", ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.AckTimeout() != DefaultAckTimeoutMS*time.Millisecond {
		t.Errorf("AckTimeout = %s", cfg.AckTimeout())
	}
	if cfg.BridgeOptions().LockPolicy != lockpolicy.PolicyAuto {
		t.Errorf("LockPolicy = %s", cfg.BridgeOptions().LockPolicy)
	}
	if cfg.LayerConfig().PointerPolicy != types.ForwardOnlyWhenOverlayInactive {
		t.Errorf("PointerPolicy = %s", cfg.LayerConfig().PointerPolicy)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/tether.yaml")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeTemp(t, "tether.yaml", "{{invalid yaml"))
	if err == nil || !strings.Contains(err.Error(), "invalid YAML") {
		t.Fatalf("expected YAML error, got %v", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeTemp(t, "tether.yaml", "transport:\n  push_timeout: soon\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TETHER_TEST_SESSION", "from-env")
	cfg, err := Load(writeTemp(t, "tether.yaml", "transport:\n  session: ${TETHER_TEST_SESSION}\n  dir: ${TETHER_TEST_UNSET:-/tmp/q}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	assertEqual(t, "transport.session", cfg.Transport.Session, "from-env")
	assertEqual(t, "transport.dir", cfg.Transport.Dir, "/tmp/q")
}

func TestLoad_RequiredEnvMissing(t *testing.T) {
	_, err := Load(writeTemp(t, "tether.yaml", "transport:\n  dir: ${TETHER_TEST_UNSET:?set the queue directory}\n"))
	var missing *MissingEnvError
	if !errors.As(err, &missing) {
		t.Fatalf("Load = %v, want MissingEnvError", err)
	}
	if !strings.Contains(err.Error(), "set the queue directory") {
		t.Errorf("error %q lacks the message", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"negative timeout", func(c *Config) { c.Bridge.AckTimeoutMS = -1 }, "ack_timeout_ms"},
		{"bad lock policy", func(c *Config) { c.Bridge.ThreadSafetyPolicy = "reentrant" }, "thread_safety_policy"},
		{"bad pointer policy", func(c *Config) { c.Input.PointerForwardPolicy = "sometimes" }, "pointer_forward_policy"},
		{"bad keyboard policy", func(c *Config) { c.Input.KeyboardForwardPolicy = "x" }, "keyboard_forward_policy"},
		{"empty session", func(c *Config) { c.Transport.Session = "" }, "transport.session"},
		{"tiny command queue", func(c *Config) { c.Transport.CommandQueueBytes = 64 }, "command_queue_bytes"},
		{"tiny response queue", func(c *Config) { c.Transport.ResponseQueueBytes = 0 }, "response_queue_bytes"},
		{"negative push timeout", func(c *Config) { c.Transport.PushTimeout = Duration{-time.Second} }, "push_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.substr)
			}
		})
	}

	if err := Defaults().Validate(); err != nil {
		t.Errorf("Defaults invalid: %v", err)
	}
}

func TestValidate_ReportsEveryError(t *testing.T) {
	cfg := Defaults()
	cfg.Bridge.AckTimeoutMS = -5
	cfg.Transport.Session = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"ack_timeout_ms", "transport.session"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func assertEqual(t *testing.T, field, got, want string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: got %q, want %q", field, got, want)
	}
}
