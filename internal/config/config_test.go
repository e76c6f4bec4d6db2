package config

import (
	"strings"
	"testing"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default server config should validate: %v", err)
	}
	if cfg.ListenAddress == "" {
		t.Fatal("expected a default listen address")
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.ServerAddress = "wss://example.test"
	cfg.Role = "responder"
	cfg.InitiatorPublicKey = strings.Repeat("ab", 32)
	cfg.AuthToken = strings.Repeat("cd", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("client config should validate: %v", err)
	}
}

func TestParseServerConfig(t *testing.T) {
	yamlData := []byte(`
listen_address: "0.0.0.0:9000"
data_dir: "/var/lib/saltyrtc"
log_level: "debug"
`)
	cfg, err := ParseServerConfig(yamlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("got listen_address %q", cfg.ListenAddress)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("got log_level %q", cfg.LogLevel)
	}
	// unset fields keep their defaults
	if cfg.LogFormat != "text" {
		t.Errorf("expected default log_format, got %q", cfg.LogFormat)
	}
}

func TestParseServerConfigInvalidLogLevel(t *testing.T) {
	yamlData := []byte(`
listen_address: "0.0.0.0:9000"
data_dir: "/var/lib/saltyrtc"
log_level: "verbose"
`)
	if _, err := ParseServerConfig(yamlData); err == nil {
		t.Fatal("expected validation error for invalid log_level")
	}
}

func TestClientConfigResponderRequiresKeyMaterial(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.ServerAddress = "wss://example.test"
	cfg.Role = "responder"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error: responder with no key material")
	}
}

func TestClientConfigResponderRejectsConflictingKeyMaterial(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.ServerAddress = "wss://example.test"
	cfg.Role = "responder"
	cfg.InitiatorPublicKey = strings.Repeat("ab", 32)
	cfg.AuthToken = strings.Repeat("cd", 32)
	cfg.InitiatorTrustedKey = strings.Repeat("ef", 32)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error: both untrusted and trusted key material set")
	}
}

func TestClientConfigInitiatorRejectsResponderFields(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.ServerAddress = "wss://example.test"
	cfg.Role = "initiator"
	cfg.InitiatorTrustedKey = strings.Repeat("ef", 32)
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error: initiator with responder-only fields set")
	}
}

func TestServerConfigRedactsKeyMaterial(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.TLS.Key = "/etc/saltyrtc/server.key"
	redacted := cfg.Redacted()
	if redacted.TLS.Key != redactedValue {
		t.Errorf("expected tls.key to be redacted, got %q", redacted.TLS.Key)
	}
	if cfg.TLS.Key != "/etc/saltyrtc/server.key" {
		t.Error("Redacted must not mutate the original config")
	}
}

func TestClientConfigRedactsAuthToken(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.AuthToken = strings.Repeat("cd", 32)
	redacted := cfg.Redacted()
	if redacted.AuthToken != redactedValue {
		t.Errorf("expected auth_token to be redacted, got %q", redacted.AuthToken)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SALTYRTC_TEST_ADDR", "127.0.0.1:9001")
	yamlData := []byte(`
listen_address: "${SALTYRTC_TEST_ADDR}"
data_dir: "./data"
`)
	cfg, err := ParseServerConfig(yamlData)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddress != "127.0.0.1:9001" {
		t.Errorf("got listen_address %q", cfg.ListenAddress)
	}
}
