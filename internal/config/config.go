// Package config provides configuration parsing and validation for the
// SaltyRTC relay server and demo client.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TLSConfig defines TLS settings for a listener or outbound dial. For each
// certificate/key, either a file path or inline PEM content may be given;
// inline PEM takes precedence.
type TLSConfig struct {
	Cert    string `yaml:"cert"`     // Certificate file path
	Key     string `yaml:"key"`      // Private key file path
	CertPEM string `yaml:"cert_pem"` // Certificate PEM content
	KeyPEM  string `yaml:"key_pem"`  // Private key PEM content

	CA    string `yaml:"ca"`     // CA certificate file path (verifying the peer)
	CAPEM string `yaml:"ca_pem"` // CA certificate PEM content

	InsecureSkipVerify bool `yaml:"insecure_skip_verify"` // Skip verification (dev only)
}

// GetCertPEM returns the certificate PEM content, reading from file if necessary.
func (t *TLSConfig) GetCertPEM() ([]byte, error) {
	if t.CertPEM != "" {
		return []byte(t.CertPEM), nil
	}
	if t.Cert != "" {
		return os.ReadFile(t.Cert)
	}
	return nil, nil
}

// GetKeyPEM returns the private key PEM content, reading from file if necessary.
func (t *TLSConfig) GetKeyPEM() ([]byte, error) {
	if t.KeyPEM != "" {
		return []byte(t.KeyPEM), nil
	}
	if t.Key != "" {
		return os.ReadFile(t.Key)
	}
	return nil, nil
}

// GetCAPEM returns the CA certificate PEM content, reading from file if necessary.
func (t *TLSConfig) GetCAPEM() ([]byte, error) {
	if t.CAPEM != "" {
		return []byte(t.CAPEM), nil
	}
	if t.CA != "" {
		return os.ReadFile(t.CA)
	}
	return nil, nil
}

// HasCert returns true if a certificate is configured (file or PEM).
func (t *TLSConfig) HasCert() bool { return t.Cert != "" || t.CertPEM != "" }

// HasKey returns true if a private key is configured (file or PEM).
func (t *TLSConfig) HasKey() bool { return t.Key != "" || t.KeyPEM != "" }

// HasCA returns true if a CA certificate is configured (file or PEM).
func (t *TLSConfig) HasCA() bool { return t.CA != "" || t.CAPEM != "" }

// ServerConfig is the complete configuration for the relay server.
type ServerConfig struct {
	// ListenAddress is the address the WebSocket listener binds to.
	ListenAddress string `yaml:"listen_address"`

	// DataDir holds the server's persisted permanent keypair.
	DataDir string `yaml:"data_dir"`

	// LongTermKeyFile, if set, is a file holding the server's hex-encoded
	// long-term private key (the public half is derived from it), used to
	// fill server-auth's signed_keys field. Optional — only clients that pin expected_server_key need it.
	LongTermKeyFile string `yaml:"long_term_key_file"`

	TLS TLSConfig `yaml:"tls"`

	// ControlSocket is the Unix socket path for the local admin interface.
	// Empty disables it.
	ControlSocket string `yaml:"control_socket"`

	PingInterval time.Duration `yaml:"ping_interval"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// ClientConfig is the configuration for the demo client binary.
type ClientConfig struct {
	ServerAddress string `yaml:"server_address"`

	// DataDir holds the client's persisted permanent keypair.
	DataDir string `yaml:"data_dir"`

	// Role is "initiator" or "responder".
	Role string `yaml:"role"`

	// InitiatorPublicKey and AuthToken configure a responder in untrusted
	// mode (hex-encoded). InitiatorTrustedKey configures a responder that
	// already trusts the initiator's key out-of-band; set it instead of
	// the pair above, never alongside it.
	InitiatorPublicKey  string `yaml:"initiator_public_key"`
	AuthToken           string `yaml:"auth_token"`
	InitiatorTrustedKey string `yaml:"initiator_trusted_key"`

	// ExpectedServerKey, if set, pins the relay server's long-term public
	// key (hex-encoded); server-auth's signed_keys must verify against it.
	ExpectedServerKey string `yaml:"expected_server_key"`

	TLS TLSConfig `yaml:"tls"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ListenAddress: ":8765",
		DataDir:       "./data",
		ControlSocket: "./data/control.sock",
		PingInterval:  20 * time.Second,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// DefaultClientConfig returns a ClientConfig with default values.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		DataDir:   "./data",
		Role:      "responder",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadServerConfig reads and parses a relay server configuration file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseServerConfig(data)
}

// LoadClientConfig reads and parses a client configuration file.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseClientConfig(data)
}

// ParseServerConfig parses relay server configuration from YAML bytes.
func ParseServerConfig(data []byte) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// ParseClientConfig parses client configuration from YAML bytes.
func ParseClientConfig(data []byte) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the server configuration for errors.
func (c *ServerConfig) Validate() error {
	var errs []string

	if c.ListenAddress == "" {
		errs = append(errs, "listen_address is required")
	}
	if c.DataDir == "" {
		errs = append(errs, "data_dir is required")
	}
	if !isValidLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel))
	}
	if !isValidLogFormat(c.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid log_format: %s (must be text or json)", c.LogFormat))
	}
	if c.TLS.HasCert() != c.TLS.HasKey() {
		errs = append(errs, "tls.cert and tls.key must both be specified or both be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Validate checks the client configuration for errors.
func (c *ClientConfig) Validate() error {
	var errs []string

	if c.ServerAddress == "" {
		errs = append(errs, "server_address is required")
	}
	if !isValidLogLevel(c.LogLevel) {
		errs = append(errs, fmt.Sprintf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel))
	}
	if !isValidLogFormat(c.LogFormat) {
		errs = append(errs, fmt.Sprintf("invalid log_format: %s (must be text or json)", c.LogFormat))
	}

	switch c.Role {
	case "initiator":
		if c.InitiatorPublicKey != "" || c.AuthToken != "" || c.InitiatorTrustedKey != "" {
			errs = append(errs, "an initiator does not take initiator_public_key/auth_token/initiator_trusted_key")
		}
	case "responder":
		trusted := c.InitiatorTrustedKey != ""
		untrusted := c.InitiatorPublicKey != "" || c.AuthToken != ""
		if trusted && untrusted {
			errs = append(errs, "a responder may be configured with initiator_trusted_key or with initiator_public_key+auth_token, not both")
		}
		if !trusted && !untrusted {
			errs = append(errs, "a responder requires initiator_trusted_key, or initiator_public_key and auth_token")
		}
		if !trusted {
			if c.InitiatorPublicKey == "" {
				errs = append(errs, "missing initiator_public_key")
			}
			if c.AuthToken == "" {
				errs = append(errs, "missing auth_token")
			}
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid role: %s (must be initiator or responder)", c.Role))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch format {
	case "text", "json":
		return true
	default:
		return false
	}
}

// redactedValue is the placeholder for sensitive values.
const redactedValue = "[REDACTED]"

// Redacted returns a copy of the server config with sensitive values
// redacted, safe to log or display.
func (c *ServerConfig) Redacted() *ServerConfig {
	cp := *c
	if cp.TLS.Key != "" {
		cp.TLS.Key = redactedValue
	}
	if cp.TLS.KeyPEM != "" {
		cp.TLS.KeyPEM = redactedValue
	}
	return &cp
}

// Redacted returns a copy of the client config with sensitive values
// redacted, safe to log or display.
func (c *ClientConfig) Redacted() *ClientConfig {
	cp := *c
	if cp.AuthToken != "" {
		cp.AuthToken = redactedValue
	}
	if cp.TLS.Key != "" {
		cp.TLS.Key = redactedValue
	}
	if cp.TLS.KeyPEM != "" {
		cp.TLS.KeyPEM = redactedValue
	}
	return &cp
}

// String returns a redacted YAML representation of the config, safe to log.
func (c *ServerConfig) String() string {
	data, _ := yaml.Marshal(c.Redacted())
	return string(data)
}

// String returns a redacted YAML representation of the config, safe to log.
func (c *ClientConfig) String() string {
	data, _ := yaml.Marshal(c.Redacted())
	return string(data)
}
