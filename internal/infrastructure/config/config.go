package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the capture service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Capture   CaptureConfig   `yaml:"capture"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Prompt    PromptConfig    `yaml:"prompt"`
}

// ServiceConfig identifies this capture host.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	PanelDir string           `yaml:"panel_dir"` // serve the operator console from disk instead of the binary
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT       JWTConfig        `yaml:"jwt"`
	Operators []OperatorConfig `yaml:"operators"`
}

// OperatorConfig is one account allowed to answer prompts and manage
// permissions. PasswordHash is an Argon2id PHC string from
// "captured hash-password".
type OperatorConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// JWTConfig contains requester token settings.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"` // minutes
}

// CaptureConfig tunes the request coordinator.
type CaptureConfig struct {
	// ConditionalFocusWindowMS is how long a capturer may decide whether
	// focus moves to the captured surface before it moves anyway.
	ConditionalFocusWindowMS int `yaml:"conditional_focus_window_ms"`

	// SaltRotationDays rotates per-origin device id salts. 0 keeps them forever.
	SaltRotationDays int `yaml:"salt_rotation_days"`

	// HistoryRetentionDays bounds the request history table. 0 keeps everything.
	HistoryRetentionDays int `yaml:"history_retention_days"`
}

// Hardware backends.
const (
	HardwareBackendCatalog = "catalog"
	HardwareBackendPion    = "pion"
)

// HardwareConfig selects where devices come from.
type HardwareConfig struct {
	Backend     string          `yaml:"backend"`
	OpenDelayMS int             `yaml:"open_delay_ms"`
	Devices     []CatalogDevice `yaml:"devices"`
	Screens     []CatalogScreen `yaml:"screens"`
}

// CatalogDevice is one capture device of the catalog backend.
type CatalogDevice struct {
	ID         string   `yaml:"id"`
	GroupID    string   `yaml:"group_id"`
	Label      string   `yaml:"label"`
	Kind       string   `yaml:"kind"` // audioinput, videoinput, audiooutput
	SampleRate int      `yaml:"sample_rate"`
	Channels   int      `yaml:"channels"`
	Effects    []string `yaml:"effects"`
}

// CatalogScreen is one shareable screen of the catalog backend.
type CatalogScreen struct {
	ID       int64 `yaml:"id"`
	WindowID int64 `yaml:"window_id"`
}

// Prompt modes.
const (
	PromptAutoGrant   = "auto_grant"
	PromptAutoDeny    = "auto_deny"
	PromptInteractive = "interactive"
)

// PromptConfig controls how access prompts are answered.
type PromptConfig struct {
	Mode    string `yaml:"mode"`
	Timeout int    `yaml:"timeout"` // seconds, interactive mode only
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CAPTURE_SECTION_KEY
// For example: CAPTURE_DATABASE_PATH, CAPTURE_PROMPT_MODE
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "capture-001",
			Name: "Capture Core",
		},
		Database: DatabaseConfig{
			Path:        "./data/capture.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "capture-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "capture",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
		Capture: CaptureConfig{
			ConditionalFocusWindowMS: 1000,
			HistoryRetentionDays:     30,
		},
		Hardware: HardwareConfig{
			Backend:     HardwareBackendCatalog,
			OpenDelayMS: 0,
		},
		Prompt: PromptConfig{
			Mode:    PromptInteractive,
			Timeout: 60,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CAPTURE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CAPTURE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("CAPTURE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CAPTURE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CAPTURE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("CAPTURE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("CAPTURE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("CAPTURE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("CAPTURE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("CAPTURE_HARDWARE_BACKEND"); v != "" {
		cfg.Hardware.Backend = v
	}
	if v := os.Getenv("CAPTURE_PROMPT_MODE"); v != "" {
		cfg.Prompt.Mode = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && (c.MQTT.TopicPrefix == "" || strings.ContainsAny(c.MQTT.TopicPrefix, "+#")) {
		errs = append(errs, "mqtt.topic_prefix must be set and contain no wildcards")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Requester tokens carry the frame identity every capture request is
	// checked against; a forgeable token lets one frame stop another's devices.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set CAPTURE_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}
	seen := make(map[string]bool, len(c.Security.Operators))
	for i, op := range c.Security.Operators {
		switch {
		case op.Username == "":
			errs = append(errs, fmt.Sprintf("security.operators[%d].username is required", i))
		case seen[op.Username]:
			errs = append(errs, fmt.Sprintf("security.operators[%d].username %q is duplicated", i, op.Username))
		case !strings.HasPrefix(op.PasswordHash, "$argon2id$"):
			errs = append(errs, fmt.Sprintf("security.operators[%d].password_hash must be an argon2id hash", i))
		}
		seen[op.Username] = true
	}

	if c.Capture.ConditionalFocusWindowMS < 0 {
		errs = append(errs, "capture.conditional_focus_window_ms must not be negative")
	}

	switch c.Hardware.Backend {
	case HardwareBackendCatalog, HardwareBackendPion:
	default:
		errs = append(errs, fmt.Sprintf("hardware.backend %q must be %q or %q",
			c.Hardware.Backend, HardwareBackendCatalog, HardwareBackendPion))
	}
	for i, d := range c.Hardware.Devices {
		if d.ID == "" {
			errs = append(errs, fmt.Sprintf("hardware.devices[%d].id is required", i))
		}
		switch d.Kind {
		case "audioinput", "videoinput", "audiooutput":
		default:
			errs = append(errs, fmt.Sprintf("hardware.devices[%d].kind %q is not a device kind", i, d.Kind))
		}
	}

	switch c.Prompt.Mode {
	case PromptAutoGrant, PromptAutoDeny, PromptInteractive:
	default:
		errs = append(errs, fmt.Sprintf("prompt.mode %q is not supported", c.Prompt.Mode))
	}
	if c.Prompt.Mode == PromptInteractive && c.Prompt.Timeout <= 0 {
		errs = append(errs, "prompt.timeout must be positive in interactive mode")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ConditionalFocusWindow returns the focus decision window as a Duration.
func (c *Config) ConditionalFocusWindow() time.Duration {
	return time.Duration(c.Capture.ConditionalFocusWindowMS) * time.Millisecond
}

// OpenDelay returns the simulated device open latency.
func (c *Config) OpenDelay() time.Duration {
	return time.Duration(c.Hardware.OpenDelayMS) * time.Millisecond
}

// PromptTimeout returns how long an interactive prompt waits for a decision.
func (c *Config) PromptTimeout() time.Duration {
	return time.Duration(c.Prompt.Timeout) * time.Second
}
