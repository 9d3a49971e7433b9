package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the MQTT connector.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Transport TransportConfig `yaml:"transport"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
}

// MQTTConfig contains MQTT client settings handed to the connector and its
// delegate handler.
type MQTTConfig struct {
	Broker       MQTTBrokerConfig `yaml:"broker"`
	Auth         MQTTAuthConfig   `yaml:"auth"`
	TLS          MQTTTLSConfig    `yaml:"tls"`
	QoS          int              `yaml:"qos"`
	KeepAlive    int              `yaml:"keep_alive"` // seconds
	CleanSession bool             `yaml:"clean_session"`
	TopicPrefix  string           `yaml:"topic_prefix"`
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

// MQTTTLSConfig holds the credential files used when Broker.TLS is set.
//
// Supplying both ClientCertFile and ClientKeyFile selects mutual TLS.
// Anything else is server-only TLS verified against RootCAFile (or the
// system trust store when RootCAFile is empty).
type MQTTTLSConfig struct {
	RootCAFile     string `yaml:"root_ca_file"`
	ClientCertFile string `yaml:"client_cert_file"`
	ClientKeyFile  string `yaml:"client_key_file"`

	// StrictClientCredentials rejects a client certificate without a key
	// (or the reverse) instead of falling back to server-only TLS.
	StrictClientCredentials bool `yaml:"strict_client_credentials"`
}

// TransportConfig selects the transport variant and its socket options.
type TransportConfig struct {
	// Type is "tcp" or "websocket".
	Type           string `yaml:"type"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	TCPKeepAlive   int    `yaml:"tcp_keep_alive"`  // seconds, 0 keeps the OS default
	TCPNoDelay     *bool  `yaml:"tcp_no_delay"`
	ReadBuffer     int    `yaml:"read_buffer"`
	WriteBuffer    int    `yaml:"write_buffer"`
	LocalAddr      string `yaml:"local_addr"`

	WebSocket WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig contains settings for the WebSocket transport.
type WebSocketConfig struct {
	Path             string `yaml:"path"`
	HandshakeTimeout int    `yaml:"handshake_timeout"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuditConfig controls the SQLite connection-attempt journal.
type AuditConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// APIConfig contains status API server settings.
type APIConfig struct {
	Enabled   bool             `yaml:"enabled"`
	Host      string           `yaml:"host"`
	Port      int              `yaml:"port"`
	JWTSecret string           `yaml:"jwt_secret"`
	Timeouts  APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// Transport types.
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTCONNECT_SECTION_KEY
// For example: MQTTCONNECT_MQTT_HOST, MQTTCONNECT_TLS_ROOT_CA
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "mqttconnect",
			},
			QoS:          1,
			KeepAlive:    60,
			CleanSession: true,
			TopicPrefix:  "mqttconnect/clients",
		},
		Transport: TransportConfig{
			Type:           TransportTCP,
			ConnectTimeout: 10,
			WebSocket: WebSocketConfig{
				Path:             "/mqtt",
				HandshakeTimeout: 10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Audit: AuditConfig{
			Path:        "./data/mqttconnect.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("MQTTCONNECT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MQTTCONNECT_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing MQTTCONNECT_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Broker.Port = port
	}
	if v := os.Getenv("MQTTCONNECT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MQTTCONNECT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// TLS credential files
	if v := os.Getenv("MQTTCONNECT_TLS_ROOT_CA"); v != "" {
		cfg.MQTT.TLS.RootCAFile = v
	}
	if v := os.Getenv("MQTTCONNECT_TLS_CLIENT_CERT"); v != "" {
		cfg.MQTT.TLS.ClientCertFile = v
	}
	if v := os.Getenv("MQTTCONNECT_TLS_CLIENT_KEY"); v != "" {
		cfg.MQTT.TLS.ClientKeyFile = v
	}

	if v := os.Getenv("MQTTCONNECT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("MQTTCONNECT_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if !c.MQTT.Broker.TLS && c.MQTT.TLS.hasFiles() {
		errs = append(errs, "mqtt.tls files are set but mqtt.broker.tls is false")
	}

	switch c.Transport.Type {
	case TransportTCP, TransportWebSocket:
	default:
		errs = append(errs, fmt.Sprintf("transport.type %q must be %q or %q", c.Transport.Type, TransportTCP, TransportWebSocket))
	}
	if c.Transport.ConnectTimeout < 0 {
		errs = append(errs, "transport.connect_timeout cannot be negative")
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		errs = append(errs, "audit.path is required when audit is enabled")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.API.Enabled {
		if c.API.Port < 1 || c.API.Port > 65535 {
			errs = append(errs, "api.port must be between 1 and 65535")
		}
		// The status API exposes broker endpoints and credential file paths.
		const minJWTSecretLength = 32
		if len(c.API.JWTSecret) < minJWTSecretLength {
			errs = append(errs, "api.jwt_secret must be at least 32 characters (set MQTTCONNECT_JWT_SECRET)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (t MQTTTLSConfig) hasFiles() bool {
	return t.RootCAFile != "" || t.ClientCertFile != "" || t.ClientKeyFile != ""
}

// GetConnectTimeout returns the transport connect timeout as a Duration.
func (t TransportConfig) GetConnectTimeout() time.Duration {
	return time.Duration(t.ConnectTimeout) * time.Second
}

// GetKeepAlive returns the MQTT keep-alive interval as a Duration.
func (m MQTTConfig) GetKeepAlive() time.Duration {
	return time.Duration(m.KeepAlive) * time.Second
}
