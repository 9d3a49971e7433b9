package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  broker:
    host: "broker.example.com"
    port: 8883
    tls: true
    client_id: "test-client"
  tls:
    root_ca_file: "/etc/mqtt/ca.pem"
    client_cert_file: "/etc/mqtt/client.pem"
    client_key_file: "/etc/mqtt/client.key"
  qos: 1
transport:
  type: websocket
  connect_timeout: 5
  websocket:
    path: "/ws"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.example.com")
	}
	if cfg.MQTT.Broker.Port != 8883 {
		t.Errorf("MQTT.Broker.Port = %d, want 8883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.TLS.ClientKeyFile != "/etc/mqtt/client.key" {
		t.Errorf("MQTT.TLS.ClientKeyFile = %q", cfg.MQTT.TLS.ClientKeyFile)
	}
	if cfg.Transport.Type != TransportWebSocket {
		t.Errorf("Transport.Type = %q, want %q", cfg.Transport.Type, TransportWebSocket)
	}
	if cfg.Transport.GetConnectTimeout() != 5*time.Second {
		t.Errorf("GetConnectTimeout() = %v, want 5s", cfg.Transport.GetConnectTimeout())
	}
	if cfg.Transport.WebSocket.Path != "/ws" {
		t.Errorf("Transport.WebSocket.Path = %q, want /ws", cfg.Transport.WebSocket.Path)
	}
	// Untouched defaults survive the merge
	if cfg.MQTT.KeepAlive != 60 {
		t.Errorf("MQTT.KeepAlive = %d, want default 60", cfg.MQTT.KeepAlive)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  broker:
    client_id: ""
`)

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty client_id, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
mqtt:
  broker:
    host: "from-file"
    tls: true
`)

	t.Setenv("MQTTCONNECT_MQTT_HOST", "from-env")
	t.Setenv("MQTTCONNECT_MQTT_PORT", "8884")
	t.Setenv("MQTTCONNECT_TLS_ROOT_CA", "/env/ca.pem")
	t.Setenv("MQTTCONNECT_TLS_CLIENT_CERT", "/env/client.pem")
	t.Setenv("MQTTCONNECT_TLS_CLIENT_KEY", "/env/client.key")
	t.Setenv("MQTTCONNECT_MQTT_PASSWORD", "s3cret")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Broker.Host != "from-env" {
		t.Errorf("MQTT.Broker.Host = %q, want from-env", cfg.MQTT.Broker.Host)
	}
	if cfg.MQTT.Broker.Port != 8884 {
		t.Errorf("MQTT.Broker.Port = %d, want 8884", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.TLS.RootCAFile != "/env/ca.pem" {
		t.Errorf("MQTT.TLS.RootCAFile = %q", cfg.MQTT.TLS.RootCAFile)
	}
	if cfg.MQTT.TLS.ClientCertFile != "/env/client.pem" || cfg.MQTT.TLS.ClientKeyFile != "/env/client.key" {
		t.Errorf("client credential overrides not applied: %+v", cfg.MQTT.TLS)
	}
	if cfg.MQTT.Auth.Password != "s3cret" {
		t.Errorf("MQTT.Auth.Password not overridden")
	}
}

func TestLoad_InvalidPortEnv(t *testing.T) {
	configPath := writeConfig(t, "mqtt: {}\n")
	t.Setenv("MQTTCONNECT_MQTT_PORT", "not-a-port")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for non-numeric port override")
	}
	if !strings.Contains(err.Error(), "MQTTCONNECT_MQTT_PORT") {
		t.Errorf("error = %v, want mention of MQTTCONNECT_MQTT_PORT", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	validSecret := "test-secret-key-at-least-32-chars!"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: "mqtt.broker.host",
		},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.MQTT.Broker.Port = 70000 },
			wantErr: "mqtt.broker.port",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name: "tls files without tls",
			mutate: func(c *Config) {
				c.MQTT.TLS.RootCAFile = "/etc/ca.pem"
			},
			wantErr: "mqtt.broker.tls is false",
		},
		{
			name: "tls files with tls",
			mutate: func(c *Config) {
				c.MQTT.Broker.TLS = true
				c.MQTT.TLS.RootCAFile = "/etc/ca.pem"
			},
		},
		{
			name:    "unknown transport",
			mutate:  func(c *Config) { c.Transport.Type = "quic" },
			wantErr: "transport.type",
		},
		{
			name: "audit without path",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.Path = ""
			},
			wantErr: "audit.path",
		},
		{
			name: "influxdb without url",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: "influxdb.url",
		},
		{
			name: "api with short secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.JWTSecret = "short"
			},
			wantErr: "api.jwt_secret",
		},
		{
			name: "api with valid secret",
			mutate: func(c *Config) {
				c.API.Enabled = true
				c.API.JWTSecret = validSecret
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestMQTTConfig_GetKeepAlive(t *testing.T) {
	m := MQTTConfig{KeepAlive: 30}
	if got := m.GetKeepAlive(); got != 30*time.Second {
		t.Errorf("GetKeepAlive() = %v, want 30s", got)
	}
}
