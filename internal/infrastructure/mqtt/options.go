package mqtt

import (
	"encoding/json"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// Session constants.
const (
	// defaultConnectTimeout bounds the dial and CONNECT/CONNACK exchange.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is used when the configuration leaves keep_alive at zero.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2
)

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger used for handler errors and recovered panics.
func WithLogger(logger Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithOnConnect sets a callback invoked once the broker accepts the session.
func WithOnConnect(callback func()) Option {
	return func(h *Handler) {
		h.onConnect = callback
	}
}

// WithOnDisconnect sets a callback invoked when an established session is lost.
func WithOnDisconnect(callback func(err error)) Option {
	return func(h *Handler) {
		h.onDisconnect = callback
	}
}

// WithConnectTimeout overrides the CONNECT/CONNACK timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(h *Handler) {
		h.connectTimeout = d
	}
}

// buildClientOptions creates paho options for a single session.
//
// The transport is supplied by the caller through the open-connection hook,
// so no TLS configuration is set here and paho never dials on its own.
// Reconnection is left to the owner of the connector.
func buildClientOptions(cfg config.MQTTConfig, brokerURL string, connectTimeout time.Duration) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(cfg.CleanSession)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.GetKeepAlive()
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	return opts
}

// statusPayload is the retained message published on the status topic.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Status values carried in statusPayload.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

func buildStatusPayload(clientID, status, reason string) []byte {
	data, err := json.Marshal(statusPayload{
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		// Only string fields; Marshal cannot fail.
		return nil
	}
	return data
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes it (QoS 1, retained) when the session ends without a
// DISCONNECT packet.
func configureLWT(opts *pahomqtt.ClientOptions, topics Topics, clientID string) {
	payload := buildStatusPayload(clientID, StatusOffline, "unexpected_disconnect")
	opts.SetBinaryWill(topics.Status(clientID), payload, 1, true)
}
