package mqtt

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// Handler is the delegate that owns an MQTT session once a connector hands
// it a prepared transport.
//
// The handler never dials the broker itself. Start receives a dial function
// (plain TCP, TLS or WebSocket, chosen by the connector) and runs the
// CONNECT/CONNACK exchange over the connection it returns.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Handler struct {
	cfg            config.MQTTConfig
	brokerURL      string
	topics         Topics
	connectTimeout time.Duration

	client   pahomqtt.Client
	clientMu sync.RWMutex

	// subscriptions tracks active subscriptions by filter.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected bool
	connMu    sync.RWMutex

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked in separate goroutines by the paho library.
// A returned error is logged and does not affect acknowledgment.
type MessageHandler func(topic string, payload []byte) error

// NewHandler creates an unstarted handler for the broker at brokerURL.
//
// brokerURL only identifies the broker to paho (tcp://, ssl://, ws:// or
// wss://). The connection itself comes from the dial function given to Start.
func NewHandler(cfg config.MQTTConfig, brokerURL string, opts ...Option) (*Handler, error) {
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: broker url: %w", ErrInvalidConfig, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: broker url %q needs a scheme and host", ErrInvalidConfig, brokerURL)
	}
	if cfg.Broker.ClientID == "" {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidQoS)
	}

	h := &Handler{
		cfg:            cfg,
		brokerURL:      brokerURL,
		topics:         Topics{Prefix: cfg.TopicPrefix},
		connectTimeout: defaultConnectTimeout,
		subscriptions:  make(map[string]subscription),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// BrokerURL returns the broker URL the handler was created with.
func (h *Handler) BrokerURL() string {
	return h.brokerURL
}

// Topics returns the topic builder for this handler's prefix.
func (h *Handler) Topics() Topics {
	return h.topics
}

// Start opens a session over the connection produced by dial.
//
// It blocks until the broker answers CONNACK, the connect timeout expires or
// ctx is cancelled. On success the online status is published (retained) and
// a Last Will announces an unexpected disconnect.
func (h *Handler) Start(ctx context.Context, dial func(ctx context.Context) (net.Conn, error)) error {
	if dial == nil {
		return fmt.Errorf("%w: nil dial function", ErrConnectionFailed)
	}

	h.clientMu.Lock()
	if h.client != nil {
		h.clientMu.Unlock()
		return ErrAlreadyStarted
	}

	opts := buildClientOptions(h.cfg, h.brokerURL, h.connectTimeout)
	configureLWT(opts, h.topics, h.cfg.Broker.ClientID)

	opts.SetCustomOpenConnectionFn(func(_ *url.URL, o pahomqtt.ClientOptions) (net.Conn, error) {
		dialCtx := ctx
		if o.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, o.ConnectTimeout)
			defer cancel()
		}
		return dial(dialCtx)
	})
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		h.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		h.handleDisconnect(err)
	})

	client := pahomqtt.NewClient(opts)
	h.client = client
	h.clientMu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(0)
		h.resetClient(client)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	}
	if err := token.Error(); err != nil {
		h.resetClient(client)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// OnConnectHandler runs asynchronously; mark connected here so
	// IsConnected is true as soon as Start returns.
	h.connMu.Lock()
	h.connected = true
	h.connMu.Unlock()

	return nil
}

func (h *Handler) resetClient(client pahomqtt.Client) {
	h.clientMu.Lock()
	if h.client == client {
		h.client = nil
	}
	h.clientMu.Unlock()
}

func (h *Handler) getClient() pahomqtt.Client {
	h.clientMu.RLock()
	defer h.clientMu.RUnlock()
	return h.client
}

// handleConnect is called when the connection is established.
func (h *Handler) handleConnect() {
	h.connMu.Lock()
	h.connected = true
	h.connMu.Unlock()

	h.publishStatus(StatusOnline, "")

	h.callbackMu.RLock()
	callback := h.onConnect
	h.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (h *Handler) handleDisconnect(err error) {
	h.connMu.Lock()
	h.connected = false
	h.connMu.Unlock()

	if logger := h.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost",
			"client_id", h.cfg.Broker.ClientID,
			"error", err,
		)
	}

	h.callbackMu.RLock()
	callback := h.onDisconnect
	h.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// publishStatus sends a retained status message without waiting for the ack.
func (h *Handler) publishStatus(status, reason string) pahomqtt.Token {
	client := h.getClient()
	if client == nil {
		return nil
	}
	clientID := h.cfg.Broker.ClientID
	return client.Publish(h.topics.Status(clientID), byte(h.cfg.QoS), true,
		buildStatusPayload(clientID, status, reason))
}

// Close publishes a graceful offline status and disconnects.
//
// Closing an unstarted or already closed handler is a no-op. A closed
// handler may be started again.
func (h *Handler) Close() error {
	client := h.getClient()
	if client == nil {
		return nil
	}

	if h.IsConnected() {
		if token := h.publishStatus(StatusOffline, "graceful_shutdown"); token != nil {
			token.WaitTimeout(defaultPublishTimeout)
		}
	}

	client.Disconnect(defaultDisconnectQuiesce)

	h.connMu.Lock()
	h.connected = false
	h.connMu.Unlock()

	h.subMu.Lock()
	h.subscriptions = make(map[string]subscription)
	h.subMu.Unlock()

	h.resetClient(client)
	return nil
}

// HealthCheck verifies the MQTT session is alive.
func (h *Handler) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !h.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state.
func (h *Handler) IsConnected() bool {
	client := h.getClient()
	if client == nil {
		return false
	}
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return h.connected && client.IsConnected()
}

// SetLogger sets a logger for error and panic logging.
// If not set, errors in handlers are silently ignored.
func (h *Handler) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

func (h *Handler) getLogger() Logger {
	h.loggerMu.RLock()
	defer h.loggerMu.RUnlock()
	return h.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (h *Handler) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := h.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := h.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
