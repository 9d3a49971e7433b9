package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-connector/internal/connector"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/mqtt"
)

// recordTimeout bounds how long a recorder may hold up Connect.
const recordTimeout = 5 * time.Second

// Logger is the subset of logging.Logger the connectors use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Connector is implemented by TCPConnector and WebSocketConnector.
type Connector interface {
	Connect(ctx context.Context) (connector.Attempt, error)
	Close() error
	Handler() *mqtt.Handler
	ConnectParameter() connector.ConnectParameter
	Configuration() config.MQTTConfig
	Transport() string
	BrokerURL() string
	SetRecorder(r Recorder)
	SetLogger(l Logger)
}

// dialBuilder turns a configured bootstrap and an optional TLS handler into
// the dial function handed to the delegate handler.
type dialBuilder func(boot *DialBootstrap, tlsHandler *connector.TLSHandler) connector.DialFunc

// variant holds what both connectors share on top of connector.Base.
type variant struct {
	*connector.Base

	transport string
	brokerURL string
	options   connector.OptionSet
	handler   *mqtt.Handler

	recorder Recorder
	logger   Logger
	mu       sync.RWMutex
}

// handlerFactory creates an mqtt.Handler for brokerURL. Every argument must
// be an mqtt.Option.
func handlerFactory(cfg config.MQTTConfig, brokerURL string) connector.DelegateHandlerFactory {
	return connector.DelegateHandlerFactoryFunc(func(args ...any) (connector.DelegateHandler, error) {
		opts := make([]mqtt.Option, 0, len(args))
		for i, arg := range args {
			opt, ok := arg.(mqtt.Option)
			if !ok {
				return nil, fmt.Errorf("argument %d: want mqtt.Option, got %T", i, arg)
			}
			opts = append(opts, opt)
		}
		return mqtt.NewHandler(cfg, brokerURL, opts...)
	})
}

func newVariant(transport, brokerURL string, cfg config.MQTTConfig, param connector.ConnectParameter, options connector.OptionSet, args []any) (*variant, error) {
	base, err := connector.New(cfg, param, handlerFactory(cfg, brokerURL), args...)
	if err != nil {
		return nil, err
	}
	return &variant{
		Base:      base,
		transport: transport,
		brokerURL: brokerURL,
		options:   options,
		handler:   base.DelegateHandler().(*mqtt.Handler),
	}, nil
}

// Handler returns the MQTT session handler.
func (v *variant) Handler() *mqtt.Handler {
	return v.handler
}

// Transport returns "tcp" or "websocket".
func (v *variant) Transport() string {
	return v.transport
}

// BrokerURL returns the URL the handler identifies the broker by.
func (v *variant) BrokerURL() string {
	return v.brokerURL
}

// SetRecorder sets where finished attempts are sent.
func (v *variant) SetRecorder(r Recorder) {
	v.mu.Lock()
	v.recorder = r
	v.mu.Unlock()
}

// SetLogger sets the logger for attempt outcomes and credential warnings.
func (v *variant) SetLogger(l Logger) {
	v.mu.Lock()
	v.logger = l
	v.mu.Unlock()
	v.Base.SetLogger(l)
}

// Close ends the MQTT session.
func (v *variant) Close() error {
	return v.handler.Close()
}

// connect runs one attempt through the lifecycle and records it.
func (v *variant) connect(ctx context.Context, build dialBuilder) (connector.Attempt, error) {
	cfg := v.Configuration()
	attempt := connector.NewAttempt(v.transport, v.ConnectParameter(), cfg.Broker.TLS)

	err := v.run(ctx, attempt, build)
	attempt.Finish(err)

	v.mu.RLock()
	recorder, logger := v.recorder, v.logger
	v.mu.RUnlock()

	if recorder != nil {
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		if rerr := recorder.RecordAttempt(recordCtx, *attempt); rerr != nil && logger != nil {
			logger.Warn("recording connection attempt failed",
				"attempt_id", attempt.ID,
				"error", rerr,
			)
		}
		cancel()
	}

	if logger != nil {
		args := []any{
			"attempt_id", attempt.ID,
			"transport", attempt.Transport,
			"endpoint", attempt.Endpoint,
			"tls", attempt.TLS,
			"auth_mode", attempt.Mode.String(),
			"state", attempt.State.String(),
			"duration", attempt.Duration,
		}
		if err != nil {
			logger.Warn("connection attempt failed", append(args, "error", err)...)
		} else {
			logger.Info("connection established", args...)
		}
	}

	return *attempt, err
}

func (v *variant) run(ctx context.Context, a *connector.Attempt, build dialBuilder) error {
	boot := NewDialBootstrap()
	v.ApplyOptions(boot, v.options)
	if err := a.Advance(connector.StateOptionsApplied); err != nil {
		return err
	}

	var tlsHandler *connector.TLSHandler
	if a.TLS {
		h, err := v.TLSHandler()
		if err != nil {
			return err
		}
		tlsHandler = h
		a.Mode = h.Mode()
		if err := a.Advance(connector.StateTLSHandlerAttached); err != nil {
			return err
		}
	}

	// Surface rejected options before the session starts so the error
	// chain survives.
	if err := boot.Err(); err != nil {
		return err
	}

	if err := v.DelegateHandler().Start(ctx, build(boot, tlsHandler)); err != nil {
		return err
	}
	return a.Advance(connector.StateHandedOff)
}

// NewFromConfig builds the connector selected by cfg.Transport.Type.
// args are passed to the delegate handler factory and must be mqtt.Options.
func NewFromConfig(cfg *config.Config, args ...any) (Connector, error) {
	param := connector.NewConnectParameter(cfg.MQTT)
	options := OptionsFromConfig(cfg.Transport)

	switch cfg.Transport.Type {
	case config.TransportTCP, "":
		c, err := NewTCPConnector(cfg.MQTT, param, options, args...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case config.TransportWebSocket:
		c, err := NewWebSocketConnector(cfg.MQTT, param, options, cfg.Transport.WebSocket, args...)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.Transport.Type)
	}
}

var (
	_ Connector = (*TCPConnector)(nil)
	_ Connector = (*WebSocketConnector)(nil)
)
