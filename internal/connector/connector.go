package connector

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// DialFunc opens the (already authenticated) transport connection. The
// delegate handler calls it whenever its protocol runtime needs a connection.
type DialFunc = func(ctx context.Context) (net.Conn, error)

// DelegateHandler is the protocol-level handler that runs MQTT over the
// channel the connector prepared.
type DelegateHandler interface {
	// Start hands the prepared dial function to the protocol runtime and
	// returns once the session is established or has failed.
	Start(ctx context.Context, dial DialFunc) error

	// Close ends the session.
	Close() error
}

// DelegateHandlerFactory creates the delegate handler for one transport
// variant. The arguments are variant specific.
type DelegateHandlerFactory interface {
	CreateDelegateHandler(args ...any) (DelegateHandler, error)
}

// DelegateHandlerFactoryFunc adapts a function to DelegateHandlerFactory.
type DelegateHandlerFactoryFunc func(args ...any) (DelegateHandler, error)

// CreateDelegateHandler calls f(args...).
func (f DelegateHandlerFactoryFunc) CreateDelegateHandler(args ...any) (DelegateHandler, error) {
	return f(args...)
}

// Logger is the subset of logging.Logger the connector uses.
type Logger interface {
	Warn(msg string, args ...any)
}

// Base holds the configuration shared by every transport variant and owns the
// delegate handler. Embed it in a concrete connector.
type Base struct {
	cfg      config.MQTTConfig
	param    ConnectParameter
	delegate DelegateHandler

	logger   Logger
	loggerMu sync.RWMutex
}

// New stores cfg and param and creates the delegate handler by calling
// factory exactly once with args.
//
// A factory error, or a nil handler, fails construction with an error
// wrapping ErrHandlerCreation; no Base is returned in that case.
func New(cfg config.MQTTConfig, param ConnectParameter, factory DelegateHandlerFactory, args ...any) (*Base, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: no factory", ErrHandlerCreation)
	}

	delegate, err := factory.CreateDelegateHandler(args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandlerCreation, err)
	}
	if delegate == nil {
		return nil, fmt.Errorf("%w: factory returned no handler", ErrHandlerCreation)
	}

	return &Base{
		cfg:      cfg,
		param:    param,
		delegate: delegate,
	}, nil
}

// DelegateHandler returns the handler created at construction.
func (b *Base) DelegateHandler() DelegateHandler {
	return b.delegate
}

// Configuration returns the MQTT configuration the connector was built with.
func (b *Base) Configuration() config.MQTTConfig {
	return b.cfg
}

// ConnectParameter returns the connect parameter the connector was built with.
func (b *Base) ConnectParameter() ConnectParameter {
	return b.param
}

// SetLogger sets a logger for credential warnings.
// If not set, warnings are dropped.
func (b *Base) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

func (b *Base) warn(msg string, args ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
