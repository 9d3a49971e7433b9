package transport

import (
	"context"
	"net"

	"github.com/nerrad567/gray-logic-connector/internal/connector"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// TCPConnector connects over a raw TCP socket, wrapped in TLS when
// cfg.Broker.TLS is set.
type TCPConnector struct {
	*variant
}

// NewTCPConnector creates the connector and its delegate handler.
// args must be mqtt.Options.
func NewTCPConnector(cfg config.MQTTConfig, param connector.ConnectParameter, options connector.OptionSet, args ...any) (*TCPConnector, error) {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	v, err := newVariant(config.TransportTCP, scheme+"://"+param.Endpoint(), cfg, param, options, args)
	if err != nil {
		return nil, err
	}
	return &TCPConnector{variant: v}, nil
}

// Connect runs one connection attempt. The returned attempt carries the
// state reached and the error, if any.
func (c *TCPConnector) Connect(ctx context.Context) (connector.Attempt, error) {
	return c.connect(ctx, c.dialer)
}

func (c *TCPConnector) dialer(boot *DialBootstrap, tlsHandler *connector.TLSHandler) connector.DialFunc {
	endpoint := c.ConnectParameter().Endpoint()
	return func(ctx context.Context) (net.Conn, error) {
		conn, err := boot.DialContext(ctx, "tcp", endpoint)
		if err != nil {
			return nil, err
		}
		if tlsHandler == nil {
			return conn, nil
		}
		return tlsHandler.Handshake(ctx, conn)
	}
}
