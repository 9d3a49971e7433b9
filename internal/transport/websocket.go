package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-connector/internal/connector"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

const (
	// mqttSubprotocol is the WebSocket sub-protocol MQTT brokers expect.
	mqttSubprotocol = "mqtt"

	defaultWebSocketPath = "/mqtt"
)

// WebSocketConnector carries MQTT in binary WebSocket frames, over wss when
// cfg.Broker.TLS is set.
type WebSocketConnector struct {
	*variant
	url              string
	handshakeTimeout time.Duration
}

// NewWebSocketConnector creates the connector and its delegate handler.
// args must be mqtt.Options.
func NewWebSocketConnector(cfg config.MQTTConfig, param connector.ConnectParameter, options connector.OptionSet, wsCfg config.WebSocketConfig, args ...any) (*WebSocketConnector, error) {
	scheme := "ws"
	if cfg.Broker.TLS {
		scheme = "wss"
	}
	path := wsCfg.Path
	if path == "" {
		path = defaultWebSocketPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := scheme + "://" + param.Endpoint() + path

	v, err := newVariant(config.TransportWebSocket, url, cfg, param, options, args)
	if err != nil {
		return nil, err
	}
	return &WebSocketConnector{
		variant:          v,
		url:              url,
		handshakeTimeout: time.Duration(wsCfg.HandshakeTimeout) * time.Second,
	}, nil
}

// Connect runs one connection attempt. The returned attempt carries the
// state reached and the error, if any.
func (c *WebSocketConnector) Connect(ctx context.Context) (connector.Attempt, error) {
	return c.connect(ctx, c.dialer)
}

func (c *WebSocketConnector) dialer(boot *DialBootstrap, tlsHandler *connector.TLSHandler) connector.DialFunc {
	d := websocket.Dialer{
		NetDialContext:   boot.DialContext,
		Subprotocols:     []string{mqttSubprotocol},
		HandshakeTimeout: c.handshakeTimeout,
	}
	if tlsHandler != nil {
		// gorilla skips its own TLS setup when NetDialTLSContext is set.
		d.NetDialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := boot.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return tlsHandler.Handshake(ctx, conn)
		}
	}

	url := c.url
	return func(ctx context.Context) (net.Conn, error) {
		ws, resp, err := d.DialContext(ctx, url, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("websocket handshake with %s: %s: %w", url, resp.Status, err)
			}
			return nil, fmt.Errorf("websocket dial %s: %w", url, err)
		}
		return NewWebSocketConn(ws), nil
	}
}

// NewWebSocketConn adapts a WebSocket to net.Conn. Writes are sent as one
// binary message each; reads stream across message boundaries. Non-binary
// messages are skipped.
func NewWebSocketConn(ws *websocket.Conn) net.Conn {
	return &wsConn{ws: ws}
}

type wsConn struct {
	ws *websocket.Conn

	readMu sync.Mutex
	reader io.Reader

	writeMu sync.Mutex
}

func (c *wsConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				continue
			}
			c.reader = r
		}

		n, err := c.reader.Read(b)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr {
	return c.ws.LocalAddr()
}

func (c *wsConn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return c.ws.SetWriteDeadline(t)
}

var _ net.Conn = (*wsConn)(nil)
