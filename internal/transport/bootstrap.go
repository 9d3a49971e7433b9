package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-connector/internal/connector"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// DialBootstrap is the runtime side of connector.Bootstrap. Options set on it
// shape the net.Dialer and the TCP socket of every connection it opens.
//
// Option cannot fail. The first rejected key or value is kept and returned by
// Err and DialContext.
type DialBootstrap struct {
	mu          sync.Mutex
	dialer      net.Dialer
	noDelay     *bool
	readBuffer  int
	writeBuffer int
	err         error
}

// NewDialBootstrap returns a bootstrap with the net.Dialer defaults.
func NewDialBootstrap() *DialBootstrap {
	return &DialBootstrap{}
}

// Option sets one socket option.
func (b *DialBootstrap) Option(key connector.OptionKey, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.set(key, value); err != nil && b.err == nil {
		b.err = err
	}
}

func (b *DialBootstrap) set(key connector.OptionKey, value any) error {
	switch key {
	case connector.OptionConnectTimeout:
		d, ok := value.(time.Duration)
		if !ok || d < 0 {
			return invalidValue(key, value)
		}
		b.dialer.Timeout = d

	case connector.OptionTCPKeepAlive:
		d, ok := value.(time.Duration)
		if !ok {
			return invalidValue(key, value)
		}
		b.dialer.KeepAlive = d

	case connector.OptionTCPNoDelay:
		v, ok := value.(bool)
		if !ok {
			return invalidValue(key, value)
		}
		b.noDelay = &v

	case connector.OptionReadBuffer:
		n, ok := value.(int)
		if !ok || n < 0 {
			return invalidValue(key, value)
		}
		b.readBuffer = n

	case connector.OptionWriteBuffer:
		n, ok := value.(int)
		if !ok || n < 0 {
			return invalidValue(key, value)
		}
		b.writeBuffer = n

	case connector.OptionLocalAddr:
		s, ok := value.(string)
		if !ok {
			return invalidValue(key, value)
		}
		if _, _, err := net.SplitHostPort(s); err != nil {
			s = net.JoinHostPort(s, "0")
		}
		addr, err := net.ResolveTCPAddr("tcp", s)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidOption, key, err)
		}
		b.dialer.LocalAddr = addr

	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidOption, key)
	}
	return nil
}

func invalidValue(key connector.OptionKey, value any) error {
	return fmt.Errorf("%w: %s does not accept %T(%v)", ErrInvalidOption, key, value, value)
}

// Err returns the first rejected option, if any.
func (b *DialBootstrap) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// DialContext opens a connection with the configured options. The signature
// matches net.Dialer.DialContext so it can back other dialers.
func (b *DialBootstrap) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	b.mu.Lock()
	if b.err != nil {
		err := b.err
		b.mu.Unlock()
		return nil, err
	}
	dialer := b.dialer
	noDelay, readBuffer, writeBuffer := b.noDelay, b.readBuffer, b.writeBuffer
	b.mu.Unlock()

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return conn, nil
	}
	if err := tuneTCP(tcp, noDelay, readBuffer, writeBuffer); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func tuneTCP(conn *net.TCPConn, noDelay *bool, readBuffer, writeBuffer int) error {
	if noDelay != nil {
		if err := conn.SetNoDelay(*noDelay); err != nil {
			return fmt.Errorf("setting TCP_NODELAY: %w", err)
		}
	}
	if readBuffer > 0 {
		if err := conn.SetReadBuffer(readBuffer); err != nil {
			return fmt.Errorf("setting read buffer: %w", err)
		}
	}
	if writeBuffer > 0 {
		if err := conn.SetWriteBuffer(writeBuffer); err != nil {
			return fmt.Errorf("setting write buffer: %w", err)
		}
	}
	return nil
}

// OptionsFromConfig builds the option set for the configured transport.
// Zero values are left out so the runtime defaults apply.
func OptionsFromConfig(cfg config.TransportConfig) connector.OptionSet {
	options := connector.OptionSet{}
	if d := cfg.GetConnectTimeout(); d > 0 {
		options[connector.OptionConnectTimeout] = d
	}
	if cfg.TCPKeepAlive != 0 {
		options[connector.OptionTCPKeepAlive] = time.Duration(cfg.TCPKeepAlive) * time.Second
	}
	if cfg.TCPNoDelay != nil {
		options[connector.OptionTCPNoDelay] = *cfg.TCPNoDelay
	}
	if cfg.ReadBuffer > 0 {
		options[connector.OptionReadBuffer] = cfg.ReadBuffer
	}
	if cfg.WriteBuffer > 0 {
		options[connector.OptionWriteBuffer] = cfg.WriteBuffer
	}
	if cfg.LocalAddr != "" {
		options[connector.OptionLocalAddr] = cfg.LocalAddr
	}
	return options
}
