package connector

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
)

// tlsMinVersion is the minimum TLS version offered to brokers.
const tlsMinVersion = tls.VersionTLS12

// AuthMode is the TLS authentication mode of a connection.
type AuthMode int

const (
	// AuthNone marks a plaintext connection. ResolveAuthMode never returns it.
	AuthNone AuthMode = iota

	// AuthSingle is server-only authentication: the client verifies the
	// broker and presents no identity.
	AuthSingle

	// AuthMutual is mutual authentication: the client also presents its
	// certificate and private key.
	AuthMutual
)

// String returns "none", "single" or "mutual".
func (m AuthMode) String() string {
	switch m {
	case AuthSingle:
		return "single"
	case AuthMutual:
		return "mutual"
	default:
		return "none"
	}
}

// ResolveAuthMode selects AuthMutual when both the client certificate and the
// client private key are present, and AuthSingle otherwise.
func ResolveAuthMode(p ConnectParameter) AuthMode {
	if p.ClientCertificateFile != "" && p.ClientPrivateKeyFile != "" {
		return AuthMutual
	}
	return AuthSingle
}

// TLSHandler is the TLS stage for one connection attempt, bound to the
// target host and port. It is never cached by the connector.
type TLSHandler struct {
	mode   AuthMode
	host   string
	port   int
	config *tls.Config
}

// TLSHandler resolves the auth mode and builds a TLS handler bound to the
// connect parameter's host and port.
//
// Errors wrap ErrTLSConfiguration. The mode is recomputed on every call.
func (b *Base) TLSHandler() (*TLSHandler, error) {
	p := b.param
	mode := ResolveAuthMode(p)

	if lone := p.loneClientCredential(); lone != "" {
		if b.cfg.TLS.StrictClientCredentials {
			return nil, fmt.Errorf("%w: only %s supplied", ErrIncompleteClientCredentials, lone)
		}
		b.warn("client certificate and key must both be set for mutual TLS, using server-only TLS",
			"ignored_file", lone,
			"endpoint", p.Endpoint(),
		)
	}

	tlsConfig, err := newTLSConfig(mode, p)
	if err != nil {
		return nil, err
	}

	return &TLSHandler{
		mode:   mode,
		host:   p.Host,
		port:   p.Port,
		config: tlsConfig,
	}, nil
}

// newTLSConfig builds the client TLS context for mode.
func newTLSConfig(mode AuthMode, p ConnectParameter) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
		ServerName: p.Host,
	}

	// No root file means the system trust store.
	if p.RootCertificateFile != "" {
		pool, err := loadRootCAs(p.RootCertificateFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	if mode == AuthMutual {
		cert, err := tls.LoadX509KeyPair(p.ClientCertificateFile, p.ClientPrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: loading client key pair (%s, %s): %w",
				ErrTLSConfiguration, p.ClientCertificateFile, p.ClientPrivateKeyFile, err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func loadRootCAs(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading root certificate: %w", ErrTLSConfiguration, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no PEM certificates in %s", ErrTLSConfiguration, path)
	}
	return pool, nil
}

// Mode returns the authentication mode the handler was built for.
func (h *TLSHandler) Mode() AuthMode {
	return h.mode
}

// Host returns the server name used for certificate verification.
func (h *TLSHandler) Host() string {
	return h.host
}

// Port returns the target port.
func (h *TLSHandler) Port() int {
	return h.port
}

// Endpoint returns host:port.
func (h *TLSHandler) Endpoint() string {
	return net.JoinHostPort(h.host, strconv.Itoa(h.port))
}

// Config returns a copy of the TLS configuration, for runtimes that perform
// the handshake themselves.
func (h *TLSHandler) Config() *tls.Config {
	return h.config.Clone()
}

// Client wraps conn as the client side of a TLS connection. The handshake
// runs on first I/O.
func (h *TLSHandler) Client(conn net.Conn) *tls.Conn {
	return tls.Client(conn, h.config)
}

// Handshake wraps conn and completes the TLS handshake. On failure conn is
// closed.
func (h *TLSHandler) Handshake(ctx context.Context, conn net.Conn) (*tls.Conn, error) {
	tlsConn := h.Client(conn)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close() //nolint:errcheck // best effort on the failure path
		return nil, fmt.Errorf("tls handshake with %s: %w", h.Endpoint(), err)
	}
	return tlsConn, nil
}
