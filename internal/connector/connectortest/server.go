package connectortest

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// Handshake describes a TLS handshake the server completed.
type Handshake struct {
	ServerName string

	// PeerCertificates is empty unless the client presented a certificate.
	PeerCertificates []*x509.Certificate
}

// TLSServer accepts TCP connections, runs the server side of the TLS
// handshake and reports each outcome on Handshakes. Failed handshakes are
// reported on Failures.
type TLSServer struct {
	Handshakes chan Handshake
	Failures   chan error

	listener net.Listener
	wg       sync.WaitGroup
}

// NewTLSServer starts a server on 127.0.0.1 and closes it when the test ends.
func NewTLSServer(t testing.TB, cfg *tls.Config) *TLSServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	s := &TLSServer{
		Handshakes: make(chan Handshake, 16),
		Failures:   make(chan error, 16),
		listener:   ln,
	}

	s.wg.Add(1)
	go s.serve(cfg)

	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

// Addr returns host:port.
func (s *TLSServer) Addr() string {
	return s.listener.Addr().String()
}

// Port returns the listening port.
func (s *TLSServer) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	n, _ := strconv.Atoi(port)
	return n
}

func (s *TLSServer) serve(cfg *tls.Config) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer conn.Close()

			tlsConn := tls.Server(conn, cfg)
			_ = tlsConn.SetDeadline(time.Now().Add(5 * time.Second))
			if err := tlsConn.Handshake(); err != nil {
				s.Failures <- err
				return
			}
			state := tlsConn.ConnectionState()
			s.Handshakes <- Handshake{
				ServerName:       state.ServerName,
				PeerCertificates: state.PeerCertificates,
			}
			// Hold the connection until the client goes away.
			buf := make([]byte, 1)
			_, _ = tlsConn.Read(buf)
		}()
	}
}
