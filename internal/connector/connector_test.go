package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// stubHandler is a DelegateHandler that records how it was used.
type stubHandler struct {
	name    string
	started bool
	closed  bool
}

func (h *stubHandler) Start(_ context.Context, _ DialFunc) error {
	h.started = true
	return nil
}

func (h *stubHandler) Close() error {
	h.closed = true
	return nil
}

// countingFactory counts CreateDelegateHandler calls and captures arguments.
type countingFactory struct {
	calls int
	args  []any
	err   error
}

func (f *countingFactory) CreateDelegateHandler(args ...any) (DelegateHandler, error) {
	f.calls++
	f.args = args
	if f.err != nil {
		return nil, f.err
	}
	return &stubHandler{name: fmt.Sprint(args...)}, nil
}

func testMQTTConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.example.com",
			Port:     8883,
			TLS:      true,
			ClientID: "connector-test",
		},
		QoS: 1,
	}
}

func TestNew_CreatesHandlerOnce(t *testing.T) {
	factory := &countingFactory{}
	param := ConnectParameter{Host: "broker.example.com", Port: 8883}

	base, err := New(testMQTTConfig(), param, factory, "a", 1)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if factory.calls != 1 {
		t.Errorf("factory called %d times, want 1", factory.calls)
	}
	if len(factory.args) != 2 || factory.args[0] != "a" || factory.args[1] != 1 {
		t.Errorf("factory args = %v, want [a 1]", factory.args)
	}

	first := base.DelegateHandler()
	if first == nil {
		t.Fatal("DelegateHandler() = nil")
	}
	if base.DelegateHandler() != first {
		t.Error("DelegateHandler() returned a different handler on second call")
	}
	if factory.calls != 1 {
		t.Errorf("accessors invoked the factory again (%d calls)", factory.calls)
	}
}

func TestNew_Accessors(t *testing.T) {
	cfg := testMQTTConfig()
	param := ConnectParameter{Host: "broker.example.com", Port: 8883, RootCertificateFile: "/ca.pem"}

	base, err := New(cfg, param, &countingFactory{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := base.Configuration(); got.Broker.ClientID != cfg.Broker.ClientID {
		t.Errorf("Configuration().Broker.ClientID = %q, want %q", got.Broker.ClientID, cfg.Broker.ClientID)
	}
	if got := base.ConnectParameter(); got != param {
		t.Errorf("ConnectParameter() = %+v, want %+v", got, param)
	}
}

func TestNew_FactoryFailure(t *testing.T) {
	cause := errors.New("bad arguments")
	factory := &countingFactory{err: cause}

	base, err := New(testMQTTConfig(), ConnectParameter{}, factory)
	if err == nil {
		t.Fatal("New() expected error for failing factory")
	}
	if !errors.Is(err, ErrHandlerCreation) {
		t.Errorf("New() error = %v, want ErrHandlerCreation", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("New() error = %v, want it to wrap the factory error", err)
	}
	if base != nil {
		t.Error("New() returned a connector alongside an error; no handler should be retrievable")
	}
}

func TestNew_NilHandler(t *testing.T) {
	factory := DelegateHandlerFactoryFunc(func(...any) (DelegateHandler, error) {
		return nil, nil
	})

	_, err := New(testMQTTConfig(), ConnectParameter{}, factory)
	if !errors.Is(err, ErrHandlerCreation) {
		t.Errorf("New() error = %v, want ErrHandlerCreation", err)
	}
}

func TestNew_NilFactory(t *testing.T) {
	_, err := New(testMQTTConfig(), ConnectParameter{}, nil)
	if !errors.Is(err, ErrHandlerCreation) {
		t.Errorf("New() error = %v, want ErrHandlerCreation", err)
	}
}

func TestDelegateHandlerFactoryFunc(t *testing.T) {
	var got []any
	factory := DelegateHandlerFactoryFunc(func(args ...any) (DelegateHandler, error) {
		got = args
		return &stubHandler{}, nil
	})

	if _, err := New(testMQTTConfig(), ConnectParameter{}, factory, "x"); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if len(got) != 1 || got[0] != "x" {
		t.Errorf("factory received %v, want [x]", got)
	}
}

func TestNewConnectParameter(t *testing.T) {
	cfg := testMQTTConfig()
	cfg.TLS = config.MQTTTLSConfig{
		RootCAFile:     "/ca.pem",
		ClientCertFile: "/client.pem",
		ClientKeyFile:  "/client.key",
	}

	p := NewConnectParameter(cfg)

	want := ConnectParameter{
		Host:                  "broker.example.com",
		Port:                  8883,
		ClientCertificateFile: "/client.pem",
		ClientPrivateKeyFile:  "/client.key",
		RootCertificateFile:   "/ca.pem",
	}
	if p != want {
		t.Errorf("NewConnectParameter() = %+v, want %+v", p, want)
	}
	if p.Endpoint() != "broker.example.com:8883" {
		t.Errorf("Endpoint() = %q", p.Endpoint())
	}
}

func TestConnectParameter_EndpointIPv6(t *testing.T) {
	p := ConnectParameter{Host: "::1", Port: 1883}
	if got := p.Endpoint(); got != "[::1]:1883" {
		t.Errorf("Endpoint() = %q, want [::1]:1883", got)
	}
}

// recordingLogger captures Warn calls.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *recordingLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// Compile-time check that the stub satisfies the interface with the alias type.
var _ DelegateHandler = (*stubHandler)(nil)

// plainDial is a DialFunc literal used to confirm the alias is assignable.
var _ DialFunc = func(context.Context) (net.Conn, error) { return nil, nil }
