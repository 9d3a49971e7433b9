package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/nerrad567/gray-logic-connector/internal/audit"
	"github.com/nerrad567/gray-logic-connector/internal/auth"
	"github.com/nerrad567/gray-logic-connector/internal/connector"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/mqtt/mqtttest"
	"github.com/nerrad567/gray-logic-connector/internal/transport"
)

const (
	testSecret  = "test-secret-key-at-least-32-chars!"
	testTimeout = 5 * time.Second
)

// fakeRepository is an in-memory audit.Repository.
type fakeRepository struct {
	mu      sync.Mutex
	filters []audit.Filter
	entries []audit.Entry
	err     error
}

func (f *fakeRepository) Create(_ context.Context, e audit.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeRepository) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	return &audit.ListResult{Entries: f.entries, Total: len(f.entries), Limit: filter.Limit, Offset: filter.Offset}, nil
}

func (f *fakeRepository) lastFilter() audit.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.filters) == 0 {
		return audit.Filter{}
	}
	return f.filters[len(f.filters)-1]
}

type checkerFunc func(ctx context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	server    *Server
	broker    *mqtttest.Broker
	connector transport.Connector
	repo      *fakeRepository
}

func newTestEnv(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()

	broker, addr := mqtttest.Listen(t, nil)
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		t.Fatalf("address %v is not TCP", addr)
	}

	mqttCfg := config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     tcpAddr.Port,
			ClientID: "api-test",
		},
		QoS:          1,
		KeepAlive:    30,
		CleanSession: true,
		TopicPrefix:  "test/clients",
	}
	c, err := transport.NewTCPConnector(mqttCfg, connector.NewConnectParameter(mqttCfg), nil)
	if err != nil {
		t.Fatalf("NewTCPConnector() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })

	repo := &fakeRepository{}
	deps := Deps{
		Config:    config.APIConfig{JWTSecret: testSecret},
		Logger:    logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "text"}, "test"),
		Connector: c,
		Attempts:  repo,
		Version:   "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEnv{server: srv, broker: broker, connector: c, repo: repo}
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	if _, err := e.connector.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateAccessToken("tester", role, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_Validation(t *testing.T) {
	env := newTestEnv(t, nil)
	logger := logging.NewWithWriter(io.Discard, config.LoggingConfig{}, "test")

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Connector: env.connector, Config: config.APIConfig{JWTSecret: testSecret}}},
		{"missing connector", Deps{Logger: logger, Config: config.APIConfig{JWTSecret: testSecret}}},
		{"missing secret", Deps{Logger: logger, Connector: env.connector}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	t.Run("connected", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) {
			d.Database = checkerFunc(func(context.Context) error { return nil })
		})
		env.connect(t)

		rec := env.do(t, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		resp := decode[healthResponse](t, rec)
		if resp.Status != healthOK {
			t.Errorf("status = %q, want ok", resp.Status)
		}
		if resp.Checks["mqtt"] != healthOK || resp.Checks["database"] != healthOK {
			t.Errorf("checks = %v", resp.Checks)
		}
		if _, ok := resp.Checks["influxdb"]; ok {
			t.Error("influxdb check reported although not wired")
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Error("X-Request-ID header missing")
		}
	})

	t.Run("not connected", func(t *testing.T) {
		env := newTestEnv(t, nil)

		rec := env.do(t, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		resp := decode[healthResponse](t, rec)
		if resp.Status != healthDegraded {
			t.Errorf("status = %q, want degraded", resp.Status)
		}
	})

	t.Run("influxdb down", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) {
			d.InfluxDB = checkerFunc(func(context.Context) error { return errors.New("ping failed") })
		})
		env.connect(t)

		rec := env.do(t, http.MethodGet, "/api/v1/health", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		resp := decode[healthResponse](t, rec)
		if resp.Checks["influxdb"] != "ping failed" {
			t.Errorf("influxdb check = %q, want ping failed", resp.Checks["influxdb"])
		}
	})
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t, nil)

	otherSecret, err := auth.GenerateAccessToken("tester", auth.RoleOperator, "another-secret-that-is-long-enough!", time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		want   int
	}{
		{"no token", http.MethodGet, "/api/v1/connection", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/api/v1/connection", "not-a-jwt", http.StatusUnauthorized},
		{"wrong secret", http.MethodGet, "/api/v1/attempts", otherSecret, http.StatusUnauthorized},
		{"viewer reads connection", http.MethodGet, "/api/v1/connection", token(t, auth.RoleViewer), http.StatusOK},
		{"viewer reads attempts", http.MethodGet, "/api/v1/attempts", token(t, auth.RoleViewer), http.StatusOK},
		{"viewer cannot connect", http.MethodPost, "/api/v1/connection/connect", token(t, auth.RoleViewer), http.StatusForbidden},
		{"unknown route", http.MethodGet, "/api/v1/nope", token(t, auth.RoleViewer), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.bearer)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("WWW-Authenticate header missing on 401")
			}
		})
	}
}

func TestListAttempts(t *testing.T) {
	env := newTestEnv(t, nil)
	viewer := token(t, auth.RoleViewer)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantFilter audit.Filter
		wantErr    string
	}{
		{
			name:       "defaults",
			query:      "",
			wantStatus: http.StatusOK,
		},
		{
			name:       "all parameters",
			query:      "?limit=10&offset=20&transport=websocket&state=options_applied&failed=true",
			wantStatus: http.StatusOK,
			wantFilter: audit.Filter{Limit: 10, Offset: 20, Transport: "websocket", State: "options_applied", FailedOnly: true},
		},
		{name: "bad limit", query: "?limit=ten", wantStatus: http.StatusBadRequest, wantErr: "limit"},
		{name: "negative offset", query: "?offset=-1", wantStatus: http.StatusBadRequest, wantErr: "offset"},
		{name: "unknown transport", query: "?transport=quic", wantStatus: http.StatusBadRequest, wantErr: "transport"},
		{name: "unknown state", query: "?state=flying", wantStatus: http.StatusBadRequest, wantErr: "flying"},
		{name: "bad failed flag", query: "?failed=maybe", wantStatus: http.StatusBadRequest, wantErr: "failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/attempts"+tt.query, viewer)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantErr != "" {
				e := decode[Error](t, rec)
				if e.Code != ErrCodeBadRequest || !strings.Contains(e.Message, tt.wantErr) {
					t.Errorf("error = %+v, want bad_request mentioning %q", e, tt.wantErr)
				}
				return
			}
			if got := env.repo.lastFilter(); got != tt.wantFilter {
				t.Errorf("filter = %+v, want %+v", got, tt.wantFilter)
			}
		})
	}
}

func TestListAttempts_JournalUnavailable(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t, func(d *Deps) { d.Attempts = nil })
		rec := env.do(t, http.MethodGet, "/api/v1/attempts", token(t, auth.RoleViewer))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("repository error", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.repo.err = errors.New("disk I/O error")
		rec := env.do(t, http.MethodGet, "/api/v1/attempts", token(t, auth.RoleViewer))
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		if strings.Contains(rec.Body.String(), "disk I/O") {
			t.Error("repository error leaked into the response")
		}
	})
}

func TestGetConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	viewer := token(t, auth.RoleViewer)

	resp := decode[connectionResponse](t, env.do(t, http.MethodGet, "/api/v1/connection", viewer))
	if resp.Transport != config.TransportTCP {
		t.Errorf("transport = %q, want tcp", resp.Transport)
	}
	if !strings.HasPrefix(resp.BrokerURL, "tcp://127.0.0.1:") {
		t.Errorf("broker_url = %q", resp.BrokerURL)
	}
	if resp.AuthMode != "none" || resp.TLS {
		t.Errorf("auth_mode = %q tls = %v, want none/false", resp.AuthMode, resp.TLS)
	}
	if resp.ClientID != "api-test" {
		t.Errorf("client_id = %q, want api-test", resp.ClientID)
	}
	if resp.Connected {
		t.Error("connected = true before Connect")
	}

	env.connect(t)
	resp = decode[connectionResponse](t, env.do(t, http.MethodGet, "/api/v1/connection", viewer))
	if !resp.Connected {
		t.Error("connected = false after Connect")
	}
}

func TestConnect(t *testing.T) {
	t.Run("hands off", func(t *testing.T) {
		env := newTestEnv(t, nil)
		rec := env.do(t, http.MethodPost, "/api/v1/connection/connect", token(t, auth.RoleOperator))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		entry := decode[audit.Entry](t, rec)
		if entry.State != connector.StateHandedOff.String() || entry.Error != "" {
			t.Errorf("entry = %+v, want handed_off without error", entry)
		}
		env.broker.WaitSession(t, testTimeout)
	})

	t.Run("already connected", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.connect(t)
		rec := env.do(t, http.MethodPost, "/api/v1/connection/connect", token(t, auth.RoleOperator))
		if rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("broker refuses", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.broker.SetReturnCode(packets.ErrRefusedNotAuthorised)
		rec := env.do(t, http.MethodPost, "/api/v1/connection/connect", token(t, auth.RoleOperator))
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
		}
		entry := decode[audit.Entry](t, rec)
		if entry.State != connector.StateOptionsApplied.String() || entry.Error == "" {
			t.Errorf("entry = %+v, want options_applied with error", entry)
		}
	})

	t.Run("reconnects after drop", func(t *testing.T) {
		env := newTestEnv(t, nil)
		env.connect(t)
		env.broker.DropClients()

		deadline := time.Now().Add(testTimeout)
		for env.connector.Handler().IsConnected() {
			if time.Now().After(deadline) {
				t.Fatal("handler still connected after DropClients")
			}
			time.Sleep(10 * time.Millisecond)
		}

		rec := env.do(t, http.MethodPost, "/api/v1/connection/connect", token(t, auth.RoleOperator))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestRecovery(t *testing.T) {
	env := newTestEnv(t, nil)
	h := env.server.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartClose(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) {
		d.Config.Host = "127.0.0.1"
		d.Config.Port = freePort(t)
	})

	if err := env.server.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start = nil, want error")
	}
	if err := env.server.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := env.server.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() after Start error = %v", err)
	}

	resp, err := http.Get("http://" + env.server.server.Addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()

	if err := env.server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}
