package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-connector/internal/audit"
	"github.com/nerrad567/gray-logic-connector/internal/connector"
)

// connectionResponse is the body of GET /api/v1/connection.
type connectionResponse struct {
	Transport string `json:"transport"`
	BrokerURL string `json:"broker_url"`
	Endpoint  string `json:"endpoint"`
	ClientID  string `json:"client_id"`
	TLS       bool   `json:"tls"`
	AuthMode  string `json:"auth_mode"`
	Connected bool   `json:"connected"`
}

// handleGetConnection describes the configured connection and whether the
// MQTT session is currently up.
func (s *Server) handleGetConnection(w http.ResponseWriter, _ *http.Request) {
	cfg := s.connector.Configuration()
	param := s.connector.ConnectParameter()

	mode := connector.AuthNone
	if cfg.Broker.TLS {
		mode = connector.ResolveAuthMode(param)
	}

	writeJSON(w, http.StatusOK, connectionResponse{
		Transport: s.connector.Transport(),
		BrokerURL: s.connector.BrokerURL(),
		Endpoint:  param.Endpoint(),
		ClientID:  cfg.Broker.ClientID,
		TLS:       cfg.Broker.TLS,
		AuthMode:  mode.String(),
		Connected: s.connector.Handler().IsConnected(),
	})
}

// handleConnect runs a fresh connection attempt when the session is down.
// The attempt is returned in journal form; a failed attempt answers 502.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	if s.connector.Handler().IsConnected() {
		writeError(w, http.StatusConflict, ErrCodeConflict, "already connected")
		return
	}

	// A session lost after hand-off still holds its client; release it so
	// the handler can start again.
	if err := s.connector.Close(); err != nil {
		s.logger.Warn("closing stale session failed", "error", err)
	}

	claims := claimsFromContext(r.Context())
	if claims != nil {
		s.logger.Info("connection attempt requested", "subject", claims.Subject)
	}

	attempt, err := s.connector.Connect(r.Context())
	entry := audit.EntryFromAttempt(attempt)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, entry)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
