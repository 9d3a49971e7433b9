package connector

import (
	"net"
	"strconv"

	"github.com/nerrad567/gray-logic-connector/internal/infrastructure/config"
)

// ConnectParameter is the target endpoint and credential file references for
// one logical connection. An empty file path means the file is absent.
//
// It is a value type; the connector keeps its own copy.
type ConnectParameter struct {
	Host string
	Port int

	ClientCertificateFile string
	ClientPrivateKeyFile  string
	RootCertificateFile   string
}

// NewConnectParameter builds the connect parameter from the MQTT config.
func NewConnectParameter(cfg config.MQTTConfig) ConnectParameter {
	return ConnectParameter{
		Host:                  cfg.Broker.Host,
		Port:                  cfg.Broker.Port,
		ClientCertificateFile: cfg.TLS.ClientCertFile,
		ClientPrivateKeyFile:  cfg.TLS.ClientKeyFile,
		RootCertificateFile:   cfg.TLS.RootCAFile,
	}
}

// Endpoint returns host:port.
func (p ConnectParameter) Endpoint() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// loneClientCredential returns the path of the client credential file that
// was supplied without its partner, or "" if both or neither are set.
func (p ConnectParameter) loneClientCredential() string {
	switch {
	case p.ClientCertificateFile != "" && p.ClientPrivateKeyFile == "":
		return p.ClientCertificateFile
	case p.ClientCertificateFile == "" && p.ClientPrivateKeyFile != "":
		return p.ClientPrivateKeyFile
	default:
		return ""
	}
}
