// Package connector is the connection-establishment layer of the MQTT client.
//
// It decides how a transport connection authenticates (plaintext,
// server-only TLS or mutual TLS) and owns the protocol delegate handler that
// takes over once the channel is up.
//
// # Extension Point
//
// A transport variant (TCP, WebSocket) supplies a DelegateHandlerFactory.
// New calls it exactly once and keeps the result for the life of the Base:
//
//	base, err := connector.New(cfg.MQTT, param, factory, handlerArgs...)
//	if err != nil {
//	    return err // wraps ErrHandlerCreation
//	}
//
// Everything else in Base is shared by all variants.
//
// # TLS Mode
//
// The mode is a pure function of the connect parameter:
//
//	client cert AND client key present  -> AuthMutual
//	anything else                       -> AuthSingle
//
// A certificate without a key (or the reverse) does not select mutual TLS.
// The lone file is ignored with a warning, or rejected with
// ErrIncompleteClientCredentials when mqtt.tls.strict_client_credentials is
// set.
//
// # Thread Safety
//
// Base holds no per-connection state. TLSHandler builds a fresh tls.Config on
// every call and ApplyOptions only touches the caller's bootstrap target, so
// one Base can serve concurrent connection attempts.
package connector
