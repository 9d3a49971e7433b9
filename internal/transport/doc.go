// Package transport provides the concrete connectors: plain TCP (optionally
// TLS) and WebSocket (optionally wss).
//
// Each connector embeds connector.Base, so the delegate handler is created
// once at construction and the TLS policy is shared. Connect runs one
// attempt through the lifecycle:
//
//	constructed → options_applied → tls_handler_attached (TLS only) → handed_off
//
// and reports the finished attempt to the configured Recorder.
//
// # Usage
//
//	c, err := transport.NewFromConfig(cfg, mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	c.SetRecorder(journal)
//	attempt, err := c.Connect(ctx)
package transport
