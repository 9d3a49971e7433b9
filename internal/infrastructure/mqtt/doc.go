// Package mqtt provides the delegate handler that runs an MQTT session over
// a transport prepared by a connector.
//
// This package manages:
//   - The CONNECT/CONNACK exchange over a caller-supplied net.Conn
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The handler does not choose or dial a transport. A connector decides
// between plain TCP, TLS and WebSocket, applies socket options and attaches
// the TLS policy, then hands the handler a dial function:
//
//	connector → dial func(ctx) (net.Conn, error) → Handler.Start → broker
//
// Automatic reconnection is disabled. Whoever owns the connector decides
// when to try again.
//
// # Usage
//
//	h, err := mqtt.NewHandler(cfg.MQTT, "ssl://broker.example.com:8883",
//	    mqtt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	if err := h.Start(ctx, dial); err != nil {
//	    return err
//	}
//	defer h.Close()
//
//	err = h.Subscribe("site/#", 1, func(topic string, payload []byte) error {
//	    log.Info("received", "topic", topic)
//	    return nil
//	})
package mqtt
