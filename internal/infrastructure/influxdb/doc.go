// Package influxdb writes connection-attempt telemetry to InfluxDB.
//
// Each finished attempt becomes one point in the connection_attempts
// measurement, tagged by transport, endpoint, TLS and auth mode and final
// state, with duration_ms and success fields. Dashboards can then chart
// handshake latency and failure rates per broker.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB,
//	    influxdb.WithDefaultTag("client_id", cfg.MQTT.Broker.ClientID))
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influxdb write failed", "error", err) })
//
//	conn.SetRecorder(client)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are non-blocking; failures are reported through the error callback.
package influxdb
