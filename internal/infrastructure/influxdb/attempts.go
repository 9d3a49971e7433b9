package influxdb

import (
	"context"
	"strconv"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-connector/internal/connector"
)

// attemptMeasurement is the measurement connection attempts are written to.
const attemptMeasurement = "connection_attempts"

// AttemptPoint builds the point for a finished attempt. Tags carry the
// low-cardinality dimensions; the endpoint is a tag too since a deployment
// talks to a handful of brokers.
func AttemptPoint(a connector.Attempt) *write.Point {
	success := a.Succeeded()

	fields := map[string]interface{}{
		"duration_ms": a.Duration.Milliseconds(),
		"success":     success,
	}
	if a.Err != nil {
		fields["error"] = a.Err.Error()
	}

	return write.NewPoint(
		attemptMeasurement,
		map[string]string{
			"transport": a.Transport,
			"endpoint":  a.Endpoint,
			"tls":       strconv.FormatBool(a.TLS),
			"auth_mode": a.Mode.String(),
			"state":     a.State.String(),
		},
		fields,
		a.StartedAt,
	)
}

// RecordAttempt queues the attempt for the next batch. It lets the client act
// as a transport recorder. Write failures arrive through SetOnError.
func (c *Client) RecordAttempt(_ context.Context, a connector.Attempt) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	c.writeAPI.WritePoint(AttemptPoint(a))
	return nil
}
