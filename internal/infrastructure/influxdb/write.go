package influxdb

import (
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the telemetry methods.
const (
	MeasurementState     = "orderlink_state"
	MeasurementReconnect = "orderlink_reconnect"
	MeasurementMessages  = "orderlink_messages"
	MeasurementDropped   = "orderlink_dropped_frames"
)

// RecordState writes one point per connection state transition.
//
// Example:
//
//	client.RecordState("reconnecting")
func (c *Client) RecordState(state string) {
	c.WritePoint(MeasurementState,
		map[string]string{"state": state},
		map[string]interface{}{"value": 1},
	)
}

// RecordReconnectAttempt writes the 1-based attempt number of a reconnect.
func (c *Client) RecordReconnectAttempt(attempt int) {
	c.WritePoint(MeasurementReconnect,
		nil,
		map[string]interface{}{"attempt": attempt},
	)
}

// RecordMessage writes one point per frame sent or delivered.
//
// Destinations are tagged by channel rather than full path so that per-order
// identifiers do not become tag values: "/topic/order/42/chat" is tagged
// "/topic/order".
//
// Parameters:
//   - direction: "in" or "out"
//   - destination: Full broker destination
//   - size: Body size in bytes
func (c *Client) RecordMessage(direction, destination string, size int) {
	c.WritePoint(MeasurementMessages,
		map[string]string{
			"direction": direction,
			"channel":   channel(destination),
		},
		map[string]interface{}{
			"bytes":       size,
			"destination": destination,
		},
	)
}

// RecordDroppedFrame writes one point per inbound frame the client discarded.
func (c *Client) RecordDroppedFrame(reason string) {
	c.WritePoint(MeasurementDropped,
		map[string]string{"reason": reason},
		map[string]interface{}{"value": 1},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

// channel returns the first two path segments of destination.
func channel(destination string) string {
	parts := strings.SplitN(strings.TrimPrefix(destination, "/"), "/", 3)
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}
