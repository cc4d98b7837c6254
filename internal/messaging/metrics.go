package messaging

// Direction of a counted message.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Metrics receives connection telemetry. Implementations must not block;
// calls are made from the client's I/O goroutines.
//
// influxdb.Client implements this interface.
type Metrics interface {
	// RecordState is called after every connection state transition.
	RecordState(state string)

	// RecordReconnectAttempt is called before each reconnect attempt with the
	// running attempt count for the current outage.
	RecordReconnectAttempt(attempt int)

	// RecordMessage is called for each MESSAGE received and each SEND written.
	// size is the body length in bytes, headers excluded.
	RecordMessage(direction, destination string, size int)

	// RecordDroppedFrame is called when an inbound frame is discarded.
	RecordDroppedFrame(reason string)
}

type noopMetrics struct{}

func (noopMetrics) RecordState(string) {}
func (noopMetrics) RecordReconnectAttempt(int) {}
func (noopMetrics) RecordMessage(string, string, int) {}
func (noopMetrics) RecordDroppedFrame(string) {}
