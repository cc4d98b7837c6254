package messaging

import (
	"context"
	"fmt"

	"github.com/nerrad567/orderlink/internal/payload"
	"github.com/nerrad567/orderlink/internal/stomp"
)

// Message is one delivery from the broker.
type Message struct {
	// Destination the message was published to.
	Destination string

	// ID is the broker's message-id.
	ID string

	// Headers holds every header of the MESSAGE frame in wire order.
	Headers stomp.Headers

	// Body is the raw payload. Handlers must not modify it; the same slice is
	// shared by every subscriber of the destination.
	Body []byte
}

// ContentType returns the content-type header, or "" when absent.
func (m Message) ContentType() string {
	return m.Headers.Value(stomp.HeaderContentType)
}

// Decode unmarshals the body into v using the codec named by the
// content-type header (JSON when absent).
func (m Message) Decode(v any) error {
	codec, err := payload.Lookup(m.ContentType())
	if err != nil {
		return err
	}
	return codec.Unmarshal(m.Body, v)
}

// Handler is the callback signature for received messages.
//
// Handlers for one destination run one at a time in arrival order; handlers
// for different destinations may run concurrently. A returned error or a
// panic is logged and never affects other subscribers or the connection.
// ctx is cancelled when the client is closed.
type Handler func(ctx context.Context, msg Message) error

// Typed adapts a function taking a decoded value into a Handler.
// A body that fails to decode is reported as the handler's error.
//
// Example:
//
//	type OrderStatus struct {
//	    OrderID string `json:"orderId"`
//	    Status  string `json:"status"`
//	}
//
//	sub, err := client.Subscribe(ctx, messaging.Destinations{}.OrderStatus("42"),
//	    messaging.Typed(func(ctx context.Context, s OrderStatus) error {
//	        fmt.Println(s.Status)
//	        return nil
//	    }))
func Typed[T any](fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, msg Message) error {
		var v T
		if err := msg.Decode(&v); err != nil {
			return fmt.Errorf("decoding message %s on %s: %w", msg.ID, msg.Destination, err)
		}
		return fn(ctx, v)
	}
}
