// Package messaging is orderlink's real-time messaging client.
//
// One Client owns one STOMP session to the broker and multiplexes any number
// of subscriptions over it. Order tracking, courier location, chat and review
// submission all share the same connection.
//
// # Connection lifecycle
//
//	Disconnected -> Connecting -> Connected <-> Reconnecting
//	                    |                            ^
//	                    +----- handshake failed -----+
//	any state -> Closed (terminal)
//
// Connect is safe to call redundantly; concurrent callers share one
// handshake. After an unexpected loss (socket error, heartbeat timeout,
// broker ERROR) the client retries with exponential backoff until it
// reconnects or Close is called, then restores every subscription that still
// has a handler. Callers are not involved.
//
// # Subscriptions
//
// Handlers on the same destination share one wire subscription: the first
// Subscribe sends SUBSCRIBE, the last Unsubscribe sends UNSUBSCRIBE.
// Messages for a destination are delivered in arrival order to the handlers
// registered at delivery time, in registration order. A handler that returns
// an error or panics is logged and skipped; delivery to the others continues.
//
// # Sending
//
// Send writes immediately when connected. Otherwise it queues the message and
// waits until it is written after the next successful connect. Queued sends
// are flushed in order, after pending subscriptions, and before any new send.
// A write failure while connected is returned and never retried.
//
// # Usage
//
//	client, err := messaging.New(cfg, nil, messaging.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
//	sub, err := client.Subscribe(ctx, messaging.Destinations{}.OrderStatus("42"),
//	    func(ctx context.Context, msg messaging.Message) error {
//	        var status OrderStatus
//	        return msg.Decode(&status)
//	    })
//	defer sub.Unsubscribe()
//
//	err = client.Send(ctx, messaging.Destinations{}.ReviewSubmit(),
//	    Review{OrderID: "42", Rating: 5})
package messaging
