package messaging

import "fmt"

// Destination prefixes used by the ordering backend.
//
// Topics fan out to every subscriber; /app destinations are routed to
// application handlers on the server; /user/queue destinations are private
// to the authenticated user.
const (
	// PrefixTopic is the base for broadcast topics.
	PrefixTopic = "/topic"

	// PrefixApp is the base for messages handled by the application server.
	PrefixApp = "/app"

	// PrefixUserQueue is the base for per-user queues.
	PrefixUserQueue = "/user/queue"
)

// Destinations provides builders for orderlink destinations.
// Using these helpers keeps destination naming consistent across callers.
//
//	dests := messaging.Destinations{}
//	dests.OrderStatus("42") // "/topic/order/42"
type Destinations struct{}

// OrderStatus returns the topic carrying status updates for one order.
//
// Example: /topic/order/42
func (Destinations) OrderStatus(orderID string) string {
	return fmt.Sprintf("%s/order/%s", PrefixTopic, orderID)
}

// CourierLocation returns the topic carrying the courier position for an order.
//
// Example: /topic/order/42/location
func (Destinations) CourierLocation(orderID string) string {
	return fmt.Sprintf("%s/order/%s/location", PrefixTopic, orderID)
}

// OrderChat returns the topic on which chat messages for an order are broadcast.
//
// Example: /topic/chat/42
func (Destinations) OrderChat(orderID string) string {
	return fmt.Sprintf("%s/chat/%s", PrefixTopic, orderID)
}

// ChatSend returns the destination for posting a chat message on an order.
//
// Example: /app/chat/42
func (Destinations) ChatSend(orderID string) string {
	return fmt.Sprintf("%s/chat/%s", PrefixApp, orderID)
}

// ReviewSubmit returns the destination for submitting an order review.
//
// Example: /app/order/review
func (Destinations) ReviewSubmit() string {
	return PrefixApp + "/order/review"
}

// Notifications returns the caller's private notification queue.
//
// Example: /user/queue/notifications
func (Destinations) Notifications() string {
	return PrefixUserQueue + "/notifications"
}
