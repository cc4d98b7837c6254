// Package transport carries STOMP frames over a message-oriented socket.
//
// A Conn moves whole messages: one Read returns one frame (or heartbeat) as
// sent by the peer, one Write sends one. The messaging client owns exactly
// one writer goroutine per Conn, so implementations only need to tolerate a
// Close racing a Read or Write.
//
// WebSocketDialer is the production implementation on gorilla/websocket.
// Pipe returns an in-memory pair for tests.
package transport
